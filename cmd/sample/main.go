// Command sample demonstrates attaching the adapter, running a
// PostgreSQL-dialect query DuckDB cannot execute as written, and
// driving a nested transaction.
package main

import (
	"context"
	"fmt"
	"log"

	duckpg "github.com/lychee-technology/duckpg"
)

func main() {
	log.SetFlags(0)

	drv, err := duckpg.Attach(duckpg.DefaultConfig())
	if err != nil {
		log.Fatalf("attach: %v", err)
	}
	defer drv.Close()

	ctx := context.Background()
	conn, err := drv.Acquire(ctx)
	if err != nil {
		log.Fatalf("acquire: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Execute(ctx, "CREATE TABLE tags (id INTEGER, labels VARCHAR[])"); err != nil {
		log.Fatalf("create table: %v", err)
	}
	if _, err := conn.Execute(ctx, "INSERT INTO tags VALUES (1, ['a', 'b']), (2, ['b', 'c'])"); err != nil {
		log.Fatalf("insert: %v", err)
	}

	// This WHERE clause uses the PostgreSQL array-overlap operator,
	// which the translation pipeline lowers to array_has_any before it
	// ever reaches the engine.
	rows, err := conn.All(ctx, "SELECT id FROM tags WHERE labels && ARRAY['b'] ORDER BY id", nil)
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	for _, row := range rows {
		fmt.Printf("matched id=%v\n", row["id"])
	}

	err = conn.Transaction(ctx, func(tx *duckpg.Tx) error {
		if _, err := tx.Execute(ctx, "INSERT INTO tags VALUES (3, ['d'])"); err != nil {
			return err
		}
		return tx.Transaction(ctx, func(nested *duckpg.Tx) error {
			_, err := nested.Execute(ctx, "INSERT INTO tags VALUES (4, ['e'])")
			return err
		})
	})
	if err != nil {
		fmt.Printf("transaction did not complete: %v\n", err)
	}
}
