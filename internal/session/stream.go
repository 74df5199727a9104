package session

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lychee-technology/duckpg/internal/codec"
)

// BatchStream yields decoded rows in fixed-size batches. Abandoning
// it without exhausting Next is safe as long as Close is called;
// Close is also idempotent.
type BatchStream struct {
	rows      *sql.Rows
	cols      []string
	modes     map[string]codec.DecodeMode
	batchSize int
	closed    bool
}

// Stream opens a row-batch stream. batchSize <= 0 defaults to 1.
func (s *Session) Stream(ctx context.Context, query string, batchSize int, modes map[string]codec.DecodeMode, args ...any) (*BatchStream, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	rewritten, encoded, err := s.prepare(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryWith(ctx, rewritten, encoded)
	if err != nil {
		if ctx.Err() != nil {
			s.MarkDirty()
		}
		return nil, fmt.Errorf("session: stream: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &BatchStream{rows: rows, cols: cols, modes: modes, batchSize: batchSize}, nil
}

// Next returns the next batch of decoded rows. ok is false once the
// stream is exhausted; err is non-nil only on a genuine read failure.
func (b *BatchStream) Next() (batch []Row, ok bool, err error) {
	if b.closed {
		return nil, false, nil
	}
	for len(batch) < b.batchSize {
		if !b.rows.Next() {
			closeErr := b.Close()
			if err := b.rows.Err(); err != nil {
				return batch, len(batch) > 0, err
			}
			return batch, len(batch) > 0, closeErr
		}
		row, err := scanRow(b.rows, b.cols, b.modes)
		if err != nil {
			b.Close()
			return nil, false, err
		}
		batch = append(batch, row)
	}
	return batch, true, nil
}

// Close releases the underlying cursor. Safe to call more than once
// and safe to call having abandoned the stream mid-iteration.
func (b *BatchStream) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.rows.Close()
}

// ColumnBatch is one batch of raw columnar storage: parallel
// per-column buffers instead of row-major decoded records.
type ColumnBatch struct {
	Columns []string
	Data    map[string][]any
}

// ColumnStream is the columnar counterpart of BatchStream.
type ColumnStream struct {
	rows      *sql.Rows
	cols      []string
	batchSize int
	closed    bool
}

// StreamColumns opens a raw columnar stream: no per-column decode
// modes are applied, since its consumer wants the engine's native
// column buffers rather than typed caller values.
func (s *Session) StreamColumns(ctx context.Context, query string, batchSize int, args ...any) (*ColumnStream, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	rewritten, encoded, err := s.prepare(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryWith(ctx, rewritten, encoded)
	if err != nil {
		if ctx.Err() != nil {
			s.MarkDirty()
		}
		return nil, fmt.Errorf("session: stream columns: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &ColumnStream{rows: rows, cols: cols, batchSize: batchSize}, nil
}

// Next returns the next columnar batch. ok is false once exhausted.
func (c *ColumnStream) Next() (*ColumnBatch, bool, error) {
	if c.closed {
		return nil, false, nil
	}
	data := make(map[string][]any, len(c.cols))
	for _, name := range c.cols {
		data[name] = make([]any, 0, c.batchSize)
	}
	n := 0
	for n < c.batchSize {
		if !c.rows.Next() {
			closeErr := c.Close()
			if err := c.rows.Err(); err != nil {
				return &ColumnBatch{Columns: c.cols, Data: data}, n > 0, err
			}
			return &ColumnBatch{Columns: c.cols, Data: data}, n > 0, closeErr
		}
		raw := make([]any, len(c.cols))
		ptrs := make([]any, len(c.cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			c.Close()
			return nil, false, err
		}
		for i, name := range c.cols {
			data[name] = append(data[name], raw[i])
		}
		n++
	}
	return &ColumnBatch{Columns: c.cols, Data: data}, true, nil
}

// Close releases the underlying cursor. Safe to call more than once.
func (c *ColumnStream) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
