// Package migrate reads an ordered list of migration scripts from a
// disk folder and applies the pending ones exactly once, tracking
// progress in a metadata table.
package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// statementBreakpoint is the delimiter migration SQL files use to
// separate individually-executed statements within one file.
const statementBreakpoint = "-- statement-breakpoint"

// Migration is one pending or applied migration script.
type Migration struct {
	Hash         string
	FolderMillis int64
	Statements   []string
}

// journalEntry is one record of the on-disk journal (meta/_journal.json).
type journalEntry struct {
	Idx  int    `json:"idx"`
	When int64  `json:"when"`
	Tag  string `json:"tag"`
}

// journalDocument is the whole journal file.
type journalDocument struct {
	Version string         `json:"version"`
	Dialect string         `json:"dialect"`
	Entries []journalEntry `json:"entries"`
}

// journalSchema describes the shape LoadJournal validates the journal
// document against before trusting it.
var journalSchema = map[string]any{
	"type":     "object",
	"required": []string{"entries"},
	"properties": map[string]any{
		"version": map[string]any{"type": "string"},
		"dialect": map[string]any{"type": "string"},
		"entries": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"idx", "when", "tag"},
				"properties": map[string]any{
					"idx":  map[string]any{"type": "integer"},
					"when": map[string]any{"type": "integer"},
					"tag":  map[string]any{"type": "string"},
				},
			},
		},
	},
}

// LoadJournal reads meta/_journal.json from dir, validates its shape,
// and resolves each entry's SQL file (dir/<tag>.sql) into a Migration,
// splitting its statements on statementBreakpoint. Entries are
// returned in the journal's own idx order.
func LoadJournal(dir string) ([]Migration, error) {
	journalPath := filepath.Join(dir, "meta", "_journal.json")
	raw, err := os.ReadFile(journalPath)
	if err != nil {
		return nil, fmt.Errorf("migrate: read journal: %w", err)
	}

	if err := validateJournal(raw); err != nil {
		return nil, fmt.Errorf("migrate: invalid journal: %w", err)
	}

	var doc journalDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("migrate: parse journal: %w", err)
	}

	entries := append([]journalEntry(nil), doc.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Idx < entries[j].Idx })

	migrations := make([]Migration, 0, len(entries))
	for _, e := range entries {
		sqlPath := filepath.Join(dir, e.Tag+".sql")
		content, err := os.ReadFile(sqlPath)
		if err != nil {
			return nil, fmt.Errorf("migrate: read migration %q: %w", e.Tag, err)
		}
		migrations = append(migrations, Migration{
			Hash:         sha256Hex(content),
			FolderMillis: e.When,
			Statements:   splitStatements(string(content)),
		})
	}
	return migrations, nil
}

func validateJournal(raw []byte) error {
	schemaBytes, err := json.Marshal(journalSchema)
	if err != nil {
		return fmt.Errorf("marshal journal schema: %w", err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return fmt.Errorf("unmarshal into jsonschema.Schema: %w", err)
	}

	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("resolve json schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal journal document: %w", err)
	}

	if err := resolved.Validate(doc); err != nil {
		return fmt.Errorf("journal validation failed: %w", err)
	}
	return nil
}

func splitStatements(content string) []string {
	parts := strings.Split(content, statementBreakpoint)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
