package source

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/pkg/postgres"
	"github.com/MotherTongues/mothertongues/pkg/resilience"
)

// Postgres reads entries from a table with columns (id, fields jsonb).
type Postgres struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

func NewPostgres(db *sql.DB, table string) *Postgres {
	return &Postgres{
		db:     db,
		table:  table,
		logger: slog.Default().With("component", "postgres-source", "table", table),
	}
}

func (p *Postgres) Name() string {
	return "postgres:" + p.table
}

func (p *Postgres) query() string {
	return fmt.Sprintf("SELECT id::text, fields FROM %s ORDER BY id", postgres.QualifiedTable(p.table))
}

func (p *Postgres) Load(ctx context.Context) ([]dictionary.Entry, error) {
	rows, err := p.db.QueryContext(ctx, p.query())
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []dictionary.Entry
	for rows.Next() {
		var id string
		var fields []byte
		if err := rows.Scan(&id, &fields); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		entry, err := decodeRow(id, fields)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry rows: %w", err)
	}
	p.logger.Info("entries loaded", "count", len(entries))
	return entries, nil
}

// decodeRow turns one row into an Entry. A stray entryID key inside the
// fields document is dropped; the id column wins.
func decodeRow(id string, fields []byte) (dictionary.Entry, error) {
	entry := dictionary.Entry{ID: id, Fields: map[string]any{}}
	if len(bytes.TrimSpace(fields)) == 0 {
		return entry, nil
	}
	dec := json.NewDecoder(bytes.NewReader(fields))
	dec.UseNumber()
	if err := dec.Decode(&entry.Fields); err != nil {
		return dictionary.Entry{}, fmt.Errorf("decoding fields of entry %q: %w", id, err)
	}
	if entry.Fields == nil {
		entry.Fields = map[string]any{}
	}
	delete(entry.Fields, dictionary.IDField)
	return entry, nil
}
