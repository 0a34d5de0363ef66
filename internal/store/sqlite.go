package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/amaret/converge/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a local, file-backed record store. It implements the same
// collaborator interface a remote store would, which makes it useful for
// offline reconciliation and integration-style tests.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Search implements Reader. Id conditions are evaluated in SQL; field
// conditions are evaluated against decoded values, which is fine at the
// scale a local store sees.
func (s *SQLite) Search(ctx context.Context, model string, domain Domain) ([]int64, error) {
	query := "SELECT DISTINCT id FROM records WHERE model = ?"
	args := []any{model}

	var fieldConds Domain
	for _, cond := range domain {
		if cond.Field != "id" {
			fieldConds = append(fieldConds, cond)
			continue
		}
		switch cond.Op {
		case "=", "":
			query += " AND id = ?"
			args = append(args, cond.Value)
		case "in":
			ids, ok := cond.Value.([]int64)
			if !ok {
				return nil, fmt.Errorf("id 'in' condition requires []int64, got %T", cond.Value)
			}
			if len(ids) == 0 {
				return nil, nil
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
			query += " AND id IN (" + placeholders + ")"
			for _, id := range ids {
				args = append(args, id)
			}
		default:
			return nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
	}

	rows, err := s.db.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", model, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(fieldConds) == 0 {
		return ids, nil
	}

	// Field conditions: decode each candidate and filter in Go.
	var out []int64
	for _, id := range ids {
		rec, err := s.readOne(ctx, model, id, nil)
		if err != nil {
			return nil, err
		}
		if rec != nil && matches(id, rec, fieldConds) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Read implements Reader.
func (s *SQLite) Read(ctx context.Context, model string, ids []int64, fields []string) ([]*record.Fields, error) {
	var out []*record.Fields
	for _, id := range ids {
		rec, err := s.readOne(ctx, model, id, fields)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		result := record.NewFields()
		result.Set("id", record.Int(id))
		for _, name := range rec.Keys() {
			v, _ := rec.Get(name)
			result.Set(name, v)
		}
		out = append(out, result)
	}
	return out, nil
}

// Create implements Store.
func (s *SQLite) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO id_sequences (model, next_id) VALUES (?, 2)
		 ON CONFLICT(model) DO UPDATE SET next_id = next_id + 1
		 RETURNING next_id - 1`, model).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate id for %s: %w", model, err)
	}

	if err := writeFields(ctx, tx, model, id, values); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Write implements Store.
func (s *SQLite) Write(ctx context.Context, model string, ids []int64, values map[string]any) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, id := range ids {
		exists, err := recordExists(ctx, tx, model, id)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, &NotFoundError{Model: model, ID: id}
		}
		if err := writeFields(ctx, tx, model, id, values); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Unlink implements Store.
func (s *SQLite) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, "DELETE FROM records WHERE model = ? AND id = ?", model, id)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, &NotFoundError{Model: model, ID: id}
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// readOne loads one record's fields, nil when the record is absent.
func (s *SQLite) readOne(ctx context.Context, model string, id int64, fields []string) (*record.Fields, error) {
	query := "SELECT field, value FROM records WHERE model = ? AND id = ?"
	args := []any{model, id}
	if len(fields) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fields)), ",")
		query += " AND field IN (" + placeholders + ")"
		for _, f := range fields {
			args = append(args, f)
		}
	}

	rows, err := s.db.QueryContext(ctx, query+" ORDER BY field", args...)
	if err != nil {
		return nil, fmt.Errorf("read %s(%d): %w", model, id, err)
	}
	defer rows.Close()

	rec := record.NewFields()
	found := false
	for rows.Next() {
		var field, raw string
		if err := rows.Scan(&field, &raw); err != nil {
			return nil, err
		}
		found = true
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s(%d).%s: %w", model, id, field, err)
		}
		rec.Set(field, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

func recordExists(ctx context.Context, tx *sql.Tx, model string, id int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM records WHERE model = ? AND id = ? LIMIT 1", model, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func writeFields(ctx context.Context, tx *sql.Tx, model string, id int64, values map[string]any) error {
	// Deterministic field order keeps the write path reproducible.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := json.Marshal(values[name])
		if err != nil {
			return fmt.Errorf("encode %s(%d).%s: %w", model, id, name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (model, id, field, value) VALUES (?, ?, ?, ?)
			 ON CONFLICT(model, id, field) DO UPDATE SET value = excluded.value`,
			model, id, name, string(raw))
		if err != nil {
			return fmt.Errorf("write %s(%d).%s: %w", model, id, name, err)
		}
	}
	return nil
}

// decodeValue parses a stored JSON value back into a tagged value,
// keeping integers as Int rather than float64.
func decodeValue(raw string) (record.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return record.FromNative(v)
}
