package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Querier is the query surface used by tool handlers. Queries use ? placeholders.
type Querier interface {
	// Query returns all rows. An empty result is an empty, non-nil slice.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// QueryOne returns the first row, or nil when there is none.
	QueryOne(ctx context.Context, query string, args ...any) (Row, error)
	// ExecInsert runs an INSERT and returns the new row id.
	ExecInsert(ctx context.Context, query string, args ...any) (int64, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// WithTx runs fn inside a transaction. It commits when fn returns nil and rolls
	// back otherwise. Calling WithTx on a transaction reuses it.
	WithTx(ctx context.Context, fn func(q Querier) error) error
}

// runner is the subset of *sql.DB and *sql.Tx the query helpers need.
type runner interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	*sql.DB
}

var _ Querier = (*DB)(nil)

// New opens a connection pool and verifies it with a ping.
func New(databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Query implements Querier.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return queryRows(ctx, db.DB, query, args...)
}

// QueryOne implements Querier.
func (db *DB) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	return queryOne(ctx, db.DB, query, args...)
}

// ExecInsert implements Querier. "RETURNING id" is appended when the statement lacks it.
func (db *DB) ExecInsert(ctx context.Context, query string, args ...any) (int64, error) {
	return execInsert(ctx, db.DB, query, args...)
}

// Exec implements Querier.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execRows(ctx, db.DB, query, args...)
}

// WithTx implements Querier.
func (db *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx is a Querier bound to an open transaction.
type Tx struct {
	tx *sql.Tx
}

var _ Querier = (*Tx)(nil)

// Query implements Querier.
func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return queryRows(ctx, t.tx, query, args...)
}

// QueryOne implements Querier.
func (t *Tx) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	return queryOne(ctx, t.tx, query, args...)
}

// ExecInsert implements Querier.
func (t *Tx) ExecInsert(ctx context.Context, query string, args ...any) (int64, error) {
	return execInsert(ctx, t.tx, query, args...)
}

// Exec implements Querier.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execRows(ctx, t.tx, query, args...)
}

// WithTx runs fn in the already open transaction.
func (t *Tx) WithTx(_ context.Context, fn func(q Querier) error) error {
	return fn(t)
}

func queryRows(ctx context.Context, r runner, query string, args ...any) ([]Row, error) {
	rows, err := r.QueryContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func queryOne(ctx context.Context, r runner, query string, args ...any) (Row, error) {
	rows, err := queryRows(ctx, r, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func execInsert(ctx context.Context, r runner, query string, args ...any) (int64, error) {
	q := strings.TrimRight(strings.TrimSpace(query), ";")
	if !strings.Contains(strings.ToUpper(q), "RETURNING") {
		q += " RETURNING id"
	}
	var id int64
	if err := r.QueryRowContext(ctx, Rebind(q), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert: %w", err)
	}
	return id, nil
}

func execRows(ctx context.Context, r runner, query string, args ...any) (int64, error) {
	result, err := r.ExecContext(ctx, Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// normalizeValue converts driver byte slices (text, numeric) into strings so rows
// serialize as readable JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Rebind converts ? placeholders into PostgreSQL $n placeholders. Question marks inside
// single-quoted literals, double-quoted identifiers, and comments are left alone.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inSingle, inDouble, inLineComment := false, false, false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
			}
		case inSingle:
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			inLineComment = true
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
