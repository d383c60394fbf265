// Package sqlite implements datasource.Datasource over modernc.org/sqlite,
// a pure-Go (no CGO) SQL driver. It backs datasources of type "sqlite" and
// the package's own integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sqlorc/core/internal/model"
)

// DataSource is a database/sql-backed Datasource over a single SQLite file
// (or ":memory:").
type DataSource struct {
	db *sql.DB
}

// Open opens (and, for a new file, creates) the SQLite database at path.
func Open(ctx context.Context, path string) (*DataSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("datasource/sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("datasource/sqlite: ping %q: %w", path, err)
	}
	return &DataSource{db: db}, nil
}

// Exec runs a non-query statement, used by callers seeding a demo dataset
// before serving queries against it. Not part of the Datasource interface —
// generated SQL never reaches this path.
func (d *DataSource) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := d.db.ExecContext(ctx, sql, args...)
	return err
}

// Execute runs sql and returns its result. A failure is reported as
// OK == false with the raw error text; no Category is assigned.
func (d *DataSource) Execute(ctx context.Context, query string) (model.QueryResult, error) {
	start := time.Now()

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return model.QueryResult{
			OK:            false,
			Error:         err.Error(),
			ElapsedMillis: time.Since(start).Milliseconds(),
		}, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return model.QueryResult{OK: false, Error: err.Error(), ElapsedMillis: time.Since(start).Milliseconds()}, nil
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return model.QueryResult{OK: false, Error: err.Error(), ElapsedMillis: time.Since(start).Milliseconds()}, nil
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return model.QueryResult{OK: false, Error: err.Error(), ElapsedMillis: time.Since(start).Milliseconds()}, nil
	}

	return model.QueryResult{
		OK:            true,
		Columns:       columns,
		Rows:          result,
		RowCount:      len(result),
		ElapsedMillis: time.Since(start).Milliseconds(),
	}, nil
}

// TestConnection pings the database.
func (d *DataSource) TestConnection(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the database handle.
func (d *DataSource) Close() {
	d.db.Close()
}
