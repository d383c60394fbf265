// Package postgres implements datasource.Datasource over a pgxpool.Pool,
// grounded on a pgxpool connection-pool setup.
package postgres

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/storage"
)

// Config is one datasource's connection parameters, as loaded from
// knowledge/datasources.yaml. Values may contain `${ENV_VAR:default}`
// placeholders, resolved by ResolveEnvVar before Open — grounded on
// original_source/backend/app/datasources/postgresql.py's _resolve_env_vars.
type Config struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	MinPoolSize    int
	MaxPoolSize    int
	ConnectTimeout time.Duration
}

const (
	maxTransientRetries     = 2
	transientRetryBaseDelay = 50 * time.Millisecond
)

var envPlaceholder = regexp.MustCompile(`^\$\{([^:}]+)(?::([^}]*))?\}$`)

// ResolveEnvVar resolves a single `${ENV_VAR:default}` or `${ENV_VAR}`
// placeholder. Values without the placeholder syntax are returned as-is.
func ResolveEnvVar(raw string) string {
	m := envPlaceholder.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	envVar, def := m[1], m[2]
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return def
}

// DataSource is a pgxpool-backed Datasource. One instance serves exactly
// one logical db id, per the one-database-per-datasource bijection; "database" here
// maps to a Postgres schema selected via search_path, matching the
// common treatment of logical dbs as schemas within a
// shared cluster.
type DataSource struct {
	pool   *pgxpool.Pool
	schema string
}

// Open connects a bounded pool per Config's min/max/connect_timeout,
// grounded on pool.go's pgxpool.ParseConfig + pgxpool.NewWithConfig + Ping.
func Open(ctx context.Context, cfg Config, schema string) (*DataSource, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("datasource/postgres: parse dsn: %w", err)
	}
	if cfg.MinPoolSize > 0 {
		poolCfg.MinConns = int32(cfg.MinPoolSize)
	}
	if cfg.MaxPoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("datasource/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("datasource/postgres: ping: %w", err)
	}

	return &DataSource{pool: pool, schema: schema}, nil
}

// Execute sets search_path to this datasource's schema and runs sql,
// categorizing any failure the way the error-analysis stage expects
// (the category itself is assigned by the error-analysis LLM stage —
// Execute only reports the raw error text and a best-effort guess for
// the connection-vs-other split, since a dead pool is detectable without
// a model call).
func (d *DataSource) Execute(ctx context.Context, sql string) (model.QueryResult, error) {
	start := time.Now()

	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return model.QueryResult{
			OK:            false,
			Error:         err.Error(),
			Category:      model.ErrCategoryConnection,
			ElapsedMillis: time.Since(start).Milliseconds(),
		}, nil
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", pgx.Identifier{d.schema}.Sanitize())); err != nil {
		return model.QueryResult{
			OK:            false,
			Error:         err.Error(),
			Category:      model.ErrCategoryConnection,
			ElapsedMillis: time.Since(start).Milliseconds(),
		}, nil
	}

	var columns []string
	var result []map[string]any

	// A read-only statement can still hit a serialization failure or
	// deadlock under concurrent load on the shared cluster; retry those
	// transient classes a few times before surfacing the error to the
	// analyzer stage.
	queryErr := storage.WithRetry(ctx, maxTransientRetries, transientRetryBaseDelay, func() error {
		columns = nil
		result = nil

		rows, err := conn.Query(ctx, sql)
		if err != nil {
			return err
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		columns = make([]string, len(fields))
		for i, f := range fields {
			columns[i] = f.Name
		}

		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}
			result = append(result, row)
		}
		return rows.Err()
	})
	if queryErr != nil {
		return model.QueryResult{OK: false, Error: queryErr.Error(), ElapsedMillis: time.Since(start).Milliseconds()}, nil
	}

	return model.QueryResult{
		OK:            true,
		Columns:       columns,
		Rows:          result,
		RowCount:      len(result),
		ElapsedMillis: time.Since(start).Milliseconds(),
	}, nil
}

// TestConnection pings the pool.
func (d *DataSource) TestConnection(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases the pool.
func (d *DataSource) Close() {
	d.pool.Close()
}

// ParsePort parses a config-file port value that may arrive as a string
// (YAML doesn't distinguish "5432" from 5432 when env-interpolated).
func ParsePort(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	return strconv.Atoi(raw)
}
