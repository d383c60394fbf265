package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/sqlorc/core/internal/storage"
)

// PgvectorIndex implements Index over a Postgres table of table embeddings,
// using pgvector's cosine-distance query pattern (cosine distance via the
// `<=>` operator) applied to schema-table rows instead of decision rows.
type PgvectorIndex struct {
	pool *pgxpool.Pool
}

// NewPgvectorIndex takes the shared storage.DB wrapper rather than a raw
// pool, so the pgvector codec registration in pool.go's AfterConnect hook
// covers this index's connections too. The caller is responsible for
// having run the schema_table_embeddings migration.
func NewPgvectorIndex(db *storage.DB) *PgvectorIndex {
	return &PgvectorIndex{pool: db.Pool()}
}

// Upsert writes one row per table, keyed by (db_id, table_name).
func (p *PgvectorIndex) Upsert(ctx context.Context, entries []TableEmbedding) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO schema_table_embeddings (db_id, table_name, description, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (db_id, table_name) DO UPDATE
			SET description = EXCLUDED.description, embedding = EXCLUDED.embedding`,
			e.DBID, e.Table, e.Description, pgvector.NewVector(e.Vector))
		if err != nil {
			return fmt.Errorf("catalog: upsert table embedding %s.%s: %w", e.DBID, e.Table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("catalog: commit upsert tx: %w", err)
	}
	return nil
}

// Search ranks tables within dbIDs by cosine distance to queryVector.
func (p *PgvectorIndex) Search(ctx context.Context, dbIDs []string, queryVector []float32, topK int) ([]TableRef, error) {
	if topK <= 0 {
		topK = 10
	}
	rows, err := p.pool.Query(ctx, `
		SELECT db_id, table_name
		FROM schema_table_embeddings
		WHERE db_id = ANY($1)
		ORDER BY embedding <=> $2
		LIMIT $3`,
		dbIDs, pgvector.NewVector(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("catalog: pgvector search: %w", err)
	}
	defer rows.Close()

	var out []TableRef
	for rows.Next() {
		var ref TableRef
		if err := rows.Scan(&ref.DBID, &ref.Table); err != nil {
			return nil, fmt.Errorf("catalog: scan table ref: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
