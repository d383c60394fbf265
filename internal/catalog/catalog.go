// Package catalog loads the declarative datasource and schema catalog and
// formats schema excerpts for LLM prompts.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sqlorc/core/internal/model"
)

// indexTablesConcurrency bounds how many embedding calls IndexTables issues
// at once, so bootstrap against a large catalog doesn't open one HTTP
// connection per table.
const indexTablesConcurrency = 8

// SemanticThresholdDefault is the table count at or above which
// RelevantTables narrows a database's tables by semantic search instead of
// returning every table. FormatForPrompt does not consult it and always
// lists every table.
const SemanticThresholdDefault = 25

// TableRef identifies one table within a database, used as the result of
// semantic narrowing.
type TableRef struct {
	DBID  string
	Table string
}

// Index performs semantic nearest-table lookup over table name+description
// embeddings. Two implementations exist: a pgvector-backed store
// (internal/catalog/pgvectorindex.go) and a collection on a Qdrant server
// reached over gRPC (internal/catalog/qdrantindex.go) — callers pick whichever vector backend
// their deployment already runs.
type Index interface {
	Upsert(ctx context.Context, entries []TableEmbedding) error
	Search(ctx context.Context, dbIDs []string, queryVector []float32, topK int) ([]TableRef, error)
}

// Embedder produces a vector embedding for a piece of text. Table
// descriptions are embedded once at load time; user questions are embedded
// per RelevantTables call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TableEmbedding is one table's embedding input, passed to Index.Upsert.
type TableEmbedding struct {
	DBID        string
	Table       string
	Description string
	Vector      []float32
}

// Catalog is the immutable, process-lifetime schema catalog. It is built
// once via New and never mutated afterward — hot reload is a non-goal.
type Catalog struct {
	sources   map[string]model.DataSource
	schemas   map[string]model.SchemaDefinition
	order     []string // db ids sorted by id, for stable ListDatabases output

	index     Index
	embedder  Embedder
	threshold int
}

// Option configures a Catalog at construction time.
type Option func(*Catalog)

// WithSemanticIndex wires a vector Index and Embedder for RelevantTables.
// Without this option RelevantTables falls back to returning every table.
func WithSemanticIndex(idx Index, emb Embedder) Option {
	return func(c *Catalog) { c.index = idx; c.embedder = emb }
}

// WithSemanticThreshold overrides SemanticThresholdDefault.
func WithSemanticThreshold(n int) Option {
	return func(c *Catalog) { c.threshold = n }
}

// New builds a Catalog from loaded datasource summaries and per-db schemas.
// Every schema's DBID must have a matching DataSource entry, and vice versa
// — this is validated here so an incomplete knowledge/ directory fails fast
// at startup rather than mid-turn.
func New(sources []model.DataSource, schemas []model.SchemaDefinition, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		sources:   make(map[string]model.DataSource, len(sources)),
		schemas:   make(map[string]model.SchemaDefinition, len(schemas)),
		threshold: SemanticThresholdDefault,
	}
	for _, s := range sources {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog: datasource entry missing id")
		}
		c.sources[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	for _, sd := range schemas {
		if _, ok := c.sources[sd.DBID]; !ok {
			return nil, fmt.Errorf("catalog: schema for unknown db id %q", sd.DBID)
		}
		c.schemas[sd.DBID] = sd
	}
	for id := range c.sources {
		if _, ok := c.schemas[id]; !ok {
			return nil, fmt.Errorf("catalog: db id %q has no schema definition", id)
		}
	}
	sort.Strings(c.order)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ErrUnknownDB is returned by SchemaFor for an id not present in the
// catalog.
var ErrUnknownDB = fmt.Errorf("catalog: unknown database id")

// ListDatabases returns every logical db id in the catalog, sorted.
func (c *Catalog) ListDatabases() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// HasDatabase reports whether dbID is a known catalog entry.
func (c *Catalog) HasDatabase(dbID string) bool {
	_, ok := c.sources[dbID]
	return ok
}

// ListSources returns the {id, name, description} summary for every
// database, the shape GET /data-sources and the validator prompt need.
func (c *Catalog) ListSources() []model.SourceInfo {
	out := make([]model.SourceInfo, 0, len(c.order))
	for _, id := range c.order {
		s := c.sources[id]
		out = append(out, model.SourceInfo{DBID: s.ID, Name: s.Name, Description: s.Description})
	}
	return out
}

// SchemaFor returns the schema definition for one db id.
func (c *Catalog) SchemaFor(dbID string) (model.SchemaDefinition, error) {
	sd, ok := c.schemas[dbID]
	if !ok {
		return model.SchemaDefinition{}, fmt.Errorf("%w: %s", ErrUnknownDB, dbID)
	}
	return sd, nil
}

// HasTable reports whether table exists within dbID's schema.
func (c *Catalog) HasTable(dbID, table string) bool {
	sd, ok := c.schemas[dbID]
	if !ok {
		return false
	}
	for _, t := range sd.Tables {
		if t.Name == table {
			return true
		}
	}
	return false
}

// FormatForPrompt renders schema excerpts for the given db ids. In
// ModePlanning it lists tables, descriptions, and the first few columns
// with types; in ModeGeneration it lists every column with nullability and
// FK targets. Unknown db ids are skipped with a placeholder line rather
// than an error, matching a human-written schema summary's tolerant style.
func (c *Catalog) FormatForPrompt(dbIDs []string, mode model.PromptMode) string {
	var b strings.Builder
	for _, dbID := range dbIDs {
		sd, ok := c.schemas[dbID]
		if !ok {
			fmt.Fprintf(&b, "### %s\n(schema information not available)\n\n", dbID)
			continue
		}
		fmt.Fprintf(&b, "### %s\n", dbID)
		for _, t := range sd.Tables {
			fmt.Fprintf(&b, "\n**Table: %s.%s**\n", dbID, t.Name)
			fmt.Fprintf(&b, "Description: %s\n", t.Description)
			b.WriteString("Columns:\n")
			cols := t.Columns
			if mode == model.ModePlanning && len(cols) > 5 {
				cols = cols[:5]
			}
			for _, col := range cols {
				nullable := "NULL"
				if !col.Nullable {
					nullable = "NOT NULL"
				}
				if mode == model.ModePlanning {
					fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Type)
					continue
				}
				fmt.Fprintf(&b, "  - %s (%s, %s): %s\n", col.Name, col.Type, nullable, col.Description)
				if col.ForeignKey != nil {
					fmt.Fprintf(&b, "    FK -> %s\n", *col.ForeignKey)
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RelevantTables narrows generation-mode detail for large catalogs. Below
// threshold tables for a db, every table is returned unchanged (so
// FormatForPrompt never drops anything when narrowing isn't needed). At or
// above threshold, and only when a semantic Index is configured, the topK
// nearest tables by embedding similarity to query are returned instead.
func (c *Catalog) RelevantTables(ctx context.Context, dbIDs []string, query string, topK int) ([]TableRef, error) {
	var all []TableRef
	var large []string
	for _, dbID := range dbIDs {
		sd, ok := c.schemas[dbID]
		if !ok {
			continue
		}
		if len(sd.Tables) < c.threshold || c.index == nil || c.embedder == nil {
			for _, t := range sd.Tables {
				all = append(all, TableRef{DBID: dbID, Table: t.Name})
			}
			continue
		}
		large = append(large, dbID)
	}
	if len(large) == 0 {
		return all, nil
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: embed query: %w", err)
	}
	narrowed, err := c.index.Search(ctx, large, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("catalog: semantic search: %w", err)
	}
	return append(all, narrowed...), nil
}

// IndexTables embeds and upserts every table's name+description into the
// configured semantic Index. Called once during bootstrap after New; a
// no-op when no Index is configured. Embedding calls run concurrently,
// bounded by indexTablesConcurrency, since each is an independent HTTP
// round trip to the embedder.
func (c *Catalog) IndexTables(ctx context.Context) error {
	if c.index == nil || c.embedder == nil {
		return nil
	}

	type tableRef struct {
		dbID, name, description string
	}
	var refs []tableRef
	for dbID, sd := range c.schemas {
		for _, t := range sd.Tables {
			refs = append(refs, tableRef{dbID: dbID, name: t.Name, description: t.Description})
		}
	}
	if len(refs) == 0 {
		return nil
	}

	entries := make([]TableEmbedding, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexTablesConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, ref.name+": "+ref.description)
			if err != nil {
				return fmt.Errorf("catalog: embed table %s.%s: %w", ref.dbID, ref.name, err)
			}
			entries[i] = TableEmbedding{DBID: ref.dbID, Table: ref.name, Description: ref.description, Vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return c.index.Upsert(ctx, entries)
}
