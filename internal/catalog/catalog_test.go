package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/model"
)

func testCatalog(t *testing.T, opts ...Option) *Catalog {
	t.Helper()
	sources := []model.DataSource{
		{ID: "customer_db", Name: "Customers", Description: "Customer records"},
		{ID: "accounts_db", Name: "Accounts", Description: "Account balances"},
	}
	schemas := []model.SchemaDefinition{
		{
			DBID:        "customer_db",
			Description: "customer data",
			Tables: []model.TableDef{
				{
					Name:        "customers",
					Description: "one row per customer",
					Columns: []model.ColumnDef{
						{Name: "id", Type: "bigint", Nullable: false, Description: "primary key"},
						{Name: "name", Type: "text", Nullable: false, Description: "full name"},
					},
				},
			},
		},
		{
			DBID:        "accounts_db",
			Description: "account data",
			Tables: []model.TableDef{
				{
					Name:        "accounts",
					Description: "one row per account",
					Columns: []model.ColumnDef{
						{Name: "id", Type: "bigint", Nullable: false, Description: "primary key"},
						{Name: "customer_id", Type: "bigint", Nullable: false, Description: "owner", ForeignKey: strPtr("customer_db.customers.id")},
						{Name: "balance", Type: "numeric", Nullable: false, Description: "current balance"},
					},
				},
			},
		},
	}
	c, err := New(sources, schemas, opts...)
	require.NoError(t, err)
	return c
}

func strPtr(s string) *string { return &s }

func TestListDatabasesSorted(t *testing.T) {
	c := testCatalog(t)
	assert.Equal(t, []string{"accounts_db", "customer_db"}, c.ListDatabases())
}

func TestSchemaForUnknownDB(t *testing.T) {
	c := testCatalog(t)
	_, err := c.SchemaFor("nope")
	require.ErrorIs(t, err, ErrUnknownDB)
}

func TestFormatForPromptGenerationIncludesFK(t *testing.T) {
	c := testCatalog(t)
	out := c.FormatForPrompt([]string{"accounts_db"}, model.ModeGeneration)
	assert.Contains(t, out, "customer_id")
	assert.Contains(t, out, "FK -> customer_db.customers.id")
	assert.Contains(t, out, "NOT NULL")
}

func TestFormatForPromptUnknownDBPlaceholder(t *testing.T) {
	c := testCatalog(t)
	out := c.FormatForPrompt([]string{"ghost_db"}, model.ModePlanning)
	assert.Contains(t, out, "schema information not available")
}

func TestRelevantTablesBelowThresholdReturnsAll(t *testing.T) {
	c := testCatalog(t)
	refs, err := c.RelevantTables(context.Background(), []string{"customer_db", "accounts_db"}, "top customers", 5)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestMissingDatasourceForSchemaRejected(t *testing.T) {
	_, err := New(nil, []model.SchemaDefinition{{DBID: "orphan"}})
	require.Error(t, err)
}

func TestMissingSchemaForDatasourceRejected(t *testing.T) {
	_, err := New([]model.DataSource{{ID: "lonely"}}, nil)
	require.Error(t, err)
}

type fakeIndex struct {
	upserted []TableEmbedding
}

func (f *fakeIndex) Upsert(_ context.Context, entries []TableEmbedding) error {
	f.upserted = append(f.upserted, entries...)
	return nil
}

func (f *fakeIndex) Search(context.Context, []string, []float32, int) ([]TableRef, error) {
	return nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func TestIndexTablesUpsertsEveryTable(t *testing.T) {
	idx := &fakeIndex{}
	c := testCatalog(t, WithSemanticIndex(idx, fakeEmbedder{}))

	require.NoError(t, c.IndexTables(context.Background()))
	require.Len(t, idx.upserted, 2)

	byTable := make(map[string]TableEmbedding, len(idx.upserted))
	for _, e := range idx.upserted {
		byTable[e.Table] = e
	}
	assert.Contains(t, byTable, "customers")
	assert.Contains(t, byTable, "accounts")
}

func TestIndexTablesNoopWithoutSemanticIndex(t *testing.T) {
	c := testCatalog(t)
	require.NoError(t, c.IndexTables(context.Background()))
}
