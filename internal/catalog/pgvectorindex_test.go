package catalog_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/storage"
	"github.com/sqlorc/core/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

// vec1536 returns a 1536-dimension vector with lead set to the distinguishing
// values, matching the schema_table_embeddings migration's vector(1536) column.
func vec1536(lead ...float32) []float32 {
	v := make([]float32, 1536)
	copy(v, lead)
	return v
}

func TestPgvectorIndexUpsertAndSearchRanksByCosineDistance(t *testing.T) {
	idx := catalog.NewPgvectorIndex(testDB)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []catalog.TableEmbedding{
		{DBID: "loans_db", Table: "accounts", Description: "customer accounts", Vector: vec1536(1, 0, 0)},
		{DBID: "loans_db", Table: "payments", Description: "payment history", Vector: vec1536(0, 1, 0)},
		{DBID: "compliance_db", Table: "audits", Description: "audit log", Vector: vec1536(0, 0, 1)},
	}))

	refs, err := idx.Search(ctx, []string{"loans_db"}, vec1536(1, 0, 0), 5)
	require.NoError(t, err)
	require.NotEmpty(t, refs)
	assert.Equal(t, catalog.TableRef{DBID: "loans_db", Table: "accounts"}, refs[0])

	for _, ref := range refs {
		assert.Equal(t, "loans_db", ref.DBID)
	}
}

func TestPgvectorIndexUpsertIsIdempotentOnConflict(t *testing.T) {
	idx := catalog.NewPgvectorIndex(testDB)
	ctx := context.Background()

	entry := catalog.TableEmbedding{DBID: "loans_db", Table: "loans", Description: "original", Vector: vec1536(1, 1, 0)}
	require.NoError(t, idx.Upsert(ctx, []catalog.TableEmbedding{entry}))

	entry.Description = "updated"
	entry.Vector = vec1536(0, 0, 1)
	require.NoError(t, idx.Upsert(ctx, []catalog.TableEmbedding{entry}))

	refs, err := idx.Search(ctx, []string{"loans_db"}, vec1536(0, 0, 1), 1)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "loans", refs[0].Table)
}

func TestPgvectorIndexSearchScopesToRequestedDatabases(t *testing.T) {
	idx := catalog.NewPgvectorIndex(testDB)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []catalog.TableEmbedding{
		{DBID: "scoped_a", Table: "t1", Description: "a", Vector: vec1536(1, 0, 0)},
		{DBID: "scoped_b", Table: "t2", Description: "b", Vector: vec1536(1, 0, 0)},
	}))

	refs, err := idx.Search(ctx, []string{"scoped_a"}, vec1536(1, 0, 0), 10)
	require.NoError(t, err)
	for _, ref := range refs {
		assert.Equal(t, "scoped_a", ref.DBID)
	}
}
