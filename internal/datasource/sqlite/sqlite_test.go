package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteSelect(t *testing.T) {
	ctx := context.Background()
	ds, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.Exec(ctx, "CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)"))
	require.NoError(t, ds.Exec(ctx, "INSERT INTO customers (name) VALUES ('ann'), ('bo')"))

	res, err := ds.Execute(ctx, "SELECT COUNT(*) AS n FROM customers")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0]["n"])
}

func TestExecuteSyntaxError(t *testing.T) {
	ctx := context.Background()
	ds, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer ds.Close()

	res, err := ds.Execute(ctx, "SELEKT * FROM nowhere")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestTestConnection(t *testing.T) {
	ctx := context.Background()
	ds, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer ds.Close()
	assert.NoError(t, ds.TestConnection(ctx))
}
