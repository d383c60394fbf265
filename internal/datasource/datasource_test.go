package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/model"
)

type fakeDS struct {
	result model.QueryResult
	err    error
	closed bool
}

func (f *fakeDS) Execute(ctx context.Context, sql string) (model.QueryResult, error) {
	return f.result, f.err
}
func (f *fakeDS) TestConnection(ctx context.Context) error { return nil }
func (f *fakeDS) Close()                                   { f.closed = true }

func testManager(t *testing.T) *Manager {
	t.Helper()
	backends := map[string]Datasource{
		"customer_db": &fakeDS{result: model.QueryResult{OK: true, RowCount: 1}},
		"accounts_db": &fakeDS{result: model.QueryResult{OK: true, RowCount: 5}},
	}
	sources := []model.DataSource{
		{ID: "customer_db", Name: "Customers", Description: "customer records"},
		{ID: "accounts_db", Name: "Accounts", Description: "account balances"},
	}
	m, err := New(backends, sources)
	require.NoError(t, err)
	return m
}

func TestValidateScopeSingleDB(t *testing.T) {
	m := testManager(t)
	res := m.ValidateScope([]string{"customer_db"})
	assert.True(t, res.OK)
	assert.Equal(t, "customer_db", res.Datasource)
}

func TestValidateScopeSpansDatasourcesFails(t *testing.T) {
	m := testManager(t)
	res := m.ValidateScope([]string{"customer_db", "accounts_db"})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestValidateScopeUnknownDB(t *testing.T) {
	m := testManager(t)
	res := m.ValidateScope([]string{"ghost_db"})
	assert.False(t, res.OK)
}

func TestValidateScopeEmpty(t *testing.T) {
	m := testManager(t)
	res := m.ValidateScope(nil)
	assert.False(t, res.OK)
}

func TestExecuteRejectsNonReadOnly(t *testing.T) {
	m := testManager(t)
	res, err := m.Execute(context.Background(), "DELETE FROM customers", "customer_db")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, model.ErrCategoryPermission, res.Category)
}

func TestExecuteAllowsSelectAndWith(t *testing.T) {
	m := testManager(t)
	for _, sql := range []string{"SELECT * FROM customers", "WITH x AS (SELECT 1) SELECT * FROM x"} {
		res, err := m.Execute(context.Background(), sql, "customer_db")
		require.NoError(t, err)
		assert.True(t, res.OK)
	}
}

func TestExecuteUnknownDatabase(t *testing.T) {
	m := testManager(t)
	res, err := m.Execute(context.Background(), "SELECT 1", "ghost_db")
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestListSourcesReturnsEveryEntry(t *testing.T) {
	m := testManager(t)
	infos := m.ListSources()
	require.Len(t, infos, 2)
}

func TestCheckReadOnlyCaseInsensitive(t *testing.T) {
	require.NoError(t, checkReadOnly("select 1"))
	require.NoError(t, checkReadOnly("  with x as (select 1) select * from x"))
	require.Error(t, checkReadOnly("insert into t values (1)"))
	require.Error(t, checkReadOnly("-- comment\nDROP TABLE t"))
}
