package knowledge

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDatasourceConfigs(t *testing.T) {
	fsys := fstest.MapFS{
		"datasources.yaml": &fstest.MapFile{Data: []byte(`
datasources:
  customer_db:
    type: postgres
    enabled: true
    connection:
      host: "localhost"
      port: "5432"
`)},
	}

	cfgs, err := LoadDatasourceConfigs(fsys, "datasources.yaml")
	require.NoError(t, err)
	require.Contains(t, cfgs, "customer_db")
	assert.Equal(t, "postgres", cfgs["customer_db"].Type)
	assert.True(t, cfgs["customer_db"].Enabled)
	assert.Equal(t, "localhost", cfgs["customer_db"].Connection["host"])
}

func TestLoadCatalogSkipsDisabledDatasources(t *testing.T) {
	fsys := fstest.MapFS{
		"data_schemas/summary.yaml": &fstest.MapFile{Data: []byte(`
data_sources:
  - id: customer_db
    name: Customer Records
    description: customer identity
    datasource: customer_db
  - id: archived_db
    name: Archived
    description: old data
    datasource: archived_db
`)},
		"data_schemas/customer_db.yaml": &fstest.MapFile{Data: []byte(`
db_id: customer_db
description: customer identity
tables:
  - name: customers
    description: one row per customer
    columns:
      - name: id
        type: bigint
        nullable: false
        description: primary key
`)},
	}

	dsConfigs := map[string]DatasourceConfig{
		"customer_db": {Type: "postgres", Enabled: true},
		"archived_db": {Type: "postgres", Enabled: false},
	}

	sources, schemas, err := LoadCatalog(fsys, "data_schemas/summary.yaml", dsConfigs)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "customer_db", sources[0].ID)
	assert.Equal(t, "postgres", sources[0].Type)

	require.Len(t, schemas, 1)
	assert.Equal(t, "customer_db", schemas[0].DBID)
	require.Len(t, schemas[0].Tables, 1)
	assert.Equal(t, "customers", schemas[0].Tables[0].Name)
}

func TestLoadCatalogRejectsMismatchedDatasourceName(t *testing.T) {
	fsys := fstest.MapFS{
		"data_schemas/summary.yaml": &fstest.MapFile{Data: []byte(`
data_sources:
  - id: customer_db
    name: Customer Records
    description: customer identity
    datasource: some_other_name
`)},
	}

	_, _, err := LoadCatalog(fsys, "data_schemas/summary.yaml", map[string]DatasourceConfig{
		"customer_db": {Type: "postgres", Enabled: true},
	})
	require.Error(t, err)
}

func TestLoadCatalogMissingDatasourceEntry(t *testing.T) {
	fsys := fstest.MapFS{
		"data_schemas/summary.yaml": &fstest.MapFile{Data: []byte(`
data_sources:
  - id: unknown_db
    name: Unknown
    description: not configured
    datasource: unknown_db
`)},
	}

	_, _, err := LoadCatalog(fsys, "data_schemas/summary.yaml", map[string]DatasourceConfig{})
	require.Error(t, err)
}
