// Package knowledge loads the declarative knowledge/ directory — physical
// datasource connection parameters and the logical database/schema catalog
// — into the types internal/datasource and internal/catalog build on.
package knowledge

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sqlorc/core/internal/model"
)

// DatasourceConfig is one physical datasource entry from datasources.yaml.
// Connection values may carry `${ENV_VAR:default}` placeholders, resolved
// by the datasource backend that opens the connection (e.g.
// internal/datasource/postgres.ResolveEnvVar).
type DatasourceConfig struct {
	Type       string            `yaml:"type"`
	Enabled    bool              `yaml:"enabled"`
	Connection map[string]string `yaml:"connection"`
}

type datasourcesFile struct {
	Datasources map[string]DatasourceConfig `yaml:"datasources"`
}

// LoadDatasourceConfigs parses datasources.yaml (path relative to fsys).
func LoadDatasourceConfigs(fsys fs.FS, path string) (map[string]DatasourceConfig, error) {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read %q: %w", path, err)
	}
	var f datasourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("knowledge: parse %q: %w", path, err)
	}
	return f.Datasources, nil
}

type summaryEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Datasource  string `yaml:"datasource"`
}

type summaryFile struct {
	DataSources []summaryEntry `yaml:"data_sources"`
}

// LoadCatalog reads summaryPath (data_schemas/summary.yaml) for the
// db id/name/description list, then reads `<id>.yaml` alongside it for
// each db's table schema. dsConfigs supplies each db's connection type
// (postgres/sqlite) and its enabled flag — entries with Enabled == false
// are skipped entirely, so a database that isn't reachable in a given
// deployment never reaches the catalog or the datasource manager.
//
// Every summary entry's Datasource field, when set, must equal its ID (an
// empty field is accepted) — the
// one-database-per-datasource bijection internal/datasource.Manager
// enforces is authored here, in the knowledge files, not computed.
func LoadCatalog(fsys fs.FS, summaryPath string, dsConfigs map[string]DatasourceConfig) ([]model.DataSource, []model.SchemaDefinition, error) {
	raw, err := fs.ReadFile(fsys, summaryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge: read %q: %w", summaryPath, err)
	}
	var summary summaryFile
	if err := yaml.Unmarshal(raw, &summary); err != nil {
		return nil, nil, fmt.Errorf("knowledge: parse %q: %w", summaryPath, err)
	}

	dir := summaryPath
	if idx := strings.LastIndex(summaryPath, "/"); idx >= 0 {
		dir = summaryPath[:idx]
	} else {
		dir = "."
	}

	var sources []model.DataSource
	var schemas []model.SchemaDefinition
	for _, entry := range summary.DataSources {
		if entry.Datasource != "" && entry.Datasource != entry.ID {
			return nil, nil, fmt.Errorf("knowledge: db id %q names datasource %q, bijection requires them equal", entry.ID, entry.Datasource)
		}

		dsCfg, ok := dsConfigs[entry.ID]
		if !ok {
			return nil, nil, fmt.Errorf("knowledge: db id %q has no matching datasources.yaml entry", entry.ID)
		}
		if !dsCfg.Enabled {
			continue
		}

		schemaPath := dir + "/" + entry.ID + ".yaml"
		schemaRaw, err := fs.ReadFile(fsys, schemaPath)
		if err != nil {
			return nil, nil, fmt.Errorf("knowledge: read schema %q: %w", schemaPath, err)
		}
		var schema model.SchemaDefinition
		if err := yaml.Unmarshal(schemaRaw, &schema); err != nil {
			return nil, nil, fmt.Errorf("knowledge: parse schema %q: %w", schemaPath, err)
		}

		sources = append(sources, model.DataSource{
			ID:          entry.ID,
			Name:        entry.Name,
			Description: entry.Description,
			Type:        dsCfg.Type,
			Connection:  dsCfg.Connection,
		})
		schemas = append(schemas, schema)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].DBID < schemas[j].DBID })

	return sources, schemas, nil
}
