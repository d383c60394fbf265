package model

// DataSource is a catalog entry: a logical database id, its human-facing
// name and description, and a reference to the physical datasource that
// serves it. The bijection between db id and datasource is enforced by
// internal/datasource, not by this type.
type DataSource struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Type        string `yaml:"type" json:"type"` // postgres | sqlite
	Connection  map[string]string `yaml:"connection" json:"-"`
}

// SchemaDefinition is the ordered table list for one logical db id.
type SchemaDefinition struct {
	DBID        string       `yaml:"db_id" json:"db_id"`
	Description string       `yaml:"description" json:"description"`
	Tables      []TableDef   `yaml:"tables" json:"tables"`
}

// TableDef describes one table within a SchemaDefinition.
type TableDef struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Columns     []ColumnDef `yaml:"columns" json:"columns"`
}

// ColumnDef describes one column of a TableDef. ForeignKey, when set, is a
// symbolic `db.table.column` reference — same-db or cross-db — never an
// object-graph pointer, so cyclic schema references never create runtime
// cycles.
type ColumnDef struct {
	Name        string  `yaml:"name" json:"name"`
	Type        string  `yaml:"type" json:"type"`
	Nullable    bool    `yaml:"nullable" json:"nullable"`
	Description string  `yaml:"description" json:"description"`
	ForeignKey  *string `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`
}

// PromptMode selects the verbosity of Catalog.FormatForPrompt.
type PromptMode string

const (
	ModePlanning   PromptMode = "planning"
	ModeGeneration PromptMode = "generation"
)
