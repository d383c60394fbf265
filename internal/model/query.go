package model

// QueryResult is the outcome of executing one SQL statement against a
// datasource. Exactly one of Rows/RowCount or Error is meaningful,
// depending on OK.
type QueryResult struct {
	OK            bool             `json:"ok"`
	Columns       []string         `json:"columns,omitempty"`
	Rows          []map[string]any `json:"rows,omitempty"`
	RowCount      int              `json:"row_count"`
	Error         string           `json:"error,omitempty"`
	Category      ErrorCategory    `json:"category,omitempty"`
	ElapsedMillis int64            `json:"elapsed_ms"`
}

// ScopeResult is the outcome of datasource.Manager.ValidateScope.
type ScopeResult struct {
	OK         bool   `json:"ok"`
	Datasource string `json:"datasource,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SourceInfo is one entry of datasource.Manager.ListSources.
type SourceInfo struct {
	DBID        string `json:"db_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
