// Package datasource maps logical database ids to physical connections,
// enforces the one-db-per-datasource isolation invariant, and runs
// read-only SQL against the right backend.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlorc/core/internal/model"
)

// Datasource is the capability set a concrete backend (postgres, sqlite)
// implements. Grounded on malbeclabs-doublezero's tools/dz-ai
// internal/mcp/tools/sql.DB interface (Catalog/Schema/Conn), generalized
// here to the read-only execute surface the Manager needs.
type Datasource interface {
	// Execute runs sql (already verified read-only by the Manager) and
	// returns its result, categorizing any failure.
	Execute(ctx context.Context, sql string) (model.QueryResult, error)
	// TestConnection reports whether the backend is currently reachable.
	TestConnection(ctx context.Context) error
	// Close releases pooled connections. Called once at shutdown.
	Close()
}

// ErrUnknownDatabase is returned when a db id has no datasource mapping.
var ErrUnknownDatabase = errors.New("datasource: unknown database id")

// ErrSpansDatasources is returned by ValidateScope when a step's db ids
// resolve to more than one datasource.
var ErrSpansDatasources = errors.New("datasource: spans datasources")

// ErrNotReadOnly is returned when generated SQL's leading verb is not in
// the read-only whitelist.
var ErrNotReadOnly = errors.New("datasource: statement is not read-only")

var leadingVerb = regexp.MustCompile(`(?is)^\s*(?:--[^\n]*\n|\s)*(\w+)`)

// readOnlyVerbs is the read-only SQL verb whitelist: SELECT and WITH
// (CTEs). Anything else — INSERT, UPDATE, DELETE, DDL — is rejected before
// it reaches any concrete Datasource.
var readOnlyVerbs = map[string]bool{
	"SELECT": true,
	"WITH":   true,
}

// checkReadOnly enforces the verb whitelist centrally, once, before
// dispatch to any backend, applied centrally rather than per backend
// middleware-before-handler layering.
func checkReadOnly(sql string) error {
	m := leadingVerb.FindStringSubmatch(sql)
	if m == nil {
		return fmt.Errorf("%w: could not determine leading statement verb", ErrNotReadOnly)
	}
	verb := strings.ToUpper(m[1])
	if !readOnlyVerbs[verb] {
		return fmt.Errorf("%w: %q is not permitted", ErrNotReadOnly, verb)
	}
	return nil
}

// sourceEntry pairs a logical db id's catalog summary with the datasource
// name (physical connection group) that serves it.
type sourceEntry struct {
	dbID           string
	name           string
	description    string
	datasourceName string
}

// Manager implements db id -> datasource resolution, scope
// validation, and query execution. It is safe for concurrent callers —
// the maps built in New are never mutated afterward.
type Manager struct {
	datasources map[string]Datasource // datasource name -> backend
	entries     map[string]sourceEntry // db id -> entry
	order       []string
}

// New builds a Manager from the resolved datasource backends and the db-id
// -> datasource-name mapping (summary.yaml's `datasource` field in the
// common design for multi-database query routing). Every db id must map to a registered
// datasource name, and the bijection (one db id per datasource) is the
// caller's responsibility to uphold when building the mapping — Manager
// only validates it is consistent, not that it was authored correctly.
func New(datasources map[string]Datasource, sources []model.DataSource) (*Manager, error) {
	m := &Manager{
		datasources: datasources,
		entries:     make(map[string]sourceEntry, len(sources)),
	}
	for _, s := range sources {
		name := s.ID
		if _, ok := datasources[name]; !ok {
			return nil, fmt.Errorf("datasource: no backend registered for datasource %q (db id %q)", name, s.ID)
		}
		m.entries[s.ID] = sourceEntry{dbID: s.ID, name: s.Name, description: s.Description, datasourceName: name}
		m.order = append(m.order, s.ID)
	}
	return m, nil
}

// ValidateScope checks that every db id in dbIDs resolves to the same
// single datasource. This is the static check the one-db-per-datasource
// bijection makes possible: any step naming two db ids that map to
// distinct datasources is a cross-database JOIN attempt and is rejected
// here, before execution.
func (m *Manager) ValidateScope(dbIDs []string) model.ScopeResult {
	if len(dbIDs) == 0 {
		return model.ScopeResult{OK: false, Error: "no databases specified"}
	}
	seen := make(map[string]bool)
	var datasourceName string
	for _, id := range dbIDs {
		entry, ok := m.entries[id]
		if !ok {
			return model.ScopeResult{OK: false, Error: fmt.Sprintf("database %q not found in any datasource", id)}
		}
		seen[entry.datasourceName] = true
		datasourceName = entry.datasourceName
	}
	if len(seen) > 1 {
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		return model.ScopeResult{OK: false, Error: fmt.Sprintf("%v: spans %s", ErrSpansDatasources, strings.Join(names, ", "))}
	}
	return model.ScopeResult{OK: true, Datasource: datasourceName}
}

// Execute runs sql against the datasource serving dbID, after verifying
// the statement is read-only. The Executor is the only intended caller.
func (m *Manager) Execute(ctx context.Context, sql, dbID string) (model.QueryResult, error) {
	entry, ok := m.entries[dbID]
	if !ok {
		return model.QueryResult{OK: false, Error: fmt.Sprintf("unknown database %q", dbID), Category: model.ErrCategorySchema}, nil
	}
	if err := checkReadOnly(sql); err != nil {
		return model.QueryResult{OK: false, Error: err.Error(), Category: model.ErrCategoryPermission}, nil
	}
	ds, ok := m.datasources[entry.datasourceName]
	if !ok {
		return model.QueryResult{}, fmt.Errorf("%w: %s", ErrUnknownDatabase, dbID)
	}
	return ds.Execute(ctx, sql)
}

// ListSources returns the {id, name, description} summary for every
// registered database, in the order the sources were passed to New.
func (m *Manager) ListSources() []model.SourceInfo {
	out := make([]model.SourceInfo, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		out = append(out, model.SourceInfo{DBID: e.dbID, Name: e.name, Description: e.description})
	}
	return out
}

// Close releases every backing datasource's pool. Called once at shutdown.
func (m *Manager) Close() {
	for _, ds := range m.datasources {
		ds.Close()
	}
}
