package mcpsurface_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/mcpsurface"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/session"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	sources := []model.DataSource{
		{ID: "orders_db", Name: "Orders", Description: "order history", Type: "postgres"},
	}
	schemas := []model.SchemaDefinition{
		{DBID: "orders_db", Description: "orders schema", Tables: []model.TableDef{
			{Name: "orders", Description: "one row per order"},
		}},
	}
	c, err := catalog.New(sources, schemas)
	require.NoError(t, err)
	return c
}

func TestNewBuildsMCPServer(t *testing.T) {
	sessions := session.NewMemoryStore()
	defer sessions.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := mcpsurface.New(testCatalog(t), sessions, nil, logger)
	require.NotNil(t, srv.MCPServer())
}

func TestNewWithNilOrchestratorReturnsServer(t *testing.T) {
	// handleAskQuestion is unexported; exercising it through the MCP
	// server's tool dispatch would require a full transport round trip, so
	// this test only asserts construction succeeds with every tool wired —
	// the pipeline ask_question runs is covered by the orchestrator
	// package's tests, which script the LLM with a fake completer.
	sessions := session.NewMemoryStore()
	defer sessions.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := mcpsurface.New(testCatalog(t), sessions, nil, logger)
	assert.NotNil(t, srv)
}

func TestGetTokenUsageMarshalsZeroValue(t *testing.T) {
	usage := model.TokenUsage{}
	data, err := json.Marshal(usage)
	require.NoError(t, err)
	assert.JSONEq(t, `{"input_tokens":0,"output_tokens":0,"total_tokens":0,"call_count":0}`, string(data))
}
