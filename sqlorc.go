// Package sqlorc embeds a natural-language-to-SQL agent as a library: a
// functional-options App wraps knowledge-directory loading, datasource
// connections, the semantic catalog, the five-stage orchestration
// pipeline, and the HTTP/MCP transports behind New and Run.
//
// Import rule: this package imports internal/*, never the reverse — an
// internal package importing the root package would create a cycle.
package sqlorc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/config"
	"github.com/sqlorc/core/internal/datasource"
	"github.com/sqlorc/core/internal/datasource/postgres"
	"github.com/sqlorc/core/internal/datasource/sqlite"
	"github.com/sqlorc/core/internal/executor"
	"github.com/sqlorc/core/internal/knowledge"
	"github.com/sqlorc/core/internal/llm"
	"github.com/sqlorc/core/internal/mcpsurface"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/orchestrator"
	"github.com/sqlorc/core/internal/prompts"
	"github.com/sqlorc/core/internal/server"
	"github.com/sqlorc/core/internal/session"
	"github.com/sqlorc/core/internal/storage"
	"github.com/sqlorc/core/internal/telemetry"
	"github.com/sqlorc/core/migrations"
)

// App is an embeddable sqlorc instance: knowledge catalog, datasource
// connections, orchestration pipeline, and HTTP/MCP transports wired
// together by New. The zero value is not usable — construct with New.
type App struct {
	cfg    config.Config
	logger *slog.Logger
	opts   resolvedOptions

	db           *storage.DB
	backends     map[string]datasource.Datasource
	sessions     session.Store
	catalog      *catalog.Catalog
	orchestrator *orchestrator.Orchestrator

	httpServer *server.Server
	mcpServer  *mcpsurface.Server

	otelShutdown func(context.Context) error
}

// New builds an App: it loads configuration from the environment (apply
// Option overrides on top), opens the optional primary database and every
// configured datasource, loads the knowledge/ catalog, and wires the
// orchestration pipeline and HTTP/MCP servers. It does not start serving —
// call Run for that.
func New(opts ...Option) (*App, error) {
	ro := resolvedOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("sqlorc: load config: %w", err)
	}
	if ro.port != 0 {
		cfg.Port = ro.port
	}
	if ro.databaseURL != "" {
		cfg.DatabaseURL = ro.databaseURL
	}

	logger := ro.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	version := ro.version
	if version == "" {
		version = "dev"
	}

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: telemetry: %w", err)
	}

	app := &App{cfg: cfg, logger: logger, opts: ro, otelShutdown: otelShutdown}

	var db *storage.DB
	if cfg.DatabaseURL != "" {
		db, err = storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlorc: storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return nil, fmt.Errorf("sqlorc: migrations: %w", err)
		}
		for _, extra := range ro.extraMigrations {
			if err := db.RunMigrations(ctx, extra); err != nil {
				return nil, fmt.Errorf("sqlorc: extra migrations: %w", err)
			}
		}
	}
	app.db = db

	fsys := os.DirFS(".")

	dsConfigs, err := knowledge.LoadDatasourceConfigs(fsys, cfg.DatasourcesPath)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: load datasources: %w", err)
	}

	sources, schemas, err := knowledge.LoadCatalog(fsys, cfg.SchemasDir+"/summary.yaml", dsConfigs)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: load catalog: %w", err)
	}

	backends, err := openDatasourceBackends(ctx, sources, dsConfigs)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: open datasources: %w", err)
	}
	app.backends = backends

	dsManager, err := datasource.New(backends, sources)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: datasource manager: %w", err)
	}

	cat, err := app.buildCatalog(ctx, sources, schemas)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: catalog: %w", err)
	}
	app.catalog = cat

	promptsFS, err := fs.Sub(fsys, cfg.PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("sqlorc: prompts dir: %w", err)
	}
	promptsRegistry := prompts.NewRegistry(promptsFS)
	if err := promptsRegistry.MustLoad(
		"validate_question", "decide_action", "create_plan",
		"generate_sql", "analyze_error", "write_summary",
	); err != nil {
		return nil, fmt.Errorf("sqlorc: load prompts: %w", err)
	}

	llmClient := llm.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicWeakModel, cfg.AnthropicPlanningModel, cfg.AnthropicDeveloperModel, cfg.LLMDebug)

	var sessions session.Store
	if db != nil {
		sessions = session.NewPostgresStore(db)
	} else {
		sessions = session.NewMemoryStore()
	}
	app.sessions = sessions

	exec := executor.New(llmClient, promptsRegistry, dsManager, cat)

	orch := orchestrator.New(orchestrator.Deps{
		Catalog:     cat,
		Prompts:     promptsRegistry,
		LLM:         llmClient,
		Datasources: dsManager,
		Sessions:    sessions,
		Executor:    exec,
	}, orchestrator.WithLogger(logger), orchestrator.WithTurnDeadline(cfg.TurnDeadline))
	app.orchestrator = orch

	extraRoutes := make([]func(mux *http.ServeMux), len(ro.routeRegistrars))
	for i, r := range ro.routeRegistrars {
		extraRoutes[i] = func(mux *http.ServeMux) { r(mux) }
	}
	extraMiddleware := make([]func(http.Handler) http.Handler, len(ro.middlewares))
	for i, m := range ro.middlewares {
		extraMiddleware[i] = func(next http.Handler) http.Handler { return m(next) }
	}

	app.httpServer = server.New(server.Config{
		Catalog:         cat,
		Sessions:        sessions,
		Orchestrator:    orch,
		Logger:          logger,
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		Version:         version,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		ExtraRoutes:     extraRoutes,
		ExtraMiddleware: extraMiddleware,
	})

	app.mcpServer = mcpsurface.New(cat, sessions, orch, logger)

	return app, nil
}

// Run starts the HTTP server (and, when SQLORC_MCP_STDIO=true, an MCP
// stdio server) and blocks until ctx is canceled or a server fails. On
// return it has already released every resource opened by New.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	errCh := make(chan error, 2)
	go func() {
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if os.Getenv("SQLORC_MCP_STDIO") == "true" {
		go func() {
			if err := mcpserver.ServeStdio(a.mcpServer.MCPServer()); err != nil {
				errCh <- fmt.Errorf("mcp stdio server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	a.logger.Info("sqlorc shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	return runErr
}

// Handler returns the root HTTP handler, for embedding sqlorc's API behind
// an already-running server instead of calling Run.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler()
}

// Close releases every resource opened by New: datasource connections, the
// primary database, and the OTEL exporter. Run calls this automatically;
// callers that never call Run (e.g. embedding Handler directly) must call
// it themselves.
func (a *App) Close() {
	for _, b := range a.backends {
		b.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.sessions.Close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
}

// openDatasourceBackends opens one physical connection per datasource
// entry in sources, keyed by db id (the bijection knowledge.LoadCatalog
// already validated).
func openDatasourceBackends(ctx context.Context, sources []model.DataSource, dsConfigs map[string]knowledge.DatasourceConfig) (map[string]datasource.Datasource, error) {
	backends := make(map[string]datasource.Datasource, len(sources))
	for _, s := range sources {
		cfg := dsConfigs[s.ID]
		switch cfg.Type {
		case "postgres":
			pgCfg, err := buildPostgresConfig(cfg.Connection)
			if err != nil {
				return nil, fmt.Errorf("datasource %q: %w", s.ID, err)
			}
			backend, err := postgres.Open(ctx, pgCfg, "public")
			if err != nil {
				return nil, fmt.Errorf("datasource %q: %w", s.ID, err)
			}
			backends[s.ID] = backend

		case "sqlite":
			path := postgres.ResolveEnvVar(cfg.Connection["path"])
			backend, err := sqlite.Open(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("datasource %q: %w", s.ID, err)
			}
			backends[s.ID] = backend

		default:
			return nil, fmt.Errorf("datasource %q: unknown type %q", s.ID, cfg.Type)
		}
	}
	return backends, nil
}

func buildPostgresConfig(conn map[string]string) (postgres.Config, error) {
	port, err := postgres.ParsePort(postgres.ResolveEnvVar(conn["port"]))
	if err != nil {
		return postgres.Config{}, fmt.Errorf("parse port: %w", err)
	}

	cfg := postgres.Config{
		Host:     postgres.ResolveEnvVar(conn["host"]),
		Port:     port,
		Database: postgres.ResolveEnvVar(conn["database"]),
		User:     postgres.ResolveEnvVar(conn["user"]),
		Password: postgres.ResolveEnvVar(conn["password"]),
	}

	if v := conn["min_pool_size"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinPoolSize = n
		}
	}
	if v := conn["max_pool_size"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPoolSize = n
		}
	}
	if v := conn["connect_timeout"]; v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConnectTimeout = d
		}
	}

	return cfg, nil
}

// buildCatalog wires a semantic Index when one is available: an explicit
// WithSemanticIndex override takes priority, then Qdrant (no primary
// database required), then pgvector when a primary database is present.
// With none configured, RelevantTables returns every table.
func (a *App) buildCatalog(ctx context.Context, sources []model.DataSource, schemas []model.SchemaDefinition) (*catalog.Catalog, error) {
	cfg := a.cfg
	opts := []catalog.Option{catalog.WithSemanticThreshold(cfg.CatalogSemanticThreshold)}

	var embedder catalog.Embedder
	if a.opts.embeddingProvider != nil {
		embedder = embeddingProviderAdapter{a.opts.embeddingProvider}
	} else if cfg.OpenAIAPIKey != "" {
		embedder = catalog.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel, cfg.EmbeddingDimensions)
	} else {
		embedder = catalog.NewNoopEmbedder(cfg.EmbeddingDimensions)
	}

	var index catalog.Index
	switch {
	case a.opts.index != nil:
		index = indexAdapter{a.opts.index}
		a.logger.Info("catalog: semantic index via WithSemanticIndex override")

	case cfg.QdrantURL != "":
		qdrantIndex, err := catalog.NewQdrantIndex(catalog.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		index = qdrantIndex
		a.logger.Info("catalog: semantic index via qdrant", "collection", cfg.QdrantCollection)

	case a.db != nil:
		index = catalog.NewPgvectorIndex(a.db)
		a.logger.Info("catalog: semantic index via pgvector")

	default:
		a.logger.Info("catalog: no semantic index configured, RelevantTables returns every table")
	}

	if index != nil {
		opts = append(opts, catalog.WithSemanticIndex(index, embedder))
	}

	cat, err := catalog.New(sources, schemas, opts...)
	if err != nil {
		return nil, err
	}

	if index != nil {
		if err := cat.IndexTables(ctx); err != nil {
			a.logger.Warn("catalog: index tables failed", "error", err)
		}
	}

	return cat, nil
}

// embeddingProviderAdapter satisfies catalog.Embedder from an embedder
// supplied through WithEmbeddingProvider, so the override never needs to
// depend on the internal catalog package's interface shape.
type embeddingProviderAdapter struct{ p EmbeddingProvider }

func (a embeddingProviderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

// indexAdapter satisfies catalog.Index from an index supplied through
// WithSemanticIndex, translating between the public and internal
// TableRef/TableEmbedding shapes at the boundary.
type indexAdapter struct{ idx Index }

func (a indexAdapter) Upsert(ctx context.Context, entries []catalog.TableEmbedding) error {
	public := make([]TableEmbedding, len(entries))
	for i, e := range entries {
		public[i] = TableEmbedding{DBID: e.DBID, Table: e.Table, Description: e.Description, Vector: e.Vector}
	}
	return a.idx.Upsert(ctx, public)
}

func (a indexAdapter) Search(ctx context.Context, dbIDs []string, queryVector []float32, topK int) ([]catalog.TableRef, error) {
	refs, err := a.idx.Search(ctx, dbIDs, queryVector, topK)
	if err != nil {
		return nil, err
	}
	internal := make([]catalog.TableRef, len(refs))
	for i, r := range refs {
		internal[i] = catalog.TableRef{DBID: r.DBID, Table: r.Table}
	}
	return internal, nil
}
