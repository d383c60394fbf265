package sqlorc

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// OpenAI/noop embedder. New wraps it in an adapter for internal use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Index performs semantic nearest-table lookup over table embeddings.
// When provided via WithSemanticIndex, replaces the auto-detected
// Qdrant/pgvector index.
type Index interface {
	Upsert(ctx context.Context, entries []TableEmbedding) error
	Search(ctx context.Context, dbIDs []string, queryVector []float32, topK int) ([]TableRef, error)
}

// EventHook receives a notification after each turn completes.
// Multiple hooks may be registered via multiple WithEventHook calls.
// Hook methods must not block indefinitely; failures are logged but never
// fail the originating request.
//
// This interface reserves the extension point — OnTurnCompleted is not
// wired to ProcessQuestion's call site yet, since doing so would require
// threading hooks through internal/server's request handler. A future
// spec can wire it without changing this signature.
type EventHook interface {
	OnTurnCompleted(ctx context.Context, threadID uuid.UUID, result TurnResult) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Called once during New, after every built-in route is registered.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost, so it sees every request including /health.
// Multiple middlewares are applied in registration order — the
// first-registered middleware is outermost (called first by every request).
type Middleware func(http.Handler) http.Handler
