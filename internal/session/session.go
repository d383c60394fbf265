// Package session implements the thread/message/token-usage store.
//
// A thread is an append-only conversation; messages, token usage, and the
// set of databases touched while answering questions in it accumulate as
// the conversation proceeds. Semantics (UUID ids, append-only messages, an
// unknown thread id returning an empty message list rather than an error,
// idempotent set-union for used databases) are grounded on
// original_source/backend/app/storage.py's InMemoryStorage.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/storage"
)

// ErrThreadNotFound is returned by operations that require an existing
// thread (AddMessage, AddTokenUsage, AddUsedDatabases) when the thread id
// is unknown. GetMessages, GetTokenUsage, and GetUsedDatabases instead
// return zero values for an unknown thread, matching storage.py's
// get_messages behavior. It wraps storage.ErrNotFound so a caller working
// across stores can check for "not found" generically.
var ErrThreadNotFound = fmt.Errorf("session: thread not found: %w", storage.ErrNotFound)

// Store is the persistence boundary for threads, messages, token usage,
// and used-database tracking.
type Store interface {
	CreateThread(ctx context.Context, name string) (model.Thread, error)
	GetThread(ctx context.Context, id uuid.UUID) (model.Thread, error)
	ListThreads(ctx context.Context) ([]model.Thread, error)

	AddMessage(ctx context.Context, threadID uuid.UUID, sender model.Sender, content string, metadata map[string]any) (model.Message, error)
	GetMessages(ctx context.Context, threadID uuid.UUID) ([]model.Message, error)

	AddTokenUsage(ctx context.Context, threadID uuid.UUID, delta model.TokenUsage) error
	GetTokenUsage(ctx context.Context, threadID uuid.UUID) (model.TokenUsage, error)

	AddUsedDatabases(ctx context.Context, threadID uuid.UUID, dbIDs []string) error
	GetUsedDatabases(ctx context.Context, threadID uuid.UUID) ([]string, error)

	Close()
}
