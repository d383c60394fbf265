package sqlorc

import (
	"time"

	"github.com/google/uuid"
)

// Thread is the public representation of a conversation. It is a curated
// view of internal/model.Thread for use in extension interfaces — no
// internal package imports, safe to use from outside the module.
type Thread struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Sender identifies who authored a Message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderServer Sender = "server"
)

// Message is one turn's worth of content appended to a thread.
type Message struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	Sender    Sender
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// TurnResult is the public outcome of one ProcessQuestion turn, passed to
// EventHook implementations. Tag mirrors orchestrator.Result.Tag as a
// string so hooks never need to import internal/orchestrator.
type TurnResult struct {
	Tag           string
	Message       string
	UsedDatabases []string
	Confidence    string
}

// TableRef identifies one table within a database. Mirrors
// internal/catalog.TableRef for use in the Index extension interface.
type TableRef struct {
	DBID  string
	Table string
}

// TableEmbedding is one table's embedding input, passed to Index.Upsert.
// Mirrors internal/catalog.TableEmbedding.
type TableEmbedding struct {
	DBID        string
	Table       string
	Description string
	Vector      []float32
}
