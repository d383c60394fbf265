package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sqlorc/core/internal/catalog"
	"github.com/sqlorc/core/internal/model"
	"github.com/sqlorc/core/internal/orchestrator"
	"github.com/sqlorc/core/internal/session"
)

// HandlersDeps bundles the collaborators a Handlers needs to serve every
// route. All fields are required.
type HandlersDeps struct {
	Catalog      *catalog.Catalog
	Sessions     session.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
	Version      string
}

// Handlers implements every HTTP route as a method. Grouped in one struct,
// rather than free functions, so routes share collaborators without a
// package-level global.
type Handlers struct {
	catalog      *catalog.Catalog
	sessions     session.Store
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
	version      string
}

// NewHandlers builds a Handlers from its dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		catalog:      d.Catalog,
		sessions:     d.Sessions,
		orchestrator: d.Orchestrator,
		logger:       d.Logger,
		version:      d.Version,
	}
}

// HandleHealth reports liveness. No dependency checks: a 200 here means
// the process is up, not that the session store or any datasource is
// reachable.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

// HandleListDataSources lists every configured database, as shown to the
// validation stage.
func (h *Handlers) HandleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources := h.catalog.ListSources()
	out := make([]model.DataSourceSummary, 0, len(sources))
	for _, s := range sources {
		out = append(out, model.DataSourceSummary{ID: s.DBID, Name: s.Name, Description: s.Description})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleCreateThread creates a new, empty thread. Name is optional.
func (h *Handlers) HandleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req model.CreateThreadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed request body")
			return
		}
	}

	thread, err := h.sessions.CreateThread(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("create thread", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not create thread")
		return
	}
	writeJSON(w, r, http.StatusCreated, thread)
}

// HandleListThreads lists every thread, most recently created first.
func (h *Handlers) HandleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.sessions.ListThreads(r.Context())
	if err != nil {
		h.logger.Error("list threads", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not list threads")
		return
	}
	writeJSON(w, r, http.StatusOK, threads)
}

// HandleGetThread fetches one thread's metadata.
func (h *Handlers) HandleGetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}
	thread, err := h.sessions.GetThread(r.Context(), id)
	if err != nil {
		h.respondThreadLookupError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, thread)
}

// HandleListMessages returns every message in a thread, oldest first.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.GetThread(r.Context(), id); err != nil {
		h.respondThreadLookupError(w, r, err)
		return
	}
	messages, err := h.sessions.GetMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("list messages", "thread_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not list messages")
		return
	}
	writeJSON(w, r, http.StatusOK, messages)
}

// HandlePostMessage appends the user's question, runs it through the
// orchestration pipeline, appends the resulting answer as a server
// message, and returns both plus the tagged pipeline result. Every
// semantic outcome (rejected, clarification, execution_error, ...) is a
// 200 — only malformed input, an unknown thread, or an infrastructure
// failure produce a non-200 status.
func (h *Handlers) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.GetThread(r.Context(), id); err != nil {
		h.respondThreadLookupError(w, r, err)
		return
	}

	var req model.PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed request body")
		return
	}
	if req.Content == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "content is required")
		return
	}

	userMsg, err := h.sessions.AddMessage(r.Context(), id, model.SenderUser, req.Content, nil)
	if err != nil {
		h.logger.Error("append user message", "thread_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not record message")
		return
	}

	result, err := h.orchestrator.ProcessQuestion(r.Context(), id, req.Content)
	if err != nil {
		h.logger.Error("process question", "thread_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "pipeline failure")
		return
	}

	metadata := map[string]any{"tag": string(result.Tag)}
	if result.Plan != nil {
		metadata["plan"] = result.Plan
	}
	if len(result.StepResults) > 0 {
		metadata["step_results"] = result.StepResults
	}
	if len(result.DebugInfo) > 0 {
		metadata["debug_info"] = result.DebugInfo
	}

	serverMsg, err := h.sessions.AddMessage(r.Context(), id, model.SenderServer, result.Message, metadata)
	if err != nil {
		h.logger.Error("append server message", "thread_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not record answer")
		return
	}

	writeJSON(w, r, http.StatusOK, model.PostMessageResponse{
		UserMessage:   userMsg,
		ServerMessage: serverMsg,
		Result: model.AnswerResult{
			Tag:           string(result.Tag),
			Message:       result.Message,
			Plan:          result.Plan,
			StepResults:   result.StepResults,
			UsedDatabases: result.UsedDatabases,
			Confidence:    result.Confidence,
		},
	})
}

// HandleGetTokenUsage returns a thread's accumulated token counters.
func (h *Handlers) HandleGetTokenUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.GetThread(r.Context(), id); err != nil {
		h.respondThreadLookupError(w, r, err)
		return
	}
	usage, err := h.sessions.GetTokenUsage(r.Context(), id)
	if err != nil {
		h.logger.Error("get token usage", "thread_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not load token usage")
		return
	}
	writeJSON(w, r, http.StatusOK, model.TokenUsageResponse{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		Calls:        usage.CallCount,
	})
}

// HandleGetUsedDatabases returns the sorted set of db ids ever consulted
// while answering questions in this thread.
func (h *Handlers) HandleGetUsedDatabases(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.GetThread(r.Context(), id); err != nil {
		h.respondThreadLookupError(w, r, err)
		return
	}
	dbIDs, err := h.sessions.GetUsedDatabases(r.Context(), id)
	if err != nil {
		h.logger.Error("get used databases", "thread_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not load used databases")
		return
	}
	writeJSON(w, r, http.StatusOK, model.UsedDatabasesResponse{Databases: dbIDs})
}

func parseThreadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid thread id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handlers) respondThreadLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrThreadNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "thread not found")
		return
	}
	h.logger.Error("thread lookup", "error", err)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "could not load thread")
}
