package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlorc/core/internal/model"
)

// MemoryStore is an in-process Store, suitable for development and for the
// bundled single-process server mode. All state is lost on restart.
type MemoryStore struct {
	mu sync.Mutex

	threads  map[uuid.UUID]model.Thread
	messages map[uuid.UUID][]model.Message
	usage    map[uuid.UUID]model.TokenUsage
	usedDBs  map[uuid.UUID]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[uuid.UUID]model.Thread),
		messages: make(map[uuid.UUID][]model.Message),
		usage:    make(map[uuid.UUID]model.TokenUsage),
		usedDBs:  make(map[uuid.UUID]map[string]struct{}),
	}
}

func (s *MemoryStore) CreateThread(_ context.Context, name string) (model.Thread, error) {
	t := model.Thread{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.threads[t.ID] = t
	s.mu.Unlock()

	return t, nil
}

func (s *MemoryStore) GetThread(_ context.Context, id uuid.UUID) (model.Thread, error) {
	s.mu.Lock()
	t, ok := s.threads[id]
	s.mu.Unlock()

	if !ok {
		return model.Thread{}, ErrThreadNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListThreads(_ context.Context) ([]model.Thread, error) {
	s.mu.Lock()
	out := make([]model.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, threadID uuid.UUID, sender model.Sender, content string, metadata map[string]any) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return model.Message{}, ErrThreadNotFound
	}

	m := model.Message{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Sender:    sender,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[threadID] = append(s.messages[threadID], m)
	return m, nil
}

func (s *MemoryStore) GetMessages(_ context.Context, threadID uuid.UUID) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[threadID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) AddTokenUsage(_ context.Context, threadID uuid.UUID, delta model.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return ErrThreadNotFound
	}

	cur := s.usage[threadID]
	cur.InputTokens += delta.InputTokens
	cur.OutputTokens += delta.OutputTokens
	cur.TotalTokens += delta.TotalTokens
	cur.CallCount += delta.CallCount
	s.usage[threadID] = cur
	return nil
}

func (s *MemoryStore) GetTokenUsage(_ context.Context, threadID uuid.UUID) (model.TokenUsage, error) {
	s.mu.Lock()
	u := s.usage[threadID]
	s.mu.Unlock()
	return u, nil
}

func (s *MemoryStore) AddUsedDatabases(_ context.Context, threadID uuid.UUID, dbIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return ErrThreadNotFound
	}

	set, ok := s.usedDBs[threadID]
	if !ok {
		set = make(map[string]struct{})
		s.usedDBs[threadID] = set
	}
	for _, id := range dbIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) GetUsedDatabases(_ context.Context, threadID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	set := s.usedDBs[threadID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Close() {}
