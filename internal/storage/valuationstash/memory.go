package valuationstash

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/shared"
)

// MemoryStash is the in-process Stash used by tests and local development.
type MemoryStash struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func NewMemory() *MemoryStash {
	return &MemoryStash{data: map[string]json.RawMessage{}}
}

func (s *MemoryStash) Put(_ context.Context, sessionID string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(json.RawMessage(nil), raw...)
	return nil
}

func (s *MemoryStash) Get(_ context.Context, sessionID string) (*models.ValuationPayload, error) {
	s.mu.Lock()
	raw, ok := s.data[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, shared.ErrorNoValuation
	}
	return models.DecodeValuation(raw)
}

func (s *MemoryStash) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}
