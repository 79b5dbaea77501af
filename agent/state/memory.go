package state

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps routing state in process. Used by the demo binary and tests.
type MemoryStore struct {
	states *xsync.MapOf[string, RoutingState]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: xsync.NewMapOf[string, RoutingState]()}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (RoutingState, error) {
	if strings.TrimSpace(sessionID) == "" {
		return RoutingState{}, ErrInvalidSession
	}
	st, ok := s.states.Load(sessionID)
	if !ok {
		return RoutingState{}, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, st RoutingState) error {
	if strings.TrimSpace(st.SessionID) == "" {
		return ErrInvalidSession
	}
	if st.Version <= 0 {
		st.Version = 1
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	s.states.Store(st.SessionID, st.Clone())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.states.Delete(sessionID)
	return nil
}
