package registry

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
)

// Store keeps one registry per session. Sessions never see each other's agents.
type Store struct {
	sessions *xsync.MapOf[string, Registry]
}

func NewStore() *Store {
	return &Store{sessions: xsync.NewMapOf[string, Registry]()}
}

// Register replaces the session's registry wholesale.
func (s *Store) Register(sessionID string, descriptors []contract.AgentDescriptor) Registry {
	r := Build(descriptors)
	s.sessions.Store(sessionID, r)
	return r
}

func (s *Store) Lookup(sessionID, token string) (contract.AgentDescriptor, bool) {
	r, ok := s.sessions.Load(sessionID)
	if !ok {
		return contract.AgentDescriptor{}, false
	}
	return r.Lookup(token)
}

// Snapshot returns the session's registry, empty when nothing was registered.
func (s *Store) Snapshot(sessionID string) Registry {
	r, _ := s.sessions.Load(sessionID)
	return r
}

func (s *Store) Forget(sessionID string) {
	s.sessions.Delete(sessionID)
}

func (s *Store) Sessions() int {
	return s.sessions.Size()
}
