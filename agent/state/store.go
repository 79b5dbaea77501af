package state

import (
	"context"
	"errors"
)

var (
	ErrStateNotFound    = errors.New("routing state not found")
	ErrInvalidSession   = errors.New("session id is empty")
	ErrStoreUnavailable = errors.New("state store unavailable")
	ErrStoreCommand     = errors.New("state store rejected command")
)

// Store persists routing state snapshots between turns. Load returns
// ErrStateNotFound for sessions that were never saved or have expired.
type Store interface {
	Load(ctx context.Context, sessionID string) (RoutingState, error)
	Save(ctx context.Context, st RoutingState) error
	Delete(ctx context.Context, sessionID string) error
}
