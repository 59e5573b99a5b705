// Package session holds in-progress test sessions between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/certify-backend/internal/model"
)

// ErrNotFound is returned when no live session exists for the id.
var ErrNotFound = errors.New("session: not found")

// ErrFull is returned by Set when a bounded store has no room for a new
// session without dropping one that is still live.
var ErrFull = errors.New("session: store full")

// Store is keyed storage for test sessions. Implementations return copies,
// so mutating a returned session never changes the stored value until Set.
type Store interface {
	Get(ctx context.Context, id string) (*model.TestSession, error)
	Set(ctx context.Context, s *model.TestSession) error
	Delete(ctx context.Context, id string) error
	// ListExpired returns open sessions whose time limit has elapsed at now.
	ListExpired(ctx context.Context, now time.Time) ([]*model.TestSession, error)
}

// retention is how long a session stays in a store: its time limit plus grace.
func retention(s *model.TestSession, grace time.Duration) time.Time {
	return s.Deadline().Add(grace)
}
