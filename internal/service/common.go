package service

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/trainerbook/scheduling-server-go/internal/errors"
	"github.com/trainerbook/scheduling-server-go/internal/events"
)

// EventPublisher is the outbound side of the lifecycle event contract.
// Delivery is best-effort: a publish failure never affects the result of the
// operation that triggered it.
type EventPublisher interface {
	Publish(ctx context.Context, trainerID string, event events.Event) error
}

// opContext bounds a repository call so a stuck collaborator surfaces as
// RepositoryUnavailable instead of blocking the caller indefinitely.
func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func repoError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.RepositoryUnavailable(err)
}

// trainerLocks serializes mutating operations per trainer. The conflict
// check followed by the write is a check-then-act sequence; holding the
// trainer's lock across both closes the race between two concurrent
// bookings for the same trainer. Reads never take a lock.
type trainerLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newTrainerLocks() *trainerLocks {
	return &trainerLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the trainer's lock and returns the release function.
func (l *trainerLocks) Lock(trainerID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[trainerID]
	if !ok {
		entry = &lockEntry{}
		l.entries[trainerID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, trainerID)
		}
		l.mu.Unlock()
	}
}
