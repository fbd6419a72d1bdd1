package messages

import (
	"context"
	"sync"
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/streams"
)

// Manager owns the per-user session stores. It is constructed once at
// service start; stores are created lazily on first request and fed by
// the realtime change stream while they live.
type Manager struct {
	repo *Repository

	mu     sync.Mutex
	stores map[uint]*Store
}

// NewManager creates a Manager.
func NewManager(repo *Repository) *Manager {
	return &Manager{
		repo:   repo,
		stores: make(map[uint]*Store),
	}
}

// ForUser returns the session store for a user, creating it on first
// use with the user's local timezone.
func (m *Manager) ForUser(user *models.User) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	store, ok := m.stores[user.ID]
	if !ok {
		loc, err := time.LoadLocation(user.Timezone)
		if err != nil {
			loc = time.UTC
		}
		store = NewStore(m.repo, user.ID, loc)
		m.stores[user.ID] = store
	}
	return store
}

// HandleChangeEvent routes a messages-table change event to the
// owner's store, if one is active. Events for users without an active
// session are ignored; their first fetch loads fresh state anyway.
func (m *Manager) HandleChangeEvent(evt streams.ChangeEvent) error {
	if evt.Table != streams.TableMessages {
		return nil
	}

	m.mu.Lock()
	store, ok := m.stores[evt.UserID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return store.ApplyEvent(ctx, evt)
}
