package messages

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/streams"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend lets tests control list results and block in-flight
// fetches to exercise interleavings.
type fakeBackend struct {
	mu       sync.Mutex
	msgs     []models.Message
	err      error
	listGate chan struct{} // when set, List blocks until the gate closes
}

func (f *fakeBackend) List(ctx context.Context, userID uint) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.listGate
	msgs := append([]models.Message(nil), f.msgs...)
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return msgs, err
}

func (f *fakeBackend) Get(ctx context.Context, userID uint, messageID string) (*models.Message, error) {
	return nil, nil
}

func (f *fakeBackend) PerformAction(ctx context.Context, userID uint, req ActionRequest) error {
	return nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, userID uint, messageID string) error {
	return nil
}

func (f *fakeBackend) set(msgs []models.Message, err error) {
	f.mu.Lock()
	f.msgs = msgs
	f.err = err
	f.mu.Unlock()
}

func msg(id string) models.Message {
	return models.Message{MessageID: id, Subject: id}
}

func TestStoreFetchRetainsViewOnError(t *testing.T) {
	backend := &fakeBackend{}
	backend.set([]models.Message{msg("a"), msg("b")}, nil)
	store := &Store{repo: backend, userID: 1, loc: time.UTC}

	view, metrics, err := store.Fetch(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Len(t, view, 2)
	assert.Equal(t, 2, metrics.Total)

	backend.set(nil, errors.New("connection refused"))
	view, metrics, err = store.Fetch(context.Background(), nil, "")
	assert.Error(t, err)
	assert.Len(t, view, 2, "previous list retained on failure")
	assert.Equal(t, 2, metrics.Total)
	assert.Error(t, store.LastError())

	backend.set([]models.Message{msg("c")}, nil)
	view, _, err = store.Fetch(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Len(t, view, 1)
	assert.NoError(t, store.LastError(), "error state cleared on success")
}

func TestStoreFetchDiscardsStaleCompletion(t *testing.T) {
	backend := &fakeBackend{}
	backend.set([]models.Message{msg("stale")}, nil)
	store := &Store{repo: backend, userID: 1, loc: time.UTC}

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.listGate = gate
	backend.mu.Unlock()

	// First fetch blocks inside List.
	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		view, _, _ := store.Fetch(context.Background(), nil, "")
		// The slow completion must serve the newer view, not its own
		// stale result.
		assert.Len(t, view, 1)
		assert.Equal(t, "fresh", view[0].MessageID)
	}()

	// Wait for the slow fetch to claim its sequence number.
	require.Eventually(t, func() bool {
		return store.fetchSeq.Load() == 1
	}, time.Second, time.Millisecond)

	// Second fetch supersedes it and completes immediately.
	backend.mu.Lock()
	backend.listGate = nil
	backend.msgs = []models.Message{msg("fresh")}
	backend.mu.Unlock()

	view, _, err := store.Fetch(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "fresh", view[0].MessageID)

	// Release the slow fetch; its result must be discarded.
	close(gate)
	<-slowDone

	view, _ = store.View(nil, "")
	require.Len(t, view, 1)
	assert.Equal(t, "fresh", view[0].MessageID)
}

func TestStoreApplyEvent(t *testing.T) {
	backend := &fakeBackend{}
	backend.set([]models.Message{msg("a"), msg("b")}, nil)
	store := &Store{repo: backend, userID: 1, loc: time.UTC}

	_, _, err := store.Fetch(context.Background(), nil, "")
	require.NoError(t, err)

	t.Run("update patches by message id", func(t *testing.T) {
		updated := msg("a")
		updated.IsRead = true
		updated.Priority = models.PriorityHigh
		payload, _ := json.Marshal(updated)

		require.NoError(t, store.ApplyEvent(context.Background(), streams.ChangeEvent{
			EventType: streams.EventUpdate,
			Table:     streams.TableMessages,
			New:       payload,
		}))

		view, metrics := store.View(nil, "")
		require.Len(t, view, 2)
		assert.True(t, view[0].IsRead)
		assert.Equal(t, 1, metrics.Urgent)
	})

	t.Run("delete removes by message id", func(t *testing.T) {
		payload, _ := json.Marshal(msg("b"))
		require.NoError(t, store.ApplyEvent(context.Background(), streams.ChangeEvent{
			EventType: streams.EventDelete,
			Table:     streams.TableMessages,
			Old:       payload,
		}))

		view, _ := store.View(nil, "")
		require.Len(t, view, 1)
		assert.Equal(t, "a", view[0].MessageID)
	})

	t.Run("insert triggers refetch", func(t *testing.T) {
		backend.set([]models.Message{msg("a"), msg("c")}, nil)
		payload, _ := json.Marshal(msg("c"))
		require.NoError(t, store.ApplyEvent(context.Background(), streams.ChangeEvent{
			EventType: streams.EventInsert,
			Table:     streams.TableMessages,
			New:       payload,
		}))

		view, _ := store.View(nil, "")
		assert.Len(t, view, 2)
	})

	t.Run("unknown event type errors", func(t *testing.T) {
		assert.Error(t, store.ApplyEvent(context.Background(), streams.ChangeEvent{
			EventType: "TRUNCATE",
		}))
	})
}

func TestStoreMetrics(t *testing.T) {
	backend := &fakeBackend{}

	summary := "quarterly numbers"
	vip := msg("vip")
	vip.IsVip = true
	vip.Priority = models.PriorityHigh
	vip.AISummary = &summary
	vip.CreatedAt = time.Now()

	old := msg("old")
	old.IsRead = true
	old.CreatedAt = time.Now().Add(-48 * time.Hour)

	backend.set([]models.Message{vip, old}, nil)
	store := &Store{repo: backend, userID: 1, loc: time.UTC}

	_, metrics, err := store.Fetch(context.Background(), nil, "")
	require.NoError(t, err)

	assert.Equal(t, 2, metrics.Total)
	assert.Equal(t, 1, metrics.Vip)
	assert.Equal(t, 1, metrics.Urgent)
	assert.Equal(t, 1, metrics.Unread)
	assert.Equal(t, 1, metrics.Today)
	assert.Equal(t, 1, metrics.NeedsAiSummary, "only the unsummarized message counts")
}

func TestStoreSearchNarrowsView(t *testing.T) {
	backend := &fakeBackend{}

	report := msg("report")
	report.Subject = "Q4 Financial Report"
	update := msg("update")
	update.Subject = "Project Update"

	backend.set([]models.Message{report, update}, nil)
	store := &Store{repo: backend, userID: 1, loc: time.UTC}

	_, _, err := store.Fetch(context.Background(), nil, "")
	require.NoError(t, err)

	view, metrics := store.View(nil, "financial")
	require.Len(t, view, 1)
	assert.Equal(t, "report", view[0].MessageID)
	assert.Equal(t, 2, metrics.Total, "metrics cover the full set, not the narrowed view")
}
