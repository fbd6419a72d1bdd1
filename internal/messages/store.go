package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/napoleonai/inbox/internal/models"
	"github.com/napoleonai/inbox/internal/search"
	"github.com/napoleonai/inbox/internal/streams"
)

// Metrics are the aggregate counts derived from the full fetched set
// (before search/filter narrowing).
type Metrics struct {
	Total          int `json:"total"`
	Vip            int `json:"vip"`
	Urgent         int `json:"urgent"`
	Unread         int `json:"unread"`
	Today          int `json:"today"`
	NeedsAiSummary int `json:"needsAiSummary"`
}

// backend is the slice of Repository the session store depends on.
type backend interface {
	List(ctx context.Context, userID uint) ([]models.Message, error)
	Get(ctx context.Context, userID uint, messageID string) (*models.Message, error)
	PerformAction(ctx context.Context, userID uint, req ActionRequest) error
	MarkRead(ctx context.Context, userID uint, messageID string) error
}

// Store is one user's session view of their messages. All reads and
// mutations of the in-memory list run under a single mutex; the store
// is owned by exactly one session and torn down with it.
//
// A fetch failure never corrupts the view: the previous list is
// retained and the error is surfaced for the caller to render a retry
// affordance.
type Store struct {
	repo   backend
	userID uint
	loc    *time.Location

	// fetchSeq orders concurrent fetches; completions carrying a stale
	// sequence are discarded so a slow early fetch can never clobber a
	// newer one.
	fetchSeq atomic.Uint64

	mu       sync.Mutex
	messages []models.Message
	lastErr  error
}

// NewStore creates a session store for a user. loc is the user's local
// timezone, used for the "today" filter boundary.
func NewStore(repo *Repository, userID uint, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{repo: repo, userID: userID, loc: loc}
}

// Fetch reloads the session view from storage, then applies search and
// filter narrowing. On failure the previous list is retained and the
// error returned. A completion that is no longer the latest issued
// fetch is discarded and the current view served instead.
func (s *Store) Fetch(ctx context.Context, criteria []Criterion, query string) ([]models.Message, Metrics, error) {
	seq := s.fetchSeq.Add(1)

	msgs, err := s.repo.List(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.fetchSeq.Load() {
		// A newer fetch was issued while this one was in flight.
		slog.Debug("Discarding stale fetch completion", "user_id", s.userID, "seq", seq)
		return s.viewLocked(criteria, query), s.metricsLocked(), s.lastErr
	}

	if err != nil {
		s.lastErr = fmt.Errorf("fetch failed: %w", err)
		return s.viewLocked(criteria, query), s.metricsLocked(), s.lastErr
	}

	s.messages = msgs
	s.lastErr = nil
	return s.viewLocked(criteria, query), s.metricsLocked(), nil
}

// View applies search and filter narrowing to the current in-memory
// list without touching storage.
func (s *Store) View(criteria []Criterion, query string) ([]models.Message, Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(criteria, query), s.metricsLocked()
}

// SelectMessage marks a message read if currently unread. The
// in-memory view updates optimistically; persistence is fire-and-
// forget and a failure is only logged.
func (s *Store) SelectMessage(messageID string) {
	s.mu.Lock()
	needsPersist := false
	for i := range s.messages {
		if s.messages[i].MessageID == messageID {
			if !s.messages[i].IsRead {
				s.messages[i].IsRead = true
				needsPersist = true
			}
			break
		}
	}
	s.mu.Unlock()

	if !needsPersist {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.repo.MarkRead(ctx, s.userID, messageID); err != nil {
			slog.Warn("Failed to persist read state", "message_id", messageID, "error", err)
		}
	}()
}

// ApplyEvent reconciles one realtime change event into the view.
// Inserts trigger a full refetch (simplicity over incremental merge);
// updates patch the matching message by id; deletes remove it.
func (s *Store) ApplyEvent(ctx context.Context, evt streams.ChangeEvent) error {
	switch evt.EventType {
	case streams.EventInsert:
		msgs, err := s.repo.List(ctx, s.userID)
		if err != nil {
			return fmt.Errorf("refetch after insert failed: %w", err)
		}
		s.mu.Lock()
		s.messages = msgs
		s.lastErr = nil
		s.mu.Unlock()
		return nil

	case streams.EventUpdate:
		var updated models.Message
		if err := json.Unmarshal(evt.New, &updated); err != nil {
			return fmt.Errorf("failed to unmarshal update: %w", err)
		}
		s.mu.Lock()
		for i := range s.messages {
			if s.messages[i].MessageID == updated.MessageID {
				// Last write wins on the id-keyed view.
				s.messages[i] = updated
				break
			}
		}
		s.mu.Unlock()
		return nil

	case streams.EventDelete:
		var deleted models.Message
		if err := json.Unmarshal(evt.Old, &deleted); err != nil {
			return fmt.Errorf("failed to unmarshal delete: %w", err)
		}
		s.mu.Lock()
		for i := range s.messages {
			if s.messages[i].MessageID == deleted.MessageID {
				s.messages = append(s.messages[:i], s.messages[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown event type: %s", evt.EventType)
	}
}

// LastError returns the error state from the most recent failed fetch,
// or nil.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) viewLocked(criteria []Criterion, query string) []models.Message {
	searched := s.searchLocked(query)
	return ApplyCriteria(searched, criteria, time.Now().In(s.loc))
}

func (s *Store) searchLocked(query string) []models.Message {
	docs := make([]search.Document, len(s.messages))
	for i, m := range s.messages {
		summary := ""
		if m.AISummary != nil {
			summary = *m.AISummary
		}
		docs[i] = search.Document{
			Subject:     m.Subject,
			SenderName:  m.SenderName,
			SenderEmail: m.SenderEmail,
			Content:     m.Content,
			Summary:     summary,
		}
	}

	ranked := search.Rank(query, docs, search.DefaultThreshold)
	result := make([]models.Message, len(ranked))
	for i, r := range ranked {
		result[i] = s.messages[r.Index]
	}
	return result
}

func (s *Store) metricsLocked() Metrics {
	now := time.Now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	var m Metrics
	m.Total = len(s.messages)
	for _, msg := range s.messages {
		if msg.IsVip {
			m.Vip++
		}
		if msg.Priority == models.PriorityHigh {
			m.Urgent++
		}
		if !msg.IsRead {
			m.Unread++
		}
		if !msg.CreatedAt.Before(midnight) {
			m.Today++
		}
		if msg.NeedsAISummary() {
			m.NeedsAiSummary++
		}
	}
	return m
}
