package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StateStore is the durable persistence contract the manager writes through.
// Documents are opaque JSON blobs keyed by chat identifier.
type StateStore interface {
	Get(ctx context.Context, chatID int64) ([]byte, bool, error)
	Put(ctx context.Context, chatID int64, doc []byte) error
	Keys(ctx context.Context) ([]int64, error)
}

type sessionEntry struct {
	mu      sync.Mutex
	session *ChatSession
}

// Manager owns the authoritative in-memory copy of every chat session.
// All mutations funnel through Update, which holds the chat's lock for the
// duration of the mutation and flushes the document to the store before
// returning. A store failure is reported but never evicts the cached copy;
// the in-memory session stays the source of truth for the process lifetime.
type Manager struct {
	store  StateStore
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*sessionEntry

	// group coalesces concurrent first loads for the same chat so only one
	// store read populates the cache.
	group singleflight.Group
}

// NewManager creates a session manager backed by the given store.
func NewManager(store StateStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		logger:   logger.Named("sessions"),
		sessions: make(map[int64]*sessionEntry),
	}
}

func (m *Manager) entry(ctx context.Context, chatID int64) (*sessionEntry, error) {
	m.mu.RLock()
	e, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := m.group.Do(strconv.FormatInt(chatID, 10), func() (interface{}, error) {
		m.mu.RLock()
		e, ok := m.sessions[chatID]
		m.mu.RUnlock()
		if ok {
			return e, nil
		}

		// Coalesced waiters share this one load; it must not die with the
		// first caller's context.
		session, err := m.loadFromStore(context.WithoutCancel(ctx), chatID)
		if err != nil {
			return nil, err
		}
		e = &sessionEntry{session: session}
		m.mu.Lock()
		m.sessions[chatID] = e
		m.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sessionEntry), nil
}

func (m *Manager) loadFromStore(ctx context.Context, chatID int64) (*ChatSession, error) {
	doc, ok, err := m.store.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat %d: %w", chatID, err)
	}
	if !ok {
		m.logger.Debug("initializing fresh session", zap.Int64("chat_id", chatID))
		return NewChatSession(), nil
	}

	var session ChatSession
	if err := json.Unmarshal(doc, &session); err != nil {
		// A corrupt document must not brick the chat forever.
		m.logger.Warn("discarding unreadable session document",
			zap.Int64("chat_id", chatID), zap.Error(err))
		return NewChatSession(), nil
	}
	session.Normalize()
	return &session, nil
}

// Update runs fn with exclusive access to the chat's session. When fn
// reports a change, the session is flushed to the store before Update
// returns. fn must not block on external calls; long operations (narration,
// transport sends) belong between Update calls.
func (m *Manager) Update(ctx context.Context, chatID int64, fn func(*ChatSession) (bool, error)) error {
	e, err := m.entry(ctx, chatID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := fn(e.session)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return m.flushLocked(ctx, chatID, e.session)
}

// View runs fn with shared access to a consistent snapshot of the session.
// fn must not retain or mutate the session.
func (m *Manager) View(ctx context.Context, chatID int64, fn func(*ChatSession)) error {
	e, err := m.entry(ctx, chatID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.session)
	return nil
}

func (m *Manager) flushLocked(ctx context.Context, chatID int64, session *ChatSession) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal chat %d: %w", chatID, err)
	}
	if err := m.store.Put(ctx, chatID, doc); err != nil {
		// The cached copy stays authoritative; the write is retried on the
		// next mutation.
		m.logger.Error("state flush failed; in-memory copy retained",
			zap.Int64("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("persist chat %d: %w", chatID, err)
	}
	return nil
}

// Chats returns the chat identifiers currently cached in memory, sorted for
// deterministic iteration.
func (m *Manager) Chats() []int64 {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WarmStart pre-populates the cache with every chat the store knows about,
// so schedules and sweeps cover chats from before a restart. Individual
// load failures are logged and skipped.
func (m *Manager) WarmStart(ctx context.Context) error {
	ids, err := m.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	for _, id := range ids {
		if _, err := m.entry(ctx, id); err != nil {
			m.logger.Warn("skipping chat during warm start",
				zap.Int64("chat_id", id), zap.Error(err))
		}
	}
	m.logger.Info("sessions warmed", zap.Int("chats", len(ids)))
	return nil
}
