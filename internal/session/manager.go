// Package session owns per-user conversational state: session lifecycle,
// bounded history retention, memory profiles, and aggregate statistics.
// It is the only component that mutates the store; every mutation rewrites
// the persisted document.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/models"
	"github.com/avendel/supportbot/internal/storage"
)

var (
	ErrNotInitialized  = errors.New("session manager not initialized")
	ErrSessionNotFound = errors.New("session not found")
)

// DefaultSeedMessage opens every new (or cleared) history as the single
// seeded system message.
const DefaultSeedMessage = "You are a supportive companion. Listen with empathy and help the user reflect."

type Config struct {
	// MaxHistory bounds history length after each append.
	MaxHistory int
	// SeedMessage is the system message seeded into new sessions.
	// Empty means DefaultSeedMessage.
	SeedMessage string
}

// Manager is the single source of truth for sessions. All mutations are
// serialized under one lock, so concurrent messages from the same user
// cannot race each other's persists.
type Manager struct {
	mu          sync.RWMutex
	store       *models.Store
	persister   storage.Persister
	maxHistory  int
	seedMessage string
	logger      *zap.Logger
	now         func() time.Time
	initialized bool
}

func NewManager(persister storage.Persister, cfg Config, logger *zap.Logger) *Manager {
	seed := cfg.SeedMessage
	if seed == "" {
		seed = DefaultSeedMessage
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Manager{
		persister:   persister,
		maxHistory:  maxHistory,
		seedMessage: seed,
		logger:      logger,
		now:         time.Now,
	}
}

// Initialize loads the persisted store. It must complete before any other
// method is called and is a no-op when called again.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	store, err := m.persister.Load()
	if err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}

	m.store = store
	m.initialized = true
	m.logger.Info("Session store loaded",
		zap.Int("sessions", len(store.Sessions)),
		zap.Int64("total_users", store.Statistics.TotalUsers))
	return nil
}

// GetOrCreateSession returns the session for userID, refreshing its last
// activity; if none exists a new session is created with a seeded system
// message and the default memory profile. DisplayInfo is only recorded at
// creation time.
func (m *Manager) GetOrCreateSession(chatID, userID int64, info *models.DisplayInfo) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	now := m.now()
	sess, exists := m.store.Sessions[userID]
	if exists {
		sess.LastActivity = now
	} else {
		seed := models.Message{
			ID:        uuid.New().String(),
			Role:      models.RoleSystem,
			Content:   m.seedMessage,
			Timestamp: now.UnixMilli(),
			Kind:      models.TextMessage,
		}
		sess = &models.Session{
			ChatID:       chatID,
			UserID:       userID,
			DisplayInfo:  info,
			History:      []models.Message{seed},
			Memory:       models.DefaultProfile(),
			CreatedAt:    now,
			LastActivity: now,
		}
		m.store.Sessions[userID] = sess
		m.store.Statistics.TotalUsers++
	}

	if err := m.persister.Persist(m.store); err != nil {
		return nil, fmt.Errorf("failed to persist store: %w", err)
	}
	return cloneSession(sess), nil
}

// AppendMessage appends one turn to the user's history, then enforces the
// retention policy. Appending to a nonexistent session is a caller
// contract violation and fails.
func (m *Manager) AppendMessage(userID int64, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	sess, exists := m.store.Sessions[userID]
	if !exists {
		return fmt.Errorf("append for user %d: %w", userID, ErrSessionNotFound)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Kind == "" {
		msg.Kind = models.TextMessage
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = m.now().UnixMilli()
	}
	// Timestamps never go backwards within a history.
	if n := len(sess.History); n > 0 && msg.Timestamp < sess.History[n-1].Timestamp {
		msg.Timestamp = sess.History[n-1].Timestamp
	}

	sess.History = append(sess.History, msg)
	sess.LastActivity = m.now()
	m.store.Statistics.TotalMessages++

	sess.History = trimHistory(sess.History, m.maxHistory)

	if err := m.persister.Persist(m.store); err != nil {
		return fmt.Errorf("failed to persist store: %w", err)
	}
	return nil
}

// trimHistory enforces the retention policy: when the history exceeds max,
// keep the most recent system message (if one exists anywhere) plus the
// most recent max-1 messages, in original order. The seed system message
// is therefore never evicted.
func trimHistory(history []models.Message, max int) []models.Message {
	if len(history) <= max {
		return history
	}

	tail := history[len(history)-(max-1):]

	systemIdx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleSystem {
			systemIdx = i
			break
		}
	}

	if systemIdx < 0 || systemIdx >= len(history)-(max-1) {
		// No system message, or it already sits inside the tail.
		return append([]models.Message(nil), tail...)
	}

	trimmed := make([]models.Message, 0, max)
	trimmed = append(trimmed, history[systemIdx])
	trimmed = append(trimmed, tail...)
	return trimmed
}

// GetHistory returns the full ordered history, or an empty slice when no
// session exists.
func (m *Manager) GetHistory(userID int64) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	sess, exists := m.store.Sessions[userID]
	if !exists {
		return []models.Message{}, nil
	}
	return append([]models.Message(nil), sess.History...), nil
}

// ClearHistory replaces the user's history with a single fresh seed
// message. Absent sessions are a no-op.
func (m *Manager) ClearHistory(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	sess, exists := m.store.Sessions[userID]
	if !exists {
		return nil
	}

	now := m.now()
	sess.History = []models.Message{{
		ID:        uuid.New().String(),
		Role:      models.RoleSystem,
		Content:   m.seedMessage,
		Timestamp: now.UnixMilli(),
		Kind:      models.TextMessage,
	}}
	sess.LastActivity = now

	if err := m.persister.Persist(m.store); err != nil {
		return fmt.Errorf("failed to persist store: %w", err)
	}
	return nil
}

// UpdateMemory shallow-merges the partial update into the user's memory
// profile. Absent sessions are a no-op.
func (m *Manager) UpdateMemory(userID int64, update models.MemoryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	sess, exists := m.store.Sessions[userID]
	if !exists {
		return nil
	}

	sess.Memory.Merge(update)
	sess.LastActivity = m.now()

	if err := m.persister.Persist(m.store); err != nil {
		return fmt.Errorf("failed to persist store: %w", err)
	}
	return nil
}

// GetMemory returns the user's memory profile, or ErrSessionNotFound.
func (m *Manager) GetMemory(userID int64) (*models.MemoryProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return nil, ErrNotInitialized
	}

	sess, exists := m.store.Sessions[userID]
	if !exists {
		return nil, fmt.Errorf("memory for user %d: %w", userID, ErrSessionNotFound)
	}
	profile := sess.Memory.Clone()
	return &profile, nil
}

// GetStatistics returns a copy of the aggregate counters.
func (m *Manager) GetStatistics() (models.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return models.Statistics{}, ErrNotInitialized
	}
	return m.store.Statistics, nil
}

// SweepInactive deletes every session whose last activity is older than
// maxIdle. TotalUsers is a historical counter and is not decremented.
// The store is only rewritten when something was actually deleted.
func (m *Manager) SweepInactive(maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return 0, ErrNotInitialized
	}

	cutoff := m.now().Add(-maxIdle)
	deleted := 0
	for userID, sess := range m.store.Sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(m.store.Sessions, userID)
			deleted++
			m.logger.Info("Swept inactive session",
				zap.Int64("user_id", userID),
				zap.Time("last_activity", sess.LastActivity))
		}
	}

	if deleted == 0 {
		return 0, nil
	}
	if err := m.persister.Persist(m.store); err != nil {
		return deleted, fmt.Errorf("failed to persist store: %w", err)
	}
	return deleted, nil
}

func cloneSession(sess *models.Session) *models.Session {
	out := *sess
	out.History = append([]models.Message(nil), sess.History...)
	out.Memory = sess.Memory.Clone()
	if sess.DisplayInfo != nil {
		info := *sess.DisplayInfo
		out.DisplayInfo = &info
	}
	return &out
}
