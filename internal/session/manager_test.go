package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avendel/supportbot/internal/models"
)

type stubPersister struct {
	store    *models.Store
	persists int
	failWith error
}

func (s *stubPersister) Load() (*models.Store, error) {
	if s.store == nil {
		s.store = models.NewStore()
	}
	return s.store, nil
}

func (s *stubPersister) Persist(store *models.Store) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.persists++
	return nil
}

func (s *stubPersister) Close() error { return nil }

func newTestManager(t *testing.T, maxHistory int) (*Manager, *stubPersister) {
	t.Helper()
	stub := &stubPersister{}
	m := NewManager(stub, Config{MaxHistory: maxHistory}, zap.NewNop())
	require.NoError(t, m.Initialize())
	return m, stub
}

func TestUninitializedUse(t *testing.T) {
	m := NewManager(&stubPersister{}, Config{}, zap.NewNop())

	_, err := m.GetOrCreateSession(1, 1, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = m.AppendMessage(1, models.NewMessage(models.RoleUser, "hi"))
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.GetHistory(1)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.GetStatistics()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.SweepInactive(time.Hour)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestGetOrCreateSessionIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 10)

	first, err := m.GetOrCreateSession(100, 7, &models.DisplayInfo{Username: "ann"})
	require.NoError(t, err)
	require.Len(t, first.History, 1)
	assert.Equal(t, models.RoleSystem, first.History[0].Role)
	assert.NotEmpty(t, first.Memory.Interests)

	second, err := m.GetOrCreateSession(100, 7, &models.DisplayInfo{Username: "renamed"})
	require.NoError(t, err)

	// Display info is a first-contact snapshot, never refreshed.
	assert.Equal(t, "ann", second.DisplayInfo.Username)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalUsers)
}

func TestGetOrCreateSessionRefreshesActivity(t *testing.T) {
	m, _ := newTestManager(t, 10)

	base := time.Now()
	m.now = func() time.Time { return base }
	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(time.Hour) }
	sess, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), sess.LastActivity)
	assert.Equal(t, base, sess.CreatedAt)
}

func TestAppendMessageBoundedHistory(t *testing.T) {
	m, _ := newTestManager(t, 3)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	require.NoError(t, m.AppendMessage(7, models.NewMessage(models.RoleUser, "hi")))
	require.NoError(t, m.AppendMessage(7, models.NewMessage(models.RoleAssistant, "hello")))
	require.NoError(t, m.AppendMessage(7, models.NewMessage(models.RoleUser, "bye")))

	history, err := m.GetHistory(7)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Oldest non-system message evicted, seed retained at index 0.
	assert.Equal(t, models.RoleSystem, history[0].Role)
	assert.Equal(t, "hello", history[1].Content)
	assert.Equal(t, "bye", history[2].Content)
}

func TestHistoryNeverExceedsBound(t *testing.T) {
	m, _ := newTestManager(t, 5)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.AppendMessage(7, models.NewMessage(models.RoleUser, "msg")))
		history, err := m.GetHistory(7)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(history), 5)
		if len(history) == 5 {
			assert.Equal(t, models.RoleSystem, history[0].Role)
		}
	}
}

func TestAppendMessageMissingSession(t *testing.T) {
	m, _ := newTestManager(t, 10)

	err := m.AppendMessage(42, models.NewMessage(models.RoleUser, "hi"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendMessageTimestampsNonDecreasing(t *testing.T) {
	m, _ := newTestManager(t, 10)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	late := models.NewMessage(models.RoleUser, "first")
	late.Timestamp = time.Now().Add(time.Hour).UnixMilli()
	require.NoError(t, m.AppendMessage(7, late))

	early := models.NewMessage(models.RoleUser, "second")
	early.Timestamp = 1
	require.NoError(t, m.AppendMessage(7, early))

	history, err := m.GetHistory(7)
	require.NoError(t, err)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i].Timestamp, history[i-1].Timestamp)
	}
}

func TestGetHistoryMissingSession(t *testing.T) {
	m, _ := newTestManager(t, 10)

	history, err := m.GetHistory(42)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClearHistory(t *testing.T) {
	m, _ := newTestManager(t, 10)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)
	require.NoError(t, m.AppendMessage(7, models.NewMessage(models.RoleUser, "hi")))

	require.NoError(t, m.ClearHistory(7))

	history, err := m.GetHistory(7)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleSystem, history[0].Role)

	// Absent session is a no-op, not an error.
	assert.NoError(t, m.ClearHistory(42))
}

func TestUpdateMemoryShallowMerge(t *testing.T) {
	m, _ := newTestManager(t, 10)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	before, err := m.GetMemory(7)
	require.NoError(t, err)

	require.NoError(t, m.UpdateMemory(7, models.MemoryUpdate{
		Goals: []string{"sleep better"},
	}))

	after, err := m.GetMemory(7)
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep better"}, after.Goals)
	assert.Equal(t, before.Interests, after.Interests)
	assert.Equal(t, before.CommunicationStyle, after.CommunicationStyle)
	assert.Equal(t, before.Preferences, after.Preferences)

	// Absent session is a no-op.
	assert.NoError(t, m.UpdateMemory(42, models.MemoryUpdate{Goals: []string{"x"}}))
}

func TestGetMemoryMissingSession(t *testing.T) {
	m, _ := newTestManager(t, 10)

	_, err := m.GetMemory(42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStatisticsCounters(t *testing.T) {
	m, _ := newTestManager(t, 10)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)
	_, err = m.GetOrCreateSession(200, 8, nil)
	require.NoError(t, err)
	require.NoError(t, m.AppendMessage(7, models.NewMessage(models.RoleUser, "hi")))
	require.NoError(t, m.AppendMessage(8, models.NewMessage(models.RoleUser, "hey")))
	require.NoError(t, m.AppendMessage(8, models.NewMessage(models.RoleAssistant, "hello")))

	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(3), stats.TotalMessages)
}

func TestSweepInactiveBoundaries(t *testing.T) {
	m, stub := newTestManager(t, 10)

	touched := time.Now()
	m.now = func() time.Time { return touched }
	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	idle := 24 * time.Hour

	m.now = func() time.Time { return touched.Add(idle - time.Second) }
	deleted, err := m.SweepInactive(idle)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	persistsBefore := stub.persists
	m.now = func() time.Time { return touched.Add(idle + time.Second) }
	deleted, err = m.SweepInactive(idle)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, persistsBefore+1, stub.persists)

	// Historical counter survives the deletion.
	stats, err := m.GetStatistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalUsers)

	// Nothing left to sweep, so no write happens.
	persistsBefore = stub.persists
	deleted, err = m.SweepInactive(idle)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, persistsBefore, stub.persists)
}

func TestPersistFailurePropagates(t *testing.T) {
	m, stub := newTestManager(t, 10)

	_, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	writeErr := errors.New("disk full")
	stub.failWith = writeErr

	err = m.AppendMessage(7, models.NewMessage(models.RoleUser, "hi"))
	assert.ErrorIs(t, err, writeErr)

	_, err = m.GetOrCreateSession(200, 8, nil)
	assert.ErrorIs(t, err, writeErr)
}

func TestReturnedSessionDoesNotAliasStore(t *testing.T) {
	m, _ := newTestManager(t, 10)

	sess, err := m.GetOrCreateSession(100, 7, nil)
	require.NoError(t, err)

	sess.History[0].Content = "tampered"
	sess.Memory.Interests[0] = "tampered"

	history, err := m.GetHistory(7)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", history[0].Content)

	memory, err := m.GetMemory(7)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", memory.Interests[0])
}
