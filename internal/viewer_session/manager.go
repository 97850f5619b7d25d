package viewer_session

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Manager tracks open sessions by id. Each template field is copied into the
// options of sessions it opens unless the caller overrides it.
type Manager struct {
	template Options
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(template Options, logger *zap.Logger) *Manager {
	return &Manager{
		template: template,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session; it is forgotten once it closes.
func (m *Manager) Open(ctx context.Context, globe Globe, overrides Options) (*Session, error) {
	opts := m.template
	if overrides.Planet != "" {
		opts.Planet = overrides.Planet
		opts.Layer = ""
	}
	if overrides.Layer != "" {
		opts.Layer = overrides.Layer
	}
	if overrides.Resolution != "" {
		opts.Resolution = overrides.Resolution
	}
	opts.OnStatus = overrides.OnStatus

	s, err := New(ctx, globe, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	go func() {
		<-s.Done()
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
	}()

	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) List() []Status {
	m.mu.RLock()
	statuses := make([]Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		statuses = append(statuses, s.Status())
	}
	m.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].SessionID < statuses[j].SessionID })
	return statuses
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) CloseAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
	m.logger.Info("Closed viewer sessions", zap.Int("count", len(sessions)))
}
