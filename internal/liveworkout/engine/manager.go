package engine

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Manager hands out the per-user engines. There is no process-wide session
// state; everything lives in the engine of the user it belongs to.
type Manager struct {
	deps Deps

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewManager(deps Deps) *Manager {
	if deps.Metrics != nil && deps.Committer != nil {
		deps.Committer.OnFallback = deps.Metrics.CounterFinishFallbacks.Inc
	}
	return &Manager{
		deps:    deps,
		engines: make(map[string]*Engine),
	}
}

// For returns the user's engine, creating it on first use.
func (m *Manager) For(userID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[userID]; ok {
		return e
	}
	e := New(userID, m.deps)
	m.engines[userID] = e
	log.Debugf("engine created for user %s", userID)
	return e
}

// Dispose stops and removes the user's engine, e.g. on logout. The session
// state itself stays persisted; a later For picks it back up via Resume.
func (m *Manager) Dispose(userID string) {
	m.mu.Lock()
	e, ok := m.engines[userID]
	delete(m.engines, userID)
	m.mu.Unlock()
	if !ok {
		return
	}
	e.Stop()
	log.Debugf("engine disposed for user %s", userID)
}

// StopAll tears every engine down, for graceful shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for id, e := range m.engines {
		engines = append(engines, e)
		delete(m.engines, id)
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.Stop()
	}
}
