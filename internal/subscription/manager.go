package subscription

import (
	"context"
	"sync"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/sirupsen/logrus"
)

// Manager owns the subscriptions of the server and runs one goroutine per subscription.
type Manager struct {
	mu        sync.Mutex
	nextID    uint32
	subs      map[uint32]*Subscription
	cancels   map[uint32]context.CancelFunc
	view      addressspace.View
	publisher Publisher
	logger    *logrus.Logger
	opts      []Option
	ctx       context.Context
	wg        sync.WaitGroup
}

// NewManager returns a Manager whose subscriptions sample view and publish to p.
func NewManager(view addressspace.View, p Publisher, logger *logrus.Logger, opts ...Option) *Manager {
	return &Manager{
		subs:      make(map[uint32]*Subscription),
		cancels:   make(map[uint32]context.CancelFunc),
		view:      view,
		publisher: p,
		logger:    logger,
		opts:      opts,
	}
}

// Create adds a subscription. It starts immediately when the manager is running.
func (m *Manager) Create(cfg Config) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := New(m.nextID, cfg, m.view, m.publisher, m.logger, m.opts...)
	m.subs[s.id] = s
	if m.ctx != nil {
		m.start(s)
	}
	return s
}

// Find returns the subscription with the given id.
func (m *Manager) Find(id uint32) (*Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	return s, ok
}

// Len returns the number of subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Delete stops and removes the subscription with the given id.
func (m *Manager) Delete(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return false
	}
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	delete(m.subs, id)
	s.metrics.ItemsChanged(-s.Len())
	return true
}

// Run starts every subscription and blocks until ctx is done and all of them have stopped.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	for _, s := range m.subs {
		m.start(s)
	}
	m.mu.Unlock()

	<-ctx.Done()
	m.wg.Wait()
}

// Close stops every subscription and waits for them.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) start(s *Subscription) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancels[s.id] = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Run(ctx)
	}()
}
