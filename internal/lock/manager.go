// Package lock implements the Conversation Lock Manager: a process-wide
// registry that serializes handlers per conversation id (P1) while bounding
// total in-flight conversations with a global semaphore (P2).
package lock

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Handler is the unit of work acquired under a conversation id. It receives
// a context that is cancelled on Manager.Shutdown.
type Handler func(ctx context.Context) error

// ErrorReporter receives a handler's error after it has been dequeued and
// run; the Lock Manager itself never formats or replies to the user (§7).
type ErrorReporter func(conversationID string, err error)

// queueEntry is one pending acquisition waiting for its turn on a
// conversation's FIFO queue.
type queueEntry struct {
	handler Handler
	done    chan error
}

// conversationQueue holds the pending and in-flight work for one
// conversation id. A queue with no pending entries and no active executor is
// removed from the registry to keep memory bounded.
type conversationQueue struct {
	mu      sync.Mutex
	pending []queueEntry
	running bool
}

// Manager is the Conversation Lock Manager (§4.1).
type Manager struct {
	sem           *semaphore.Weighted
	maxConcurrent int64

	mu        sync.Mutex
	queues    map[string]*conversationQueue
	active    map[string]bool
	queuedLen map[string]int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	reporter ErrorReporter
}

// Stats mirrors §4.1's stats() contract.
type Stats struct {
	Active               int
	QueuedTotal           int
	QueuedByConversation  map[string]int
	ActiveConversationIDs []string
	MaxConcurrent         int
}

// NewManager creates a Lock Manager bounded to maxConcurrent simultaneously
// running conversations. reporter receives handler errors; it may be nil, in
// which case errors are only logged.
func NewManager(maxConcurrent int, reporter ErrorReporter) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: int64(maxConcurrent),
		queues:        make(map[string]*conversationQueue),
		active:        make(map[string]bool),
		queuedLen:     make(map[string]int),
		ctx:           ctx,
		cancel:        cancel,
		reporter:      reporter,
	}
}

// Acquire enqueues handler under conversationID and blocks until it has run.
// Two calls to Acquire for the same id from the same goroutine observe
// strict FIFO completion order (P1); the global semaphore bounds how many
// distinct conversations execute at once (P2).
func (m *Manager) Acquire(conversationID string, handler Handler) error {
	done := make(chan error, 1)

	m.mu.Lock()
	q, ok := m.queues[conversationID]
	if !ok {
		q = &conversationQueue{}
		m.queues[conversationID] = q
	}
	m.mu.Unlock()

	q.mu.Lock()
	q.pending = append(q.pending, queueEntry{handler: handler, done: done})
	m.incQueued(conversationID)
	startExecutor := !q.running
	if startExecutor {
		q.running = true
	}
	q.mu.Unlock()

	if startExecutor {
		m.wg.Add(1)
		go m.runQueue(conversationID, q)
	}

	select {
	case err := <-done:
		return err
	case <-m.ctx.Done():
		// Shutdown still waits for in-flight handlers; a caller blocked on a
		// handler that never got a slot observes cancellation instead of hanging.
		return m.ctx.Err()
	}
}

// runQueue drains a conversation's pending entries one at a time, acquiring
// the global semaphore once per conversation while it has work and holding
// it across consecutive entries so the semaphore slot is released only when
// the per-id queue is empty, per §4.1.
func (m *Manager) runQueue(conversationID string, q *conversationQueue) {
	defer m.wg.Done()

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		// Context cancelled during shutdown: fail every pending entry rather
		// than leaving callers blocked forever.
		q.mu.Lock()
		pending := q.pending
		q.pending = nil
		q.running = false
		q.mu.Unlock()
		for _, e := range pending {
			e.done <- err
		}
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	m.active[conversationID] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, conversationID)
		m.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			m.mu.Lock()
			delete(m.queues, conversationID)
			m.mu.Unlock()
			return
		}
		entry := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		m.decQueued(conversationID)

		err := entry.handler(m.ctx)
		if err != nil && m.reporter != nil {
			m.reporter(conversationID, err)
		}
		if err != nil {
			slog.Error("conversation handler failed", "conversation_id", conversationID, "error", err)
		}
		entry.done <- err
	}
}

func (m *Manager) incQueued(id string) {
	m.mu.Lock()
	m.queuedLen[id]++
	m.mu.Unlock()
}

func (m *Manager) decQueued(id string) {
	m.mu.Lock()
	m.queuedLen[id]--
	if m.queuedLen[id] <= 0 {
		delete(m.queuedLen, id)
	}
	m.mu.Unlock()
}

// Stats reports the manager's current load.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		MaxConcurrent:        int(m.maxConcurrent),
		QueuedByConversation: make(map[string]int, len(m.queuedLen)),
	}
	for id := range m.active {
		s.ActiveConversationIDs = append(s.ActiveConversationIDs, id)
	}
	s.Active = len(s.ActiveConversationIDs)
	for id, n := range m.queuedLen {
		if n > 0 {
			s.QueuedByConversation[id] = n
			s.QueuedTotal += n
		}
	}
	return s
}

// Shutdown cancels the handler context and waits for every in-flight and
// queued handler to finish draining before returning.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
