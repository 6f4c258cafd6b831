package stream

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Subscription is the cancellable handle for one logical stream binding.
// A reconnect replaces the physical connection but never the handle, so the
// caller's identity and handlers survive transport failures.
type Subscription struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn Conn

	closeOnce sync.Once
}

func newSubscription(parent context.Context) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		id:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID identifies the subscription across reconnects.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Done closes when the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels the subscription. It is idempotent and blocks until the
// handler loop has exited, so no handler runs after Close returns — even for
// frames that were in flight at cancellation time.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close(websocket.StatusNormalClosure, "subscription closed")
		}
		s.mu.Unlock()
	})
	<-s.done
}

func (s *Subscription) setConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Subscription) clearConn() {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
}
