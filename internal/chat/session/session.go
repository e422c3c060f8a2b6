package session

import (
	"context"
	"net"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-chat-go/internal/chat/framer"
	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/pkg/log"
	"github.com/lk2023060901/garden-chat-go/pkg/metrics"
)

// Session binds an authenticated user to their connection. Every session
// owns one delivery goroutine that drains the outbound queue and writes
// frames; it is the only writer on the connection after login, so frames
// from different senders never interleave.
//
// Lifecycle: New -> Register with the registry -> Start -> Close. Close
// stops intake, lets the delivery goroutine flush what was already queued,
// then closes the transport.
type Session struct {
	username string
	conn     net.Conn
	framer   *framer.Framer
	queue    *Queue

	ctx    context.Context
	cancel context.CancelFunc

	startedAt time.Time

	wg          sync.WaitGroup
	closeOnce   sync.Once
	connOnce    sync.Once
	deliveryErr uatomic.Error

	lg *log.MLogger
}

// New creates a session for an authenticated connection. The delivery
// goroutine is not started until Start, so a session that loses the
// registry race can be discarded cheaply.
func New(parent context.Context, username string, conn net.Conn, f *framer.Framer) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		username:  username,
		conn:      conn,
		framer:    f,
		queue:     NewQueue(),
		ctx:       ctx,
		cancel:    cancel,
		startedAt: time.Now(),
		lg: log.With(
			log.FieldUser(username),
			log.FieldRemote(conn.RemoteAddr().String()),
		).WithRateGroup("session."+username, 1, 60),
	}
}

// Username returns the authenticated username.
func (s *Session) Username() string {
	return s.username
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Context is canceled when the session is closing or its delivery path has
// failed. The connection handler watches it indirectly: a delivery failure
// also closes the transport, which unblocks the handler's read loop.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Enqueue hands a message to the delivery goroutine. It never blocks the
// caller; once the session is closing it returns ErrSessionClosed and the
// message is dropped.
func (s *Session) Enqueue(msg protocol.Message) error {
	return s.queue.Push(msg)
}

// QueueLen returns the number of messages waiting for delivery.
func (s *Session) QueueLen() int {
	return s.queue.Len()
}

// Start launches the delivery goroutine.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.deliverLoop()
}

func (s *Session) deliverLoop() {
	defer s.wg.Done()

	for {
		msg, ok := s.queue.Pop()
		if !ok {
			return
		}

		data, err := protocol.Encode(msg)
		if err != nil {
			s.lg.Warn("dropping undeliverable message", zap.Error(err))
			continue
		}
		if err := s.framer.WriteFrame(s.conn, data); err != nil {
			s.deliveryErr.Store(err)
			metrics.DeliveryFailures.Inc()
			s.lg.Warn("delivery write failed, closing session", zap.Error(err))
			// Cancel and close the transport so the read loop unblocks and
			// the handler runs its usual cleanup. Remaining queued messages
			// are unrecoverable at this point and are dropped.
			s.cancel()
			s.closeConn()
			return
		}
		metrics.MessagesDelivered.Inc()
	}
}

// DeliveryError returns the write error that stopped the delivery goroutine,
// or nil while delivery is healthy. It is stable once Close has returned, so
// the connection handler reads it during cleanup to audit the failure.
func (s *Session) DeliveryError() error {
	return s.deliveryErr.Load()
}

// Close shuts the session down exactly once: stop intake, flush messages
// that were queued before the close, then close the transport. Safe to call
// from any goroutine, including concurrently with a delivery failure.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.queue.Close()
		s.wg.Wait()
		s.cancel()
		s.closeConn()
	})
	return nil
}

func (s *Session) closeConn() {
	s.connOnce.Do(func() {
		_ = s.conn.Close()
	})
}
