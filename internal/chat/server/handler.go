package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/internal/chat/router"
	"github.com/lk2023060901/garden-chat-go/internal/chat/session"
	"github.com/lk2023060901/garden-chat-go/pkg/log"
	"github.com/lk2023060901/garden-chat-go/pkg/metrics"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

// Login failure reasons sent to the client.
const (
	reasonAlreadyOnline   = "User already logged in"
	reasonInvalidUsername = "Invalid username"
	reasonTooManyAttempts = "Too many wrong attempts"
)

// Login result labels for metrics and the audit trail.
const (
	loginOK              = "ok"
	loginInvalidUsername = "invalid_username"
	loginWrongPassword   = "wrong_password"
	loginAlreadyOnline   = "already_online"
	loginTooManyAttempts = "too_many_attempts"
)

// connHandler drives one TCP connection through its whole life: the login
// phase, the chat message loop and cleanup. It is the sole reader on the
// connection; after login the session's delivery goroutine is the sole
// writer, and the handler is the sole owner of cleanup.
type connHandler struct {
	srv  *Server
	conn net.Conn
	sess *session.Session
	lg   *log.MLogger
}

func newConnHandler(srv *Server, conn net.Conn) *connHandler {
	return &connHandler{
		srv:  srv,
		conn: conn,
		lg:   srv.lg.With(log.FieldRemote(conn.RemoteAddr().String())),
	}
}

func (h *connHandler) run(ctx context.Context) {
	defer h.cleanup()

	sess, err := h.authenticate(ctx)
	if err != nil {
		if !isPeerGone(err) {
			h.lg.Info("login phase ended", zap.Error(err))
		}
		return
	}
	h.sess = sess
	h.lg = h.lg.With(log.FieldUser(sess.Username()))
	h.lg.Info("user logged in")

	h.messageLoop()
}

// authenticate runs the login phase: it reads frames until a login succeeds
// or the connection must be dropped. Wrong passwords are retriable until the
// attempt budget is spent; every other failure is terminal.
func (h *connHandler) authenticate(ctx context.Context) (*session.Session, error) {
	attempts := 0

	for {
		payload, err := h.srv.framer.ReadFrame(h.conn)
		if err != nil {
			return nil, err
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			h.srv.audit.MalformedInput("", err)
			return nil, err
		}

		req, ok := msg.(*protocol.LoginReq)
		if !ok {
			// Any traffic before login is a protocol violation. Reject it
			// explicitly and drop the connection.
			h.reply(&protocol.ErrorMsg{Msg: "not authenticated"})
			return nil, merr.WrapErrAuthRequired(string(msg.Kind()))
		}

		h.srv.audit.LoginAttempt(req.Username)

		// Fast-path check so a user who is already online gets the dedicated
		// reason even with correct credentials. The registry insert below
		// remains the authoritative gate.
		if _, online := h.srv.registry.Get(req.Username); online {
			h.rejectLogin(req.Username, loginAlreadyOnline, reasonAlreadyOnline)
			return nil, merr.WrapErrAlreadyOnline(req.Username)
		}

		if err := h.srv.creds.Verify(req.Username, req.Password, attempts+1, h.srv.cfg.MaxPasswordAttempts); err != nil {
			if errors.Is(err, merr.ErrAuthUserNotFound) {
				h.rejectLogin(req.Username, loginInvalidUsername, reasonInvalidUsername)
				return nil, err
			}

			attempts++
			if attempts >= h.srv.cfg.MaxPasswordAttempts {
				h.rejectLogin(req.Username, loginTooManyAttempts, reasonTooManyAttempts)
				return nil, merr.WrapErrTooManyAttempts(req.Username)
			}

			reason := fmt.Sprintf("Invalid password (%d/%d)", attempts, h.srv.cfg.MaxPasswordAttempts)
			h.rejectLogin(req.Username, loginWrongPassword, reason)
			continue
		}

		sess := session.New(ctx, req.Username, h.conn, h.srv.framer)

		// The welcome goes through the queue rather than a direct write:
		// once Register returns, routed messages may arrive at any moment,
		// and the delivery goroutine must stay the connection's only writer.
		// Queued before Register, the welcome is guaranteed to go out first.
		_ = sess.Enqueue(&protocol.LoginResp{OK: true, Msg: fmt.Sprintf("Welcome %s!", req.Username)})

		if err := h.srv.registry.Register(sess); err != nil {
			// Another connection won the name between the check above and
			// this insert.
			h.rejectLostRace(sess, req.Username)
			return nil, err
		}

		metrics.LoginAttempts.WithLabelValues(loginOK).Inc()
		metrics.OnlineSessions.Inc()
		h.srv.audit.LoginResult(req.Username, loginOK)

		sess.Start()
		return sess, nil
	}
}

// rejectLostRace handles a login that lost the registry insert to a
// concurrent connection. The failure reason must reach the peer first:
// closing the session also closes the shared transport, and delivery never
// started for the loser, so its queued welcome dies unsent.
func (h *connHandler) rejectLostRace(sess *session.Session, username string) {
	h.rejectLogin(username, loginAlreadyOnline, reasonAlreadyOnline)
	_ = sess.Close()
}

func (h *connHandler) rejectLogin(username, result, reason string) {
	metrics.LoginAttempts.WithLabelValues(result).Inc()
	h.srv.audit.LoginResult(username, result)
	h.reply(&protocol.LoginResp{OK: false, Reason: reason})
}

// reply writes a message directly during the login phase, before the
// session's delivery goroutine exists. Write errors are ignored; the
// connection is about to be dropped or the read loop will notice.
func (h *connHandler) reply(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	_ = h.srv.framer.WriteFrame(h.conn, data)
}

// messageLoop dispatches chat traffic until the peer disconnects, logs out,
// sends garbage, or the delivery goroutine kills the connection.
func (h *connHandler) messageLoop() {
	user := h.sess.Username()

	for {
		payload, err := h.srv.framer.ReadFrame(h.conn)
		if err != nil {
			if !isPeerGone(err) {
				h.lg.Warn("read failed", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Decode(payload)
		if err != nil {
			// Malformed input terminates the session. No reply is sent;
			// the peer already violated the protocol.
			h.srv.audit.MalformedInput(user, err)
			h.lg.Warn("malformed message, dropping connection", zap.Error(err))
			return
		}

		switch m := msg.(type) {
		case *protocol.Logout:
			h.srv.audit.Logout(user)
			h.lg.Info("user logged out")
			return

		case *protocol.LoginReq:
			if err := h.sess.Enqueue(&protocol.ErrorMsg{Msg: "already authenticated"}); err != nil {
				return
			}

		case *protocol.DM, *protocol.Multi, *protocol.Broadcast, *protocol.UsersReq:
			if !h.dispatch(m, len(payload)) {
				return
			}

		default:
			// Client-bound kinds arriving from a client are protocol abuse.
			h.srv.audit.MalformedInput(user, merr.WrapErrMessageUnknownType(string(msg.Kind())))
			h.lg.Warn("unexpected message kind", zap.String("kind", string(msg.Kind())))
			return
		}
	}
}

// dispatch routes one chat message. Returns false when the connection must
// be dropped.
func (h *connHandler) dispatch(msg protocol.Message, payloadSize int) bool {
	user := h.sess.Username()

	h.auditMessage(user, msg, payloadSize)

	deliveries, err := router.Plan(user, msg, h.srv.registry.Snapshot())
	if err != nil {
		h.srv.audit.MalformedInput(user, err)
		h.lg.Warn("unroutable message", zap.Error(err))
		return false
	}

	for _, d := range deliveries {
		if err := d.To.Enqueue(d.Msg); err != nil {
			// The recipient is shutting down; routing treats that the same
			// as already offline.
			h.lg.RatedDebug(1, "recipient closing, message dropped",
				zap.String("to", d.To.Username()))
		}
	}

	h.srv.processed.Inc()
	metrics.MessagesProcessed.WithLabelValues(string(msg.Kind())).Inc()
	metrics.RoutedBytes.WithLabelValues(string(msg.Kind())).Add(float64(payloadSize))
	return true
}

func (h *connHandler) auditMessage(user string, msg protocol.Message, size int) {
	switch m := msg.(type) {
	case *protocol.DM:
		h.srv.audit.Message(user, m.To, string(protocol.KindDM), size)
	case *protocol.Multi:
		h.srv.audit.MessageMulti(user, m.To, size)
	case *protocol.Broadcast:
		h.srv.audit.Message(user, "ALL", string(protocol.KindBroadcast), size)
	}
}

// cleanup runs exactly once per connection, authenticated or not. For an
// authenticated session it unregisters first so new logins with the same
// name succeed, then closes the session, which flushes queued deliveries
// before the transport goes away.
func (h *connHandler) cleanup() {
	if h.sess == nil {
		_ = h.conn.Close()
		h.srv.audit.Disconnect("", 0)
		h.lg.Info("client disconnected before login")
		return
	}

	user := h.sess.Username()
	if err := h.srv.registry.Unregister(user); err == nil {
		metrics.OnlineSessions.Dec()
	}
	_ = h.sess.Close()
	if derr := h.sess.DeliveryError(); derr != nil {
		h.srv.audit.SendError(user, derr)
	}
	h.srv.audit.Disconnect(user, time.Since(h.sess.StartedAt()))
	h.lg.Info("client disconnected", zap.Duration("sessionDuration", time.Since(h.sess.StartedAt())))
}

// isPeerGone reports whether err is an ordinary disconnect rather than a
// server-side fault.
func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
