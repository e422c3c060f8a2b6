package client

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-chat-go/internal/chat/framer"
	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/pkg/log"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

// Config tunes a chat client connection.
type Config struct {
	// Addr is the server address, host:port.
	Addr string `mapstructure:"addr"`
	// DialTimeout bounds a single TCP connect attempt.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	// MaxElapsedTime bounds the whole retried dial; zero retries forever
	// until ctx is canceled.
	MaxElapsedTime time.Duration `mapstructure:"max-elapsed-time"`
	// MaxFrameSize bounds a single wire frame payload in bytes.
	MaxFrameSize int `mapstructure:"max-frame-size"`
}

func (c *Config) withDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:5000"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = 30 * time.Second
	}
}

// Handler receives every server-to-client message once the receive loop is
// started. It runs on the receive goroutine; slow handlers delay receipt.
type Handler func(protocol.Message)

// Client is a framed-protocol chat client. The flow is Dial, Login (possibly
// repeated while the server reports a retriable password failure), then
// Start to begin asynchronous receiving.
type Client struct {
	cfg  Config
	conn net.Conn
	f    *framer.Framer

	// wmu serializes frame writes; Send* methods may be called from the REPL
	// goroutine while Logout runs elsewhere.
	wmu sync.Mutex

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once

	lg *log.MLogger
}

// Dial connects with exponential backoff until the server accepts, the
// elapsed-time budget runs out, or ctx is canceled.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.withDefaults()

	var conn net.Conn
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 3 * time.Second
	policy.MaxElapsedTime = cfg.MaxElapsedTime

	err := backoff.Retry(func() error {
		var dialer net.Dialer
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()

		c, err := dialer.DialContext(dialCtx, "tcp", cfg.Addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, merr.WrapErrIoFailed(cfg.Addr, err)
	}

	return &Client{
		cfg:  cfg,
		conn: conn,
		f:    framer.New(cfg.MaxFrameSize),
		done: make(chan struct{}),
		lg:   log.With(log.FieldComponent("chatclient"), zap.String("server", cfg.Addr)),
	}, nil
}

// Login performs one LOGIN_REQ round trip. It must be called before Start;
// the reply is read synchronously. A rejected login with a retriable reason
// (wrong password below the attempt limit) leaves the connection usable for
// another Login call.
func (c *Client) Login(username, password string) (*protocol.LoginResp, error) {
	if err := c.send(&protocol.LoginReq{Username: username, Password: password}); err != nil {
		return nil, err
	}

	payload, err := c.f.ReadFrame(c.conn)
	if err != nil {
		return nil, merr.WrapErrIoFailed(c.cfg.Addr, err)
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*protocol.LoginResp)
	if !ok {
		return nil, merr.WrapErrMessageUnknownType(string(msg.Kind()), "expected LOGIN_RESP")
	}
	return resp, nil
}

// Start launches the receive loop. Every inbound message is passed to
// onMessage; when the connection drops the loop stops and Done is closed.
func (c *Client) Start(onMessage Handler) {
	go func() {
		defer c.markDone()
		for {
			payload, err := c.f.ReadFrame(c.conn)
			if err != nil {
				return
			}
			msg, err := protocol.Decode(payload)
			if err != nil {
				c.lg.Warn("undecodable message from server", zap.Error(err))
				return
			}
			if onMessage != nil {
				onMessage(msg)
			}
		}
	}()
}

// Done is closed when the receive loop has stopped or Close was called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SendDM sends a direct message.
func (c *Client) SendDM(to, msg string) error {
	return c.send(&protocol.DM{To: to, Msg: msg})
}

// SendMulti sends a message to several recipients at once.
func (c *Client) SendMulti(to []string, msg string) error {
	return c.send(&protocol.Multi{To: to, Msg: msg})
}

// Broadcast sends a message to every other online user.
func (c *Client) Broadcast(msg string) error {
	return c.send(&protocol.Broadcast{Msg: msg})
}

// RequestUsers asks for the online user list; the answer arrives on the
// receive loop as a USERS_RESP.
func (c *Client) RequestUsers() error {
	return c.send(&protocol.UsersReq{})
}

// Logout announces departure and closes the connection. The server sends no
// reply to a LOGOUT.
func (c *Client) Logout() error {
	err := c.send(&protocol.Logout{})
	closeErr := c.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Close tears the connection down. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		c.markDone()
	})
	return err
}

func (c *Client) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.f.WriteFrame(c.conn, data); err != nil {
		return merr.WrapErrIoFailed(c.cfg.Addr, err)
	}
	return nil
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}
