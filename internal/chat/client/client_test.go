package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-chat-go/internal/chat/audit"
	"github.com/lk2023060901/garden-chat-go/internal/chat/auth"
	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/internal/chat/server"
)

func startServer(t *testing.T) string {
	t.Helper()

	srv, err := server.New(server.Config{
		Addr:            "127.0.0.1:0",
		MetricsInterval: time.Hour,
	}, auth.NewStore(auth.DefaultUsers()), audit.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil },
		2*time.Second, 10*time.Millisecond)
	return srv.Addr().String()
}

func dialAndLogin(t *testing.T, addr, user, pass string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	resp, err := c.Login(user, pass)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Reason)
	return c
}

func TestDialRefusedEventuallyGivesUp(t *testing.T) {
	_, err := Dial(context.Background(), Config{
		Addr:           "127.0.0.1:1", // nothing listens there
		DialTimeout:    200 * time.Millisecond,
		MaxElapsedTime: 300 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestLoginRetryAfterWrongPassword(t *testing.T) {
	addr := startServer(t)

	c, err := Dial(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Login("user1", "wrong")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "Invalid password (1/2)", resp.Reason)

	resp, err = c.Login("user1", "pass1")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "Welcome user1!", resp.Msg)
}

func TestEndToEndMessaging(t *testing.T) {
	addr := startServer(t)

	alice := dialAndLogin(t, addr, "user1", "pass1")
	bob := dialAndLogin(t, addr, "user2", "pass2")

	bobInbox := make(chan protocol.Message, 16)
	bob.Start(func(m protocol.Message) { bobInbox <- m })
	aliceInbox := make(chan protocol.Message, 16)
	alice.Start(func(m protocol.Message) { aliceInbox <- m })

	require.NoError(t, alice.SendDM("user2", "hello bob"))
	select {
	case m := <-bobInbox:
		dm, ok := m.(*protocol.DM)
		require.True(t, ok)
		assert.Equal(t, "user1", dm.From)
		assert.Equal(t, "hello bob", dm.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("DM never arrived")
	}

	require.NoError(t, bob.Broadcast("hi everyone"))
	select {
	case m := <-aliceInbox:
		bc, ok := m.(*protocol.Broadcast)
		require.True(t, ok)
		assert.Equal(t, "user2", bc.From)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never arrived")
	}

	require.NoError(t, alice.RequestUsers())
	select {
	case m := <-aliceInbox:
		users, ok := m.(*protocol.UsersResp)
		require.True(t, ok)
		assert.Equal(t, []string{"user1", "user2"}, users.Users)
	case <-time.After(2 * time.Second):
		t.Fatal("users response never arrived")
	}
}

func TestLogoutClosesClient(t *testing.T) {
	addr := startServer(t)

	c := dialAndLogin(t, addr, "user3", "pass3")
	c.Start(nil)
	require.NoError(t, c.Logout())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not report done after logout")
	}
	assert.NoError(t, c.Close())
}
