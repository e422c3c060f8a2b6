package registry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-chat-go/internal/chat/framer"
	"github.com/lk2023060901/garden-chat-go/internal/chat/session"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

func newTestSession(t *testing.T, username string) *session.Session {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return session.New(context.Background(), username, server, framer.New(0))
}

func TestRegisterDuplicate(t *testing.T) {
	reg := New()
	first := newTestSession(t, "user1")
	second := newTestSession(t, "user1")

	require.NoError(t, reg.Register(first))
	err := reg.Register(second)
	assert.Equal(t, merr.Code(merr.ErrAuthAlreadyOnline), merr.Code(err))

	// The original entry survives the rejected insert.
	got, ok := reg.Get("user1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestUnregister(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(newTestSession(t, "user1")))
	require.NoError(t, reg.Unregister("user1"))

	err := reg.Unregister("user1")
	assert.Equal(t, merr.Code(merr.ErrSessionNotFound), merr.Code(err))
	assert.Zero(t, reg.Count())
}

func TestSnapshotSortedAndStable(t *testing.T) {
	reg := New()
	for _, user := range []string{"user3", "user1", "user2"} {
		require.NoError(t, reg.Register(newTestSession(t, user)))
	}

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "user1", snap[0].Username())
	assert.Equal(t, "user2", snap[1].Username())
	assert.Equal(t, "user3", snap[2].Username())

	// Later churn does not reach into an existing snapshot.
	require.NoError(t, reg.Unregister("user2"))
	assert.Len(t, snap, 3)

	assert.Equal(t, []string{"user1", "user3"}, reg.Usernames())
}

func TestRegisterRace(t *testing.T) {
	reg := New()

	const contenders = 16
	var wg sync.WaitGroup
	var succeeded sync.Map
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newTestSession(t, "user1")
			if err := reg.Register(s); err == nil {
				succeeded.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	wins := 0
	succeeded.Range(func(_, _ any) bool {
		wins++
		return true
	})
	assert.Equal(t, 1, wins, fmt.Sprintf("exactly one of %d contenders may win", contenders))
	assert.Equal(t, 1, reg.Count())
}
