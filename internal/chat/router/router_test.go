package router

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-chat-go/internal/chat/framer"
	"github.com/lk2023060901/garden-chat-go/internal/chat/protocol"
	"github.com/lk2023060901/garden-chat-go/internal/chat/session"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

func snapshotOf(t *testing.T, usernames ...string) []*session.Session {
	t.Helper()
	out := make([]*session.Session, 0, len(usernames))
	for _, user := range usernames {
		server, client := net.Pipe()
		t.Cleanup(func() {
			server.Close()
			client.Close()
		})
		out = append(out, session.New(context.Background(), user, server, framer.New(0)))
	}
	return out
}

func targets(deliveries []Delivery) []string {
	out := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, d.To.Username())
	}
	return out
}

func TestPlanDM(t *testing.T) {
	snap := snapshotOf(t, "user1", "user2")

	out, err := Plan("user1", &protocol.DM{To: "user2", Msg: "hi"}, snap)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "user2", out[0].To.Username())

	dm := out[0].Msg.(*protocol.DM)
	assert.Equal(t, "user1", dm.From)
	assert.Empty(t, dm.To)
	assert.Equal(t, "hi", dm.Msg)
}

func TestPlanDMOfflineIsSilent(t *testing.T) {
	snap := snapshotOf(t, "user1")

	out, err := Plan("user1", &protocol.DM{To: "user3", Msg: "hi"}, snap)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPlanDMSelf(t *testing.T) {
	snap := snapshotOf(t, "user1", "user2")

	// Messaging yourself is allowed; it routes like any other DM.
	out, err := Plan("user1", &protocol.DM{To: "user1", Msg: "note"}, snap)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "user1", out[0].To.Username())
}

func TestPlanMulti(t *testing.T) {
	snap := snapshotOf(t, "user1", "user2", "user3")

	in := &protocol.Multi{
		To:  []string{"user2", "user9", "user3", "user2"},
		Msg: "meeting",
	}
	out, err := Plan("user1", in, snap)
	require.NoError(t, err)

	// Offline user9 skipped, duplicate user2 collapsed, order preserved.
	assert.Equal(t, []string{"user2", "user3"}, targets(out))
	for _, d := range out {
		m := d.Msg.(*protocol.Multi)
		assert.Equal(t, "user1", m.From)
		assert.Empty(t, m.To)
		assert.Equal(t, "meeting", m.Msg)
	}
}

func TestPlanMultiAllOffline(t *testing.T) {
	snap := snapshotOf(t, "user1")

	out, err := Plan("user1", &protocol.Multi{To: []string{"a", "b"}, Msg: "x"}, snap)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPlanBroadcastExcludesSender(t *testing.T) {
	snap := snapshotOf(t, "user1", "user2", "user3")

	out, err := Plan("user2", &protocol.Broadcast{Msg: "all hands"}, snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"user1", "user3"}, targets(out))
	for _, d := range out {
		assert.Equal(t, "user2", d.Msg.(*protocol.Broadcast).From)
	}
}

func TestPlanBroadcastAlone(t *testing.T) {
	snap := snapshotOf(t, "user1")

	out, err := Plan("user1", &protocol.Broadcast{Msg: "anyone?"}, snap)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPlanUsersReq(t *testing.T) {
	snap := snapshotOf(t, "user3", "user1", "user2")

	out, err := Plan("user2", &protocol.UsersReq{}, snap)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "user2", out[0].To.Username())
	assert.Equal(t, []string{"user1", "user2", "user3"}, out[0].Msg.(*protocol.UsersResp).Users)
}

func TestPlanMissingRecipients(t *testing.T) {
	snap := snapshotOf(t, "user1")

	_, err := Plan("user1", &protocol.DM{Msg: "x"}, snap)
	assert.Equal(t, merr.Code(merr.ErrMessageFieldMissing), merr.Code(err))

	_, err = Plan("user1", &protocol.Multi{Msg: "x"}, snap)
	assert.Equal(t, merr.Code(merr.ErrMessageFieldMissing), merr.Code(err))
}

func TestPlanUnroutedKinds(t *testing.T) {
	snap := snapshotOf(t, "user1", "user2")

	for _, in := range []protocol.Message{
		&protocol.Logout{},
		&protocol.LoginReq{Username: "user1"},
		&protocol.UsersResp{Users: []string{"user1"}},
		&protocol.ErrorMsg{Msg: "x"},
	} {
		out, err := Plan("user1", in, snap)
		require.NoError(t, err)
		assert.Empty(t, out, string(in.Kind()))
	}
}
