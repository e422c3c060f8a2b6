package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

func TestEncodeStampsType(t *testing.T) {
	data, err := Encode(&DM{To: "user2", Msg: "hi"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"DM"`)

	m, err := Decode(data)
	require.NoError(t, err)
	dm, ok := m.(*DM)
	require.True(t, ok)
	assert.Equal(t, "user2", dm.To)
	assert.Equal(t, "hi", dm.Msg)
}

func TestDecodeAllKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
	}{
		{`{"type":"LOGIN_REQ","username":"user1","password":"pass1"}`, KindLoginReq},
		{`{"type":"LOGIN_RESP","ok":true,"msg":"Welcome user1!"}`, KindLoginResp},
		{`{"type":"DM","to":"user2","msg":"x"}`, KindDM},
		{`{"type":"MULTI","to":["user2","user3"],"msg":"x"}`, KindMulti},
		{`{"type":"BROADCAST","msg":"x"}`, KindBroadcast},
		{`{"type":"USERS_REQ"}`, KindUsersReq},
		{`{"type":"USERS_RESP","users":["user1"]}`, KindUsersResp},
		{`{"type":"LOGOUT"}`, KindLogout},
		{`{"type":"ERROR","msg":"boom"}`, KindError},
	}
	for _, c := range cases {
		m, err := Decode([]byte(c.raw))
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.kind, m.Kind(), c.raw)
	}
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	assert.Equal(t, merr.Code(merr.ErrMessageMalformed), merr.Code(err))
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"msg":"hello"}`))
	assert.Equal(t, merr.Code(merr.ErrMessageFieldMissing), merr.Code(err))
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SHRUG"}`))
	assert.Equal(t, merr.Code(merr.ErrMessageUnknownType), merr.Code(err))
}

func TestDecodeRequiredFields(t *testing.T) {
	// DM with neither "to" nor "from".
	_, err := Decode([]byte(`{"type":"DM","msg":"x"}`))
	assert.Equal(t, merr.Code(merr.ErrMessageFieldMissing), merr.Code(err))

	// MULTI with an empty recipient list.
	_, err = Decode([]byte(`{"type":"MULTI","to":[],"msg":"x"}`))
	assert.Equal(t, merr.Code(merr.ErrMessageFieldMissing), merr.Code(err))
}

func TestDecodeLoginReqEmptyCredentials(t *testing.T) {
	// Empty credentials still decode; the login flow answers them with a
	// failure reply instead of dropping the connection as malformed.
	m, err := Decode([]byte(`{"type":"LOGIN_REQ","password":"p"}`))
	require.NoError(t, err)
	assert.Empty(t, m.(*LoginReq).Username)
}

func TestDecodeDeliveryDirection(t *testing.T) {
	// Server-to-client deliveries carry "from" instead of "to".
	m, err := Decode([]byte(`{"type":"DM","from":"user1","msg":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "user1", m.(*DM).From)

	m, err = Decode([]byte(`{"type":"MULTI","from":"user1","msg":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "user1", m.(*Multi).From)
}
