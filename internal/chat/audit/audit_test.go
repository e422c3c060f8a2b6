package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := &Logger{
		out: buf,
		clock: func() time.Time {
			return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
		},
	}
	return l, buf
}

func TestLineFormat(t *testing.T) {
	l, buf := newBufferLogger()

	l.Connect("127.0.0.1:52344")
	l.LoginAttempt("user1")
	l.LoginResult("user1", "ok")
	l.Message("user1", "user2", "DM", 42)
	l.MessageMulti("user1", []string{"user2", "user3"}, 57)
	l.Message("user1", "ALL", "BROADCAST", 33)
	l.MalformedInput("", errors.New("bad json"))
	l.Logout("user1")
	l.Disconnect("user1", 90*time.Second)
	l.SendError("user2", errors.New("broken pipe"))

	want := "" +
		"2025-03-14 15:09:26 [CONNECT] client connected from 127.0.0.1:52344\n" +
		"2025-03-14 15:09:26 [LOGIN_ATTEMPT] user=user1\n" +
		"2025-03-14 15:09:26 [LOGIN_RESULT] user=user1 result=ok\n" +
		"2025-03-14 15:09:26 [MSG] user1 -> user2 | DM | 42 bytes\n" +
		"2025-03-14 15:09:26 [MSG] user1 -> user2,user3 | MULTI | 57 bytes\n" +
		"2025-03-14 15:09:26 [MSG] user1 -> ALL | BROADCAST | 33 bytes\n" +
		"2025-03-14 15:09:26 [MALFORMED_JSON] user=unknown error=bad json\n" +
		"2025-03-14 15:09:26 [LOGOUT] user=user1\n" +
		"2025-03-14 15:09:26 [DISCONNECT] user=user1 duration=1m30s\n" +
		"2025-03-14 15:09:26 [SEND_ERROR] user=user2 error=broken pipe\n"
	assert.Equal(t, want, buf.String())
}

func TestUnauthenticatedDisconnect(t *testing.T) {
	l, buf := newBufferLogger()
	l.Disconnect("", 0)
	assert.Contains(t, buf.String(), "[DISCONNECT] unknown client")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_audit.log")
	l := NewLogger(Config{Filename: path})
	l.Logout("user3")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[LOGOUT] user=user3")
}

func TestNopLoggerIsSilent(t *testing.T) {
	l := Nop()
	l.Connect("127.0.0.1:1")
	assert.NoError(t, l.Close())
}
