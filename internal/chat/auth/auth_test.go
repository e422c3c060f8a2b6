package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

func TestVerify(t *testing.T) {
	store := NewStore(DefaultUsers())

	assert.NoError(t, store.Verify("user1", "pass1", 1, 2))

	err := store.Verify("nobody", "pass1", 1, 2)
	assert.Equal(t, merr.Code(merr.ErrAuthUserNotFound), merr.Code(err))

	err = store.Verify("user1", "wrong", 1, 2)
	assert.Equal(t, merr.Code(merr.ErrAuthWrongPassword), merr.Code(err))
	assert.True(t, merr.IsRetryableErr(err))
}

func TestStoreCopiesTable(t *testing.T) {
	users := map[string]string{"user1": "pass1"}
	store := NewStore(users)
	users["user1"] = "changed"

	assert.NoError(t, store.Verify("user1", "pass1", 1, 2))
}

func TestKnown(t *testing.T) {
	store := NewStore(DefaultUsers())
	assert.True(t, store.Known("user2"))
	assert.False(t, store.Known("user9"))
	assert.Equal(t, 3, store.Len())
}
