package auth

import (
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

// Store verifies login credentials against a static username/password table
// loaded at startup. The table is never mutated after construction, so reads
// need no locking.
type Store struct {
	users map[string]string
}

// NewStore builds a Store from a username to password table. The map is
// copied so later mutation by the caller cannot affect verification.
func NewStore(users map[string]string) *Store {
	copied := make(map[string]string, len(users))
	for user, pass := range users {
		copied[user] = pass
	}
	return &Store{users: copied}
}

// DefaultUsers is the built-in credential table used when the config file
// does not provide one.
func DefaultUsers() map[string]string {
	return map[string]string{
		"user1": "pass1",
		"user2": "pass2",
		"user3": "pass3",
	}
}

// Verify checks a username/password pair. It distinguishes an unknown
// username from a wrong password so the login flow can reply and count
// attempts accordingly. attempt and limit describe the caller's failed
// password attempt budget and only shape the returned error.
func (s *Store) Verify(username, password string, attempt, limit int) error {
	want, ok := s.users[username]
	if !ok {
		return merr.WrapErrUserNotFound(username)
	}
	if password != want {
		return merr.WrapErrWrongPassword(username, attempt, limit)
	}
	return nil
}

// Known reports whether username exists in the credential table.
func (s *Store) Known(username string) bool {
	_, ok := s.users[username]
	return ok
}

// Len returns the number of configured users.
func (s *Store) Len() int {
	return len(s.users)
}
