package store

import (
	"encoding/json"
	"fmt"

	"github.com/scentmatch/scentmatch/internal/model"
)

const sessionUserKey = "user"

// SessionStore keeps the logged-in user under a single session key.
type SessionStore struct {
	kv KV
}

func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// SaveUser stores u as the current session user.
func (s *SessionStore) SaveUser(u model.SessionUser) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal session user: %w", err)
	}
	return s.kv.Set(sessionUserKey, string(data))
}

// LoadUser returns the current session user, or nil when nobody is logged in.
// An unreadable entry is removed and treated as logged out.
func (s *SessionStore) LoadUser() (*model.SessionUser, error) {
	raw, ok, err := s.kv.Get(sessionUserKey)
	if err != nil || !ok {
		return nil, err
	}
	var u model.SessionUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		_ = s.kv.Remove(sessionUserKey)
		return nil, nil
	}
	if u.EffectiveID() == 0 {
		return nil, nil
	}
	return &u, nil
}

// ClearUser logs the session user out.
func (s *SessionStore) ClearUser() error {
	return s.kv.Remove(sessionUserKey)
}
