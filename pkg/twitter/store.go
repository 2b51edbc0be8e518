package twitter

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// SessionStore keeps authenticated sessions on disk between restarts.
type SessionStore struct {
	db *bolt.DB
}

func OpenSessionStore(path string) (*SessionStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Load returns false when no session is stored under name.
func (s *SessionStore) Load(name string) (Session, bool, error) {
	var session Session
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(sessionsBucket).Get([]byte(name))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &session)
	})
	if err != nil {
		return Session{}, false, fmt.Errorf("load session %q: %w", name, err)
	}
	return session, found, nil
}

func (s *SessionStore) Save(name string, session Session) error {
	if session.SavedAt.IsZero() {
		session.SavedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(name), raw)
	})
}

func (s *SessionStore) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(name))
	})
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}
