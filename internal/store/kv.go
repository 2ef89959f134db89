package store

import (
	"database/sql"
	"time"
)

// KV is a plain durable key-value store scoped to one concern.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Scoped is a KV view over one namespace of the store.
type Scoped struct {
	s         *Store
	namespace string
}

// Scope returns the KV view for namespace.
func (s *Store) Scope(namespace string) *Scoped {
	return &Scoped{s: s, namespace: namespace}
}

func (sc *Scoped) Get(key string) (string, bool, error) {
	return sc.s.GetEntry(sc.namespace, key)
}

func (sc *Scoped) Set(key, value string) error {
	return sc.s.SetEntry(sc.namespace, key, value)
}

func (sc *Scoped) Remove(key string) error {
	return sc.s.RemoveEntry(sc.namespace, key)
}

// SetEntry upserts a key-value pair in a namespace.
func (s *Store) SetEntry(namespace, key, value string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO kv_entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = ?, updated_at = ?`,
		namespace, key, value, now, value, now,
	)
	return err
}

// GetEntry returns the value for a key. The bool is false when the key is missing.
func (s *Store) GetEntry(namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// RemoveEntry deletes a key. Removing a missing key is not an error.
func (s *Store) RemoveEntry(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// ListKeys returns the keys stored in a namespace in key order.
func (s *Store) ListKeys(namespace string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM kv_entries WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DropNamespace removes every entry of a namespace.
func (s *Store) DropNamespace(namespace string) error {
	_, err := s.db.Exec(`DELETE FROM kv_entries WHERE namespace = ?`, namespace)
	return err
}
