package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const browserSessionTTL = 30 * 24 * time.Hour

// Namespaces owned by a browser session.
const (
	sessionNamespacePrefix = "session:"
	historyNamespacePrefix = "history:"
)

// SessionNamespace is the namespace holding the logged-in user of a browser session.
func SessionNamespace(browserID string) string { return sessionNamespacePrefix + browserID }

// HistoryNamespace is the namespace holding the cached history of a browser session.
func HistoryNamespace(browserID string) string { return historyNamespacePrefix + browserID }

// CreateBrowserSession registers a new browser and returns its id.
func (s *Store) CreateBrowserSession() (string, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO browser_sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		id, now, now.Add(browserSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// BrowserSessionExists reports whether id is a known, unexpired browser session.
func (s *Store) BrowserSessionExists(id string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRow(`SELECT expires_at FROM browser_sessions WHERE id = ?`, id).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if time.Now().After(expiresAt) {
		_ = s.DeleteBrowserSession(id)
		return false, nil
	}
	return true, nil
}

// DeleteBrowserSession removes a browser session and everything stored under it.
func (s *Store) DeleteBrowserSession(id string) error {
	if err := s.DropNamespace(SessionNamespace(id)); err != nil {
		return err
	}
	if err := s.DropNamespace(HistoryNamespace(id)); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM browser_sessions WHERE id = ?`, id)
	return err
}

// CleanupExpiredSessions removes all expired browser sessions and their entries.
func (s *Store) CleanupExpiredSessions() error {
	rows, err := s.db.Query(`SELECT id FROM browser_sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.DeleteBrowserSession(id); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		slog.Info("removed expired browser sessions", "count", len(ids))
	}
	return nil
}
