package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scentmatch/scentmatch/internal/model"
)

// HistoryKey is the per-user key of the cached recommendation history.
func HistoryKey(userID int64) string {
	return fmt.Sprintf("recommendation_history_user_%d", userID)
}

type historyEntry struct {
	Recommendations []model.Recommendation `json:"recommendations"`
	LastUpdated     time.Time              `json:"last_updated"`
	UserID          int64                  `json:"user_id"`
}

// CachedHistory is a history snapshot read back from the cache.
type CachedHistory struct {
	Recommendations []model.Recommendation
	LastUpdated     time.Time
}

// Fresh reports whether the snapshot is younger than ttl. A non-positive ttl never expires.
func (c CachedHistory) Fresh(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(c.LastUpdated) < ttl
}

// HistoryCache mirrors recommendation history per user.
type HistoryCache struct {
	kv  KV
	now func() time.Time
}

func NewHistoryCache(kv KV) *HistoryCache {
	return &HistoryCache{kv: kv, now: time.Now}
}

// Save replaces the cached history of userID.
func (c *HistoryCache) Save(userID int64, recs []model.Recommendation) error {
	data, err := json.Marshal(historyEntry{
		Recommendations: recs,
		LastUpdated:     c.now(),
		UserID:          userID,
	})
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return c.kv.Set(HistoryKey(userID), string(data))
}

// Load returns the cached history of userID. The bool is false when nothing usable is cached,
// including entries written for a different user.
func (c *HistoryCache) Load(userID int64) (CachedHistory, bool, error) {
	raw, ok, err := c.kv.Get(HistoryKey(userID))
	if err != nil || !ok {
		return CachedHistory{}, false, err
	}
	var e historyEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return CachedHistory{}, false, fmt.Errorf("parse cached history: %w", err)
	}
	if e.UserID != userID {
		return CachedHistory{}, false, nil
	}
	return CachedHistory{Recommendations: e.Recommendations, LastUpdated: e.LastUpdated}, true, nil
}

// Clear drops the cached history of userID.
func (c *HistoryCache) Clear(userID int64) error {
	return c.kv.Remove(HistoryKey(userID))
}
