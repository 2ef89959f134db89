package recommend

import (
	"context"
	"log/slog"
	"time"

	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/store"
)

// DefaultCacheTTL is the age after which a cached history is no longer served
// in place of the server's.
const DefaultCacheTTL = 24 * time.Hour

// HistorySource lists the server-side history of a user.
type HistorySource interface {
	RecommendationHistory(ctx context.Context, userID int64, limit int) ([]model.Recommendation, error)
}

// HistoryResult is a loaded history.
type HistoryResult struct {
	Recommendations []model.Recommendation
	FromCache       bool // server failed and the local mirror was served
	LastUpdated     time.Time
}

// HistoryService merges server history with the local mirror and keeps the
// mirror current. Mirror writes are best-effort.
type HistoryService struct {
	src   HistorySource
	cache *store.HistoryCache
	limit int
	ttl   time.Duration
	now   func() time.Time
}

// NewHistoryService creates a service. cache may be nil to disable mirroring.
func NewHistoryService(src HistorySource, cache *store.HistoryCache, limit int, ttl time.Duration) *HistoryService {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryService{src: src, cache: cache, limit: limit, ttl: ttl, now: time.Now}
}

// Load returns the user's history. When the server fails, a cached history younger
// than the TTL is returned instead with FromCache set.
func (s *HistoryService) Load(ctx context.Context, userID int64) (HistoryResult, error) {
	cached, haveCache := s.cached(userID)

	server, err := s.src.RecommendationHistory(ctx, userID, s.limit)
	if err != nil {
		if haveCache && cached.Fresh(s.ttl, s.now()) {
			slog.Warn("serving cached recommendation history", "user_id", userID, "error", err)
			return HistoryResult{
				Recommendations: Merge(cached.Recommendations, nil, s.limit),
				FromCache:       true,
				LastUpdated:     cached.LastUpdated,
			}, nil
		}
		return HistoryResult{}, err
	}

	var local []model.Recommendation
	if haveCache {
		local = cached.Recommendations
	}
	merged := Merge(server, local, s.limit)
	s.mirror(userID, merged)
	return HistoryResult{Recommendations: merged, LastUpdated: s.now()}, nil
}

// Cached returns the locally mirrored history regardless of its age.
func (s *HistoryService) Cached(userID int64) []model.Recommendation {
	cached, ok := s.cached(userID)
	if !ok {
		return nil
	}
	return Merge(cached.Recommendations, nil, s.limit)
}

// Record adds a fresh recommendation to the local mirror. It reports whether the
// history changed.
func (s *HistoryService) Record(userID int64, rec model.Recommendation) bool {
	cached, _ := s.cached(userID)
	h := HistoryFrom(cached.Recommendations, s.limit)
	if !h.Add(rec) {
		return false
	}
	s.mirror(userID, h.Items())
	return true
}

// Forget drops the local mirror of a user.
func (s *HistoryService) Forget(userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(userID); err != nil {
		slog.Warn("failed to clear cached history", "user_id", userID, "error", err)
	}
}

func (s *HistoryService) cached(userID int64) (store.CachedHistory, bool) {
	if s.cache == nil {
		return store.CachedHistory{}, false
	}
	cached, ok, err := s.cache.Load(userID)
	if err != nil {
		slog.Warn("failed to read cached history", "user_id", userID, "error", err)
		return store.CachedHistory{}, false
	}
	return cached, ok
}

func (s *HistoryService) mirror(userID int64, recs []model.Recommendation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(userID, recs); err != nil {
		slog.Warn("failed to mirror recommendation history", "user_id", userID, "error", err)
	}
}
