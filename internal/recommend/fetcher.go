// Package recommend requests generated recommendations and keeps a capped,
// locally mirrored history of the valid ones.
package recommend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/model"
)

// ErrNotAvailable is returned when the backend produced no usable recommendation.
var ErrNotAvailable = errors.New("no recommendation available")

// Generator produces a recommendation for a user.
type Generator interface {
	GenerateRecommendation(ctx context.Context, userID int64, rc *model.RecommendationContext) (model.Recommendation, error)
}

// Fetcher requests recommendations and records the valid ones.
type Fetcher struct {
	gen     Generator
	history *HistoryService
}

// NewFetcher creates a fetcher. history may be nil to skip recording.
func NewFetcher(gen Generator, history *HistoryService) *Fetcher {
	return &Fetcher{gen: gen, history: history}
}

// Fetch asks for one recommendation. rc carries optional situational context.
func (f *Fetcher) Fetch(ctx context.Context, userID int64, rc *model.RecommendationContext) (model.Recommendation, error) {
	rec, err := f.gen.GenerateRecommendation(ctx, userID, rc)
	if err != nil {
		return model.Recommendation{}, err
	}
	if !IsValid(rec.Name) {
		slog.Info("discarding placeholder recommendation", "user_id", userID, "name", rec.Name)
		return model.Recommendation{}, ErrNotAvailable
	}
	if f.history != nil {
		f.history.Record(userID, rec)
	}
	return rec, nil
}

// Failure classifies a recommendation error for display.
type Failure int

const (
	FailureGeneric Failure = iota
	FailureNotAvailable
	FailureIncompleteProfile
	FailureServiceUnavailable
	FailureNetwork
)

// Classify maps err onto a Failure.
func Classify(err error) Failure {
	if errors.Is(err, ErrNotAvailable) {
		return FailureNotAvailable
	}
	if errors.Is(err, api.ErrMalformedPayload) {
		return FailureGeneric
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return FailureNetwork
	}
	switch {
	case apiErr.StatusCode == http.StatusBadRequest:
		return FailureIncompleteProfile
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return FailureServiceUnavailable
	}
	return FailureGeneric
}
