package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/model"
)

// ErrSubmitInProgress is returned when a submission is already running.
var ErrSubmitInProgress = errors.New("submission already in progress")

// Stage names the step of a submission that failed.
type Stage string

const (
	StageResponse Stage = "response"
	StageProfile  Stage = "profile"
)

// SubmitError reports the first failure of a submission. Nothing after it was sent.
type SubmitError struct {
	Stage      Stage
	QuestionID string // set for StageResponse
	Message    string // first backend validation message, may be empty
	Err        error
}

func (e *SubmitError) Error() string {
	if e.Stage == StageResponse {
		return fmt.Sprintf("save response for question %s: %v", e.QuestionID, e.Err)
	}
	return fmt.Sprintf("create profile: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ProfileBackend persists responses and derives the profile from them.
type ProfileBackend interface {
	SubmitResponse(ctx context.Context, rec api.ResponseRecord) error
	CreateProfile(ctx context.Context, req api.ProfileRequest) (model.Profile, error)
}

// Coordinator turns collected answers into persisted responses and a profile.
type Coordinator struct {
	backend ProfileBackend
	busy    atomic.Bool
}

// NewCoordinator creates a coordinator over backend.
func NewCoordinator(backend ProfileBackend) *Coordinator {
	return &Coordinator{backend: backend}
}

// Busy reports whether a submission is in flight.
func (c *Coordinator) Busy() bool { return c.busy.Load() }

// Submit posts every answer in order, then requests the profile. It stops at the
// first failure and never retries; answers are only read.
func (c *Coordinator) Submit(ctx context.Context, answers []model.AnswerEntry, userID int64, catalog []model.TopicGroup) (model.Profile, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return model.Profile{}, ErrSubmitInProgress
	}
	defer c.busy.Store(false)

	for _, a := range answers {
		rec, err := Classify(userID, a)
		if err != nil {
			return model.Profile{}, &SubmitError{Stage: StageResponse, QuestionID: a.QuestionID, Err: err}
		}
		if err := c.backend.SubmitResponse(ctx, rec); err != nil {
			slog.Error("failed to save questionnaire response", "question_id", a.QuestionID, "error", err)
			return model.Profile{}, &SubmitError{
				Stage:      StageResponse,
				QuestionID: a.QuestionID,
				Message:    api.MessageOf(err),
				Err:        err,
			}
		}
	}

	profile, err := c.backend.CreateProfile(ctx, BuildProfileRequest(userID, answers, catalog))
	if err != nil {
		slog.Error("failed to create profile", "user_id", userID, "error", err)
		return model.Profile{}, &SubmitError{Stage: StageProfile, Message: api.MessageOf(err), Err: err}
	}
	slog.Info("profile created", "user_id", userID, "responses", len(answers))
	return profile, nil
}

// Classify maps an answer onto exactly one response field: numbers to
// answer_number, lists to JSON-encoded answer_json, everything else to answer_text.
func Classify(userID int64, a model.AnswerEntry) (api.ResponseRecord, error) {
	rec := api.ResponseRecord{UserID: userID, QuestionID: a.QuestionID}
	switch a.Value.Kind() {
	case model.AnswerNumber:
		n := a.Value.Number()
		rec.AnswerNumber = &n
	case model.AnswerList:
		data, err := json.Marshal(a.Value.List())
		if err != nil {
			return api.ResponseRecord{}, fmt.Errorf("encode list answer: %w", err)
		}
		s := string(data)
		rec.AnswerJSON = &s
	default:
		s := a.Value.Text()
		rec.AnswerText = &s
	}
	return rec, nil
}

// BuildProfileRequest assembles the aggregate profile payload: the catalog snapshot
// and the answers with lists flattened to comma-joined text.
func BuildProfileRequest(userID int64, answers []model.AnswerEntry, catalog []model.TopicGroup) api.ProfileRequest {
	req := api.ProfileRequest{
		UserID:    userID,
		Questions: []api.ProfileQuestion{},
		Answers:   make([]api.ProfileAnswer, 0, len(answers)),
	}
	for _, q := range Questions(catalog) {
		req.Questions = append(req.Questions, api.ProfileQuestion{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			QuestionTopic: q.Topic,
		})
	}
	for _, a := range answers {
		text := ""
		if q, ok := FindQuestion(catalog, a.QuestionID); ok {
			text = q.Text
		}
		req.Answers = append(req.Answers, api.ProfileAnswer{
			QuestionID:   a.QuestionID,
			Answer:       a.Value.DisplayText(),
			QuestionText: text,
		})
	}
	return req
}
