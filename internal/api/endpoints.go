package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/scentmatch/scentmatch/internal/model"
)

// CreateUser registers a backend user. The returned user carries no token; callers
// log in afterwards.
func (c *Client) CreateUser(ctx context.Context, reg model.Registration) (model.SessionUser, error) {
	raw, _, err := c.do(ctx, http.MethodPost, "/users", nil, reg)
	if err != nil {
		return model.SessionUser{}, err
	}
	data := json.RawMessage(raw)
	if env, ok := decodeEnvelope(raw); ok {
		data = env.Data
	}
	m, _ := firstObject(data)
	u := NormalizeSessionUser(m, reg.Username)
	if u.Email == "" {
		u.Email = reg.Email
	}
	return u, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates against the backend and returns the session user with its token.
func (c *Client) Login(ctx context.Context, username, password string) (model.SessionUser, error) {
	data, err := c.doData(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Username: username, Password: password})
	if err != nil {
		return model.SessionUser{}, err
	}
	m, ok := firstObject(data)
	if !ok {
		return model.SessionUser{}, fmt.Errorf("login: %w: no user in response", ErrMalformedPayload)
	}
	u := NormalizeSessionUser(m, username)
	if u.EffectiveID() == 0 {
		return model.SessionUser{}, fmt.Errorf("login: %w: missing user id", ErrMalformedPayload)
	}
	return u, nil
}

// ListQuestions fetches the flat question catalog.
func (c *Client) ListQuestions(ctx context.Context) ([]model.Question, error) {
	data, err := c.doData(ctx, http.MethodGet, "/questionnaires/questions/", nil, nil)
	if err != nil {
		return nil, err
	}
	return DecodeQuestions(data)
}

// ResponseRecord is one persisted questionnaire answer. Exactly one of the answer
// fields is set; the others are sent as explicit nulls.
type ResponseRecord struct {
	UserID       int64    `json:"user_id"`
	QuestionID   string   `json:"question_id"`
	AnswerText   *string  `json:"answer_text"`
	AnswerNumber *float64 `json:"answer_number"`
	AnswerJSON   *string  `json:"answer_json"`
}

// SubmitResponse persists one questionnaire answer.
func (c *Client) SubmitResponse(ctx context.Context, rec ResponseRecord) error {
	_, _, err := c.do(ctx, http.MethodPost, "/questionnaires/responses/", nil, rec)
	return err
}

// ProfileQuestion is the catalog snapshot entry sent with a profile request.
type ProfileQuestion struct {
	QuestionID    string `json:"question_id"`
	QuestionText  string `json:"question_text"`
	QuestionTopic string `json:"question_topic"`
}

// ProfileAnswer is a processed answer; list answers are flattened to display text.
type ProfileAnswer struct {
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	QuestionText string `json:"question_text"`
}

// ProfileRequest is the aggregate payload of the profile-creation endpoint.
type ProfileRequest struct {
	UserID    int64             `json:"user_id"`
	Questions []ProfileQuestion `json:"questions"`
	Answers   []ProfileAnswer   `json:"answers"`
}

// CreateProfile derives a profile from the previously persisted responses.
func (c *Client) CreateProfile(ctx context.Context, req ProfileRequest) (model.Profile, error) {
	raw, _, err := c.do(ctx, http.MethodPost, "/profiles/create/profile", nil, req)
	if err != nil {
		return model.Profile{}, err
	}
	p, err := decodeProfileBody(raw)
	if err != nil {
		return model.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	if p.UserID == 0 {
		p.UserID = req.UserID
	}
	return p, nil
}

// UserProfiles lists the profiles stored for a user, newest as returned by the backend.
func (c *Client) UserProfiles(ctx context.Context, userID int64) ([]model.Profile, error) {
	data, err := c.doData(ctx, http.MethodGet, "/profiles/user/"+strconv.FormatInt(userID, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	if isNull(data) {
		return nil, nil
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("user profiles: %w: %v", ErrMalformedPayload, err)
	}
	switch t := body.(type) {
	case map[string]any:
		return []model.Profile{NormalizeProfile(t)}, nil
	case []any:
		profiles := make([]model.Profile, 0, len(t))
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				profiles = append(profiles, NormalizeProfile(m))
			}
		}
		return profiles, nil
	}
	return nil, fmt.Errorf("user profiles: %w: unexpected data", ErrMalformedPayload)
}

type recommendationRequest struct {
	UserID         int64    `json:"user_id"`
	Mood           string   `json:"mood,omitempty"`
	Activity       string   `json:"activity,omitempty"`
	PrimaryClimate string   `json:"primary_climate,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
}

// GenerateRecommendation asks the backend for a new recommendation. rc may be nil.
func (c *Client) GenerateRecommendation(ctx context.Context, userID int64, rc *model.RecommendationContext) (model.Recommendation, error) {
	req := recommendationRequest{UserID: userID}
	if rc != nil {
		req.Mood = rc.Mood
		req.Activity = rc.Activity
		req.PrimaryClimate = rc.PrimaryClimate
		req.Temperature = rc.Temperature
		req.Humidity = rc.Humidity
	}
	raw, _, err := c.do(ctx, http.MethodPost, "/ai/", nil, req)
	if err != nil {
		return model.Recommendation{}, err
	}
	rec, err := decodeRecommendationBody(raw)
	if err != nil {
		return model.Recommendation{}, fmt.Errorf("generate recommendation: %w", err)
	}
	if rc != nil && rec.Context == (model.RecommendationContext{}) {
		rec.Context = *rc
	}
	return rec, nil
}

// RecommendationHistory lists the server-side history of a user. limit <= 0 omits the bound.
func (c *Client) RecommendationHistory(ctx context.Context, userID int64, limit int) ([]model.Recommendation, error) {
	q := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.doData(ctx, http.MethodGet, "/recommendations/my", q, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecommendationList(data)
}

// LatestRecommendation returns the most recent recommendation, or nil when there is none yet.
func (c *Client) LatestRecommendation(ctx context.Context, userID int64) (*model.Recommendation, error) {
	q := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	data, err := c.doData(ctx, http.MethodGet, "/recommendations/my/latest", q, nil)
	if err != nil {
		return nil, err
	}
	m, ok := firstObject(data)
	if !ok {
		return nil, nil
	}
	rec := NormalizeRecommendation(m)
	return &rec, nil
}

func likePath(recommendationID int64) string {
	return "/feedback/recommendation/" + strconv.FormatInt(recommendationID, 10) + "/like"
}

// LikeRecommendation marks a recommendation as liked.
func (c *Client) LikeRecommendation(ctx context.Context, recommendationID int64) error {
	_, _, err := c.do(ctx, http.MethodPost, likePath(recommendationID), nil, nil)
	return err
}

// UnlikeRecommendation removes a like.
func (c *Client) UnlikeRecommendation(ctx context.Context, recommendationID int64) error {
	_, _, err := c.do(ctx, http.MethodDelete, likePath(recommendationID), nil, nil)
	return err
}

// SubmitPerfumeFeedback records free-form feedback about a perfume.
func (c *Client) SubmitPerfumeFeedback(ctx context.Context, fb model.PerfumeFeedback) error {
	_, _, err := c.do(ctx, http.MethodPost, "/feedback/perfume", nil, fb)
	return err
}
