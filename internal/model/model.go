package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTopic is used for questions the catalog leaves without a topic.
const DefaultTopic = "General"

// UnknownPerfume is the display name used when a recommendation carries no name.
const UnknownPerfume = "Unknown Perfume"

// QuestionKind is the input type of a questionnaire question.
type QuestionKind string

const (
	KindSingleSelect QuestionKind = "single-select"
	KindMultiSelect  QuestionKind = "multi-select"
	KindNumber       QuestionKind = "number"
	KindText         QuestionKind = "free-text"
)

// IsSelect reports whether the kind offers a fixed list of choices.
func (k QuestionKind) IsSelect() bool {
	return k == KindSingleSelect || k == KindMultiSelect
}

// Question is one questionnaire question after normalization.
type Question struct {
	ID            string       `json:"id"`
	Code          string       `json:"code,omitempty"` // display label such as "2.1"
	Topic         string       `json:"topic"`
	Text          string       `json:"text"`
	Kind          QuestionKind `json:"kind"`
	Choices       []string     `json:"choices,omitempty"`
	MaxSelections int          `json:"max_selections,omitempty"` // 0 means unbounded
	Min           *float64     `json:"min,omitempty"`
	Max           *float64     `json:"max,omitempty"`
	Step          float64      `json:"step,omitempty"`
}

// TopicGroup is an ordered set of questions presented as one questionnaire step.
type TopicGroup struct {
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions"`
}

// AnswerKind tags the shape held by an AnswerValue.
type AnswerKind int

const (
	AnswerText AnswerKind = iota
	AnswerNumber
	AnswerList
)

// AnswerValue is a questionnaire answer: text, a number, or an ordered list of options.
type AnswerValue struct {
	kind   AnswerKind
	text   string
	number float64
	list   []string
}

// TextAnswer returns a text answer.
func TextAnswer(s string) AnswerValue {
	return AnswerValue{kind: AnswerText, text: s}
}

// NumberAnswer returns a numeric answer.
func NumberAnswer(n float64) AnswerValue {
	return AnswerValue{kind: AnswerNumber, number: n}
}

// ListAnswer returns a multi-select answer; item order is selection order.
func ListAnswer(items ...string) AnswerValue {
	return AnswerValue{kind: AnswerList, list: append([]string{}, items...)}
}

func (v AnswerValue) Kind() AnswerKind { return v.kind }
func (v AnswerValue) Text() string     { return v.text }
func (v AnswerValue) Number() float64  { return v.number }

// List returns a copy of the selected options.
func (v AnswerValue) List() []string {
	return append([]string{}, v.list...)
}

// Contains reports whether a list answer includes option.
func (v AnswerValue) Contains(option string) bool {
	for _, o := range v.list {
		if o == option {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the answer carries nothing worth displaying.
func (v AnswerValue) IsEmpty() bool {
	switch v.kind {
	case AnswerList:
		return len(v.list) == 0
	case AnswerText:
		return strings.TrimSpace(v.text) == ""
	}
	return false
}

// DisplayText renders the answer for humans; lists are comma-joined.
func (v AnswerValue) DisplayText() string {
	switch v.kind {
	case AnswerNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case AnswerList:
		return strings.Join(v.list, ", ")
	default:
		return v.text
	}
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case AnswerNumber:
		return json.Marshal(v.number)
	case AnswerList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.text)
	}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	av, ok := AnswerFromAny(raw)
	if !ok {
		return fmt.Errorf("unsupported answer value %s", string(data))
	}
	*v = av
	return nil
}

// AnswerFromAny converts a decoded JSON value into an AnswerValue.
// Lists keep only their string items; objects and nulls are rejected.
func AnswerFromAny(raw any) (AnswerValue, bool) {
	switch t := raw.(type) {
	case string:
		return TextAnswer(t), true
	case float64:
		return NumberAnswer(t), true
	case int:
		return NumberAnswer(float64(t)), true
	case int64:
		return NumberAnswer(float64(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return AnswerValue{}, false
		}
		return NumberAnswer(f), true
	case []string:
		return ListAnswer(t...), true
	case []any:
		items := make([]string, 0, len(t))
		for _, it := range t {
			if s, ok := it.(string); ok {
				items = append(items, s)
			}
		}
		return ListAnswer(items...), true
	}
	return AnswerValue{}, false
}

// AnswerEntry pairs a question id with its answer.
type AnswerEntry struct {
	QuestionID string
	Value      AnswerValue
}

// Profile is the backend-owned aggregate of a user's answers. The client treats it
// as an opaque bag of fields and only checks presence for display.
type Profile struct {
	ID     int64          `json:"id"`
	UserID int64          `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// ProfileField is one displayable profile entry.
type ProfileField struct {
	Key   string
	Label string
	Value string
}

// DisplayFields returns the non-empty profile fields sorted by key.
func (p Profile) DisplayFields() []ProfileField {
	var out []ProfileField
	for k, v := range p.Fields {
		text, ok := displayValue(v)
		if !ok {
			continue
		}
		out = append(out, ProfileField{
			Key:   k,
			Label: strings.ReplaceAll(k, "_", " "),
			Value: text,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// IsEmpty reports whether the profile has no displayable field.
func (p Profile) IsEmpty() bool {
	return len(p.DisplayFields()) == 0
}

// PrefillAnswers maps non-empty profile fields onto answer values keyed by field name,
// which the questionnaire uses as question ids when editing an existing profile.
func (p Profile) PrefillAnswers() map[string]AnswerValue {
	out := make(map[string]AnswerValue)
	for k, v := range p.Fields {
		av, ok := AnswerFromAny(v)
		if !ok || av.IsEmpty() {
			continue
		}
		out[k] = av
	}
	return out
}

func displayValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any:
		return "", false
	}
	av, ok := AnswerFromAny(v)
	if !ok || av.IsEmpty() {
		return "", false
	}
	return av.DisplayText(), true
}

// RecommendationContext carries the situational signals sent with a recommendation request.
type RecommendationContext struct {
	Mood           string   `json:"mood,omitempty"`
	Activity       string   `json:"activity,omitempty"`
	PrimaryClimate string   `json:"primary_climate,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Humidity       *float64 `json:"humidity,omitempty"`
}

// Alternate is a secondary perfume suggestion.
type Alternate struct {
	Name     string   `json:"name"`
	ImageURL string   `json:"image_url,omitempty"`
	Price    *float64 `json:"price,omitempty"`
}

// Recommendation is the canonical internal shape of a generated recommendation.
type Recommendation struct {
	ID                  int64                 `json:"id,omitempty"`
	Name                string                `json:"name"`
	Reason              string                `json:"reason,omitempty"`
	ImageURL            string                `json:"image_url,omitempty"`
	Price               *float64              `json:"price,omitempty"`
	UtilityScore        *float64              `json:"utility_score,omitempty"`
	PredictedLongevity  *float64              `json:"predicted_longevity,omitempty"`
	PredictedProjection *float64              `json:"predicted_projection,omitempty"`
	PredictedSillage    *float64              `json:"predicted_sillage,omitempty"`
	Alternates          []Alternate           `json:"alternates,omitempty"`
	Context             RecommendationContext `json:"context,omitempty"`
	CreatedAt           *time.Time            `json:"created_at,omitempty"`
}

// SessionUser is the logged-in user as kept in the session store.
type SessionUser struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Token     string `json:"token"`
	TokenType string `json:"token_type,omitempty"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
}

// EffectiveID returns the user id, falling back to UserID when ID is unset.
func (u SessionUser) EffectiveID() int64 {
	if u.ID != 0 {
		return u.ID
	}
	return u.UserID
}

// Registration is the payload for creating a backend user.
type Registration struct {
	Username           string `json:"username"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	FirstName          string `json:"first_name,omitempty"`
	LastName           string `json:"last_name,omitempty"`
	Gender             string `json:"gender,omitempty"`
	AgeGroup           string `json:"age_group,omitempty"`
	CountryOfResidence string `json:"country_of_residence,omitempty"`
}

// PerfumeFeedback is a free-form feedback record about a perfume.
type PerfumeFeedback struct {
	UserID           int64  `json:"user_id"`
	RecommendationID *int64 `json:"recommendation_id,omitempty"`
	PerfumeName      string `json:"perfume_name"`
	Rating           *int   `json:"rating,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// UIConfig holds runtime web UI parameters set via CLI flags.
type UIConfig struct {
	BasePath      string        // URL prefix for sub-path deployments
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	HistoryLimit  int           // Maximum recommendations kept in history
	CacheTTL      time.Duration // Age after which a cached history is ignored
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *SessionUser) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the logged-in user from context, or nil.
func UserFromContext(ctx context.Context) *SessionUser {
	u, _ := ctx.Value(userCtxKey{}).(*SessionUser)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
