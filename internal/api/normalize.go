package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scentmatch/scentmatch/internal/model"
)

// DecodeQuestions turns the catalog payload into questions. The payload may be the
// array itself or a JSON string holding the array.
func DecodeQuestions(data json.RawMessage) ([]model.Question, error) {
	items, err := decodeObjectArray(data)
	if err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(items))
	for _, m := range items {
		questions = append(questions, NormalizeQuestion(m))
	}
	return questions, nil
}

// decodeObjectArray accepts an array of objects or a string containing one.
func decodeObjectArray(data json.RawMessage) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		trimmed = strings.TrimSpace(inner)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: expected array", ErrMalformedPayload)
	}
	var raw []any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	items := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: array item is %T", ErrMalformedPayload, r)
		}
		items = append(items, m)
	}
	return items, nil
}

// NormalizeQuestion maps one backend question object onto model.Question.
func NormalizeQuestion(m map[string]any) model.Question {
	q := model.Question{
		ID:    firstString(m, "id"),
		Code:  firstString(m, "question_id", "code"),
		Topic: strings.TrimSpace(firstString(m, "question_topic", "topic")),
		Text:  firstString(m, "question_text", "text"),
	}
	if q.ID == "" {
		q.ID = q.Code
	}
	if q.Text == "" {
		q.Text = "Question"
	}
	if q.Topic == "" {
		q.Topic = model.DefaultTopic
	}

	q.Choices = choicesOf(m)
	multiple, _ := m["can_select_multiple"].(bool)
	maxVal, hasMax := floatOf(m["max"])

	switch kind := strings.ToLower(firstString(m, "type", "kind")); kind {
	case "select", "radio", string(model.KindSingleSelect), string(model.KindMultiSelect):
		q.Kind = model.KindSingleSelect
		if multiple || kind == string(model.KindMultiSelect) {
			q.Kind = model.KindMultiSelect
			if n, ok := floatOf(m["max_selections"]); ok && n > 0 {
				q.MaxSelections = int(n)
			} else if hasMax && maxVal > 0 {
				q.MaxSelections = int(maxVal)
			}
		}
	case "number":
		q.Kind = model.KindNumber
		if v, ok := floatOf(m["min"]); ok {
			q.Min = &v
		}
		if hasMax {
			q.Max = &maxVal
		}
		if v, ok := floatOf(m["step"]); ok && v > 0 {
			q.Step = v
		}
	default:
		q.Kind = model.KindText
	}
	return q
}

func choicesOf(m map[string]any) []string {
	var parts []string
	switch v := firstPresent(m, "multiple_choices", "choices").(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok {
				parts = append(parts, s)
			}
		}
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodeRecommendationBody resolves the several shapes /ai/ has answered with:
// a bare object, {data: object} or {data: [object, ...]}.
func decodeRecommendationBody(raw []byte) (model.Recommendation, error) {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return model.Recommendation{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	m, ok := body.(map[string]any)
	if !ok {
		if arr, isArr := body.([]any); isArr && len(arr) > 0 {
			m, ok = arr[0].(map[string]any)
		}
	}
	if !ok {
		return model.Recommendation{}, fmt.Errorf("%w: expected object", ErrMalformedPayload)
	}
	return NormalizeRecommendation(m), nil
}

// NormalizeRecommendation maps a backend recommendation onto the canonical shape.
// The display name is the first non-empty of ai_perfume_name, perfume, name,
// perfume_name, defaulting to model.UnknownPerfume.
func NormalizeRecommendation(m map[string]any) model.Recommendation {
	switch d := m["data"].(type) {
	case []any:
		if len(d) > 0 {
			if inner, ok := d[0].(map[string]any); ok {
				m = inner
			}
		}
	case map[string]any:
		m = d
	}

	rec := model.Recommendation{
		ID:                  intOf(m["id"]),
		Name:                DisplayName(m),
		Reason:              firstString(m, "reason"),
		ImageURL:            firstString(m, "image_url"),
		Price:               floatPtr(m["price"]),
		UtilityScore:        floatPtr(m["utility_score"]),
		PredictedLongevity:  floatPtr(m["predicted_longevity"]),
		PredictedProjection: floatPtr(m["predicted_projection"]),
		PredictedSillage:    floatPtr(m["predicted_sillage"]),
		Context: model.RecommendationContext{
			Mood:           firstString(m, "context_mood", "mood"),
			Activity:       firstString(m, "context_activity", "activity"),
			PrimaryClimate: firstString(m, "context_weather", "primary_climate"),
			Temperature:    floatPtr(firstPresent(m, "context_temperature", "temperature")),
			Humidity:       floatPtr(firstPresent(m, "context_humidity", "humidity")),
		},
		CreatedAt: timeOf(firstPresent(m, "created_at", "recommendation_date")),
	}
	if alts, ok := m["other_perfumes_to_try"].([]any); ok {
		for _, a := range alts {
			switch t := a.(type) {
			case map[string]any:
				name := firstString(t, "name", "perfume", "perfume_name")
				if name == "" {
					name = model.UnknownPerfume
				}
				rec.Alternates = append(rec.Alternates, model.Alternate{
					Name:     name,
					ImageURL: firstString(t, "image_url"),
					Price:    floatPtr(t["price"]),
				})
			case string:
				if strings.TrimSpace(t) != "" {
					rec.Alternates = append(rec.Alternates, model.Alternate{Name: strings.TrimSpace(t)})
				}
			}
		}
	}
	return rec
}

// DisplayName resolves the perfume name of a raw recommendation object.
func DisplayName(m map[string]any) string {
	if name := firstString(m, "ai_perfume_name", "perfume", "name", "perfume_name"); name != "" {
		return name
	}
	return model.UnknownPerfume
}

func decodeRecommendationList(data json.RawMessage) ([]model.Recommendation, error) {
	if isNull(data) {
		return nil, nil
	}
	items, err := decodeObjectArray(data)
	if err != nil {
		return nil, err
	}
	recs := make([]model.Recommendation, 0, len(items))
	for _, m := range items {
		recs = append(recs, NormalizeRecommendation(m))
	}
	return recs, nil
}

// NormalizeProfile maps a backend profile object onto model.Profile.
func NormalizeProfile(m map[string]any) model.Profile {
	p := model.Profile{
		ID:     intOf(m["id"]),
		UserID: intOf(m["user_id"]),
		Fields: make(map[string]any, len(m)),
	}
	for k, v := range m {
		switch k {
		case "id", "user_id", "created_at", "updated_at":
			continue
		}
		p.Fields[k] = v
	}
	return p
}

// decodeProfileBody accepts an envelope with a profile array/object or a bare profile.
func decodeProfileBody(raw []byte) (model.Profile, error) {
	if env, ok := decodeEnvelope(raw); ok {
		raw = env.Data
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return model.Profile{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch t := body.(type) {
	case map[string]any:
		return NormalizeProfile(t), nil
	case []any:
		if len(t) == 0 {
			return model.Profile{}, nil
		}
		if m, ok := t[0].(map[string]any); ok {
			return NormalizeProfile(m), nil
		}
	case nil:
		return model.Profile{}, nil
	}
	return model.Profile{}, fmt.Errorf("%w: unexpected profile body", ErrMalformedPayload)
}

// NormalizeSessionUser maps login or registration data onto a session user.
// The backend reports the id as either "id" or "user_id".
func NormalizeSessionUser(m map[string]any, username string) model.SessionUser {
	u := model.SessionUser{
		ID:        intOf(m["id"]),
		UserID:    intOf(m["user_id"]),
		Token:     firstString(m, "token", "access_token"),
		TokenType: firstString(m, "type", "token_type"),
		Username:  firstString(m, "username"),
		Email:     firstString(m, "email"),
	}
	if u.ID == 0 {
		u.ID = u.UserID
	}
	if u.UserID == 0 {
		u.UserID = u.ID
	}
	if u.Username == "" {
		u.Username = username
	}
	return u
}

// firstObject returns the first object of data, which may be an object or an array.
func firstObject(data json.RawMessage) (map[string]any, bool) {
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, false
	}
	switch t := body.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) > 0 {
			m, ok := t[0].(map[string]any)
			return m, ok
		}
	}
	return nil, false
}

func isNull(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString returns the first key holding a non-empty string or a number.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func floatOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func floatPtr(v any) *float64 {
	f, ok := floatOf(v)
	if !ok {
		return nil
	}
	return &f
}

func intOf(v any) int64 {
	f, ok := floatOf(v)
	if !ok {
		return 0
	}
	return int64(f)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func timeOf(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
