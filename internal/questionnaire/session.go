package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/scentmatch/scentmatch/internal/model"
)

var (
	// ErrNotAtLastTopic is returned when submitting before reaching the last topic.
	ErrNotAtLastTopic = errors.New("submission is only available on the last topic")
	// ErrUnknownQuestion is returned for answers to questions outside the catalog.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrInvalidAnswer is returned when raw input does not fit the question kind.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Session binds a catalog, its answers and a navigator into one questionnaire run.
// It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	catalog []model.TopicGroup
	answers *AnswerStore
	nav     *Navigator
	editing bool
}

// NewSession starts a questionnaire over catalog on its first topic.
func NewSession(catalog []model.TopicGroup) *Session {
	return &Session{
		catalog: catalog,
		answers: NewAnswerStore(),
		nav:     NewNavigator(len(catalog)),
	}
}

// Catalog returns the topic groups of the session.
func (s *Session) Catalog() []model.TopicGroup { return s.catalog }

// Answers returns the session's answer store.
func (s *Session) Answers() *AnswerStore { return s.answers }

// Position describes where the session stands.
type Position struct {
	Index     int
	Count     int
	Topic     model.TopicGroup
	AtStart   bool
	CanSubmit bool
	Editing   bool
}

// Position returns the current topic and navigation state.
func (s *Session) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Position{
		Index:     s.nav.Index(),
		Count:     s.nav.Len(),
		AtStart:   s.nav.AtStart(),
		CanSubmit: s.nav.CanSubmit(),
		Editing:   s.editing,
	}
	if p.Count > 0 {
		p.Topic = s.catalog[p.Index]
	}
	return p
}

// Next moves to the following topic.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Next()
}

// Previous moves to the preceding topic.
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Previous()
}

// SetAnswer parses raw input for a question and stores it. Select questions
// only accept one of their choices.
func (s *Session) SetAnswer(questionID, raw string) error {
	q, ok := FindQuestion(s.catalog, questionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	v, err := ParseAnswer(q, raw)
	if err != nil {
		return err
	}
	s.answers.Set(q.ID, v)
	return nil
}

// ToggleOption flips one option of a multi-select question, honoring its cap.
func (s *Session) ToggleOption(questionID, option string) (bool, error) {
	q, ok := FindQuestion(s.catalog, questionID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if q.Kind != model.KindMultiSelect {
		return false, fmt.Errorf("%w: question %s is not multi-select", ErrInvalidAnswer, questionID)
	}
	if !hasChoice(q, option) {
		return false, fmt.Errorf("%w: %q is not a choice of question %s", ErrInvalidAnswer, option, questionID)
	}
	return s.answers.Toggle(q.ID, option, q.MaxSelections), nil
}

// ParseAnswer converts raw user input into an answer for q.
func ParseAnswer(q model.Question, raw string) (model.AnswerValue, error) {
	raw = strings.TrimSpace(raw)
	switch q.Kind {
	case model.KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.AnswerValue{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, raw)
		}
		if q.Min != nil && n < *q.Min {
			return model.AnswerValue{}, fmt.Errorf("%w: %v is below %v", ErrInvalidAnswer, n, *q.Min)
		}
		if q.Max != nil && n > *q.Max {
			return model.AnswerValue{}, fmt.Errorf("%w: %v is above %v", ErrInvalidAnswer, n, *q.Max)
		}
		return model.NumberAnswer(n), nil
	case model.KindSingleSelect:
		if !hasChoice(q, raw) {
			return model.AnswerValue{}, fmt.Errorf("%w: %q is not a choice", ErrInvalidAnswer, raw)
		}
		return model.TextAnswer(raw), nil
	case model.KindMultiSelect:
		var items []string
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !hasChoice(q, part) {
				return model.AnswerValue{}, fmt.Errorf("%w: %q is not a choice", ErrInvalidAnswer, part)
			}
			items = append(items, part)
		}
		if q.MaxSelections > 0 && len(items) > q.MaxSelections {
			items = items[:q.MaxSelections]
		}
		return model.ListAnswer(items...), nil
	}
	return model.TextAnswer(raw), nil
}

func hasChoice(q model.Question, option string) bool {
	for _, c := range q.Choices {
		if c == option {
			return true
		}
	}
	return false
}

// StartEdit switches the session into edit mode and prefills answers from an
// existing profile. Profile fields are matched against question ids, then codes.
func (s *Session) StartEdit(p model.Profile) int {
	s.mu.Lock()
	s.editing = true
	s.mu.Unlock()

	prefill := p.PrefillAnswers()
	filled := 0
	for _, q := range Questions(s.catalog) {
		v, ok := prefill[q.ID]
		if !ok && q.Code != "" {
			v, ok = prefill[q.Code]
		}
		if !ok {
			continue
		}
		s.answers.Set(q.ID, v)
		filled++
	}
	return filled
}

// Editing reports whether the session edits an existing profile.
func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// Cancel discards all answers, leaves edit mode and returns to the first topic.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers.Reset()
	s.editing = false
	s.nav = NewNavigator(len(s.catalog))
}

// Submit hands the answers to coord. Answers survive a failure for a retry; a
// success leaves edit mode.
func (s *Session) Submit(ctx context.Context, coord *Coordinator, userID int64) (model.Profile, error) {
	s.mu.Lock()
	canSubmit := s.nav.CanSubmit()
	s.mu.Unlock()
	if !canSubmit {
		return model.Profile{}, ErrNotAtLastTopic
	}

	profile, err := coord.Submit(ctx, s.answers.Entries(), userID, s.catalog)
	if err != nil {
		return model.Profile{}, err
	}
	s.mu.Lock()
	s.editing = false
	s.mu.Unlock()
	return profile, nil
}
