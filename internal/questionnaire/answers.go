package questionnaire

import (
	"sync"

	"github.com/scentmatch/scentmatch/internal/model"
)

// AnswerStore holds the answers of one questionnaire session. Entries keep the
// order in which each question was first answered.
type AnswerStore struct {
	mu     sync.Mutex
	order  []string
	values map[string]model.AnswerValue
}

// NewAnswerStore returns an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{values: make(map[string]model.AnswerValue)}
}

// Set replaces the answer of a question.
func (s *AnswerStore) Set(id string, v model.AnswerValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(id, v)
}

func (s *AnswerStore) setLocked(id string, v model.AnswerValue) {
	if _, ok := s.values[id]; !ok {
		s.order = append(s.order, id)
	}
	s.values[id] = v
}

// Toggle flips option in a multi-select answer. Adding is refused once the answer
// holds max options (max <= 0 means no cap). It reports whether the answer changed.
func (s *AnswerStore) Toggle(id, option string, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []string
	if v, ok := s.values[id]; ok && v.Kind() == model.AnswerList {
		current = v.List()
	}
	for i, o := range current {
		if o == option {
			next := append(current[:i:i], current[i+1:]...)
			s.setLocked(id, model.ListAnswer(next...))
			return true
		}
	}
	if max > 0 && len(current) >= max {
		return false
	}
	s.setLocked(id, model.ListAnswer(append(current, option)...))
	return true
}

// Get returns the answer of a question.
func (s *AnswerStore) Get(id string) (model.AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[id]
	return v, ok
}

// Entries returns all answers in first-set order.
func (s *AnswerStore) Entries() []model.AnswerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AnswerEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, model.AnswerEntry{QuestionID: id, Value: s.values[id]})
	}
	return out
}

// Len returns the number of answered questions.
func (s *AnswerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Reset discards every answer.
func (s *AnswerStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.values = make(map[string]model.AnswerValue)
}

// Clone returns an independent copy.
func (s *AnswerStore) Clone() *AnswerStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &AnswerStore{
		order:  append([]string(nil), s.order...),
		values: make(map[string]model.AnswerValue, len(s.values)),
	}
	for k, v := range s.values {
		cp.values[k] = v
	}
	return cp
}
