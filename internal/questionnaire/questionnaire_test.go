package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/model"
)

func TestGroupByTopicFirstSeenOrder(t *testing.T) {
	qs := []model.Question{
		{ID: "1", Topic: "B"},
		{ID: "2", Topic: "A"},
		{ID: "3", Topic: "B"},
		{ID: "4", Topic: ""},
	}
	groups := GroupByTopic(qs)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	want := []string{"B", "A", model.DefaultTopic}
	for i, g := range groups {
		if g.Topic != want[i] {
			t.Errorf("group %d: topic %q, want %q", i, g.Topic, want[i])
		}
	}
	if len(groups[0].Questions) != 2 || groups[0].Questions[0].ID != "1" || groups[0].Questions[1].ID != "3" {
		t.Errorf("topic B lost source order: %+v", groups[0].Questions)
	}
}

type fakeSource struct {
	calls atomic.Int32
	delay time.Duration
	qs    []model.Question
	err   error
}

func (f *fakeSource) ListQuestions(ctx context.Context) ([]model.Question, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	return f.qs, f.err
}

func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		malformed bool
		message   string
	}{
		{"malformed", fmt.Errorf("wrap: %w", api.ErrMalformedPayload), true, ""},
		{"unsuccessful", &api.APIError{StatusCode: 200, Message: "db down"}, false, "db down"},
		{"transport", errors.New("connection refused"), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoader(&fakeSource{err: tt.err})
			groups, err := l.LoadCatalog(context.Background())
			if groups != nil {
				t.Errorf("expected no groups, got %v", groups)
			}
			var cerr *CatalogError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected CatalogError, got %v", err)
			}
			if cerr.Malformed != tt.malformed || cerr.Message != tt.message {
				t.Errorf("unexpected error %+v", cerr)
			}
		})
	}
}

func TestLoadCatalogSharesInFlightCall(t *testing.T) {
	src := &fakeSource{delay: 50 * time.Millisecond, qs: []model.Question{{ID: "1", Topic: "T"}}}
	l := NewLoader(src)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.LoadCatalog(context.Background()); err != nil {
				t.Errorf("LoadCatalog: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n >= 5 {
		t.Errorf("expected concurrent loads to share calls, got %d", n)
	}

	// Nothing is cached once the call finished.
	before := src.calls.Load()
	l.LoadCatalog(context.Background())
	if src.calls.Load() != before+1 {
		t.Error("expected a fresh backend call after the in-flight one completed")
	}
}

type gatedSource struct {
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) ListQuestions(ctx context.Context) ([]model.Question, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return []model.Question{{ID: "1", Topic: "T"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLoadCatalogOutlivesFirstCaller(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	l := NewLoader(src)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := l.LoadCatalog(ctxA)
		errA <- err
	}()
	<-src.started
	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: got %v, want context.Canceled", err)
	}

	time.AfterFunc(20*time.Millisecond, func() { close(src.release) })
	groups, err := l.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if len(groups) != 1 || groups[0].Topic != "T" {
		t.Errorf("groups = %+v", groups)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want the second caller to join the first", n)
	}
}

func TestToggleNeverExceedsCap(t *testing.T) {
	s := NewAnswerStore()
	options := []string{"a", "b", "c", "d", "a", "e", "b", "f", "c", "d"}
	for _, o := range options {
		s.Toggle("q", o, 2)
		v, _ := s.Get("q")
		if len(v.List()) > 2 {
			t.Fatalf("cap exceeded after toggling %q: %v", o, v.List())
		}
	}
}

func TestToggle(t *testing.T) {
	s := NewAnswerStore()
	if !s.Toggle("q", "rose", 2) || !s.Toggle("q", "oud", 2) {
		t.Fatal("expected additions under the cap to change state")
	}
	if s.Toggle("q", "musk", 2) {
		t.Error("addition over the cap should be a no-op")
	}
	v, _ := s.Get("q")
	if got := v.List(); len(got) != 2 || got[0] != "rose" || got[1] != "oud" {
		t.Errorf("unexpected selection %v", got)
	}
	if !s.Toggle("q", "rose", 2) {
		t.Error("removal should always succeed")
	}
	if !s.Toggle("q", "musk", 2) {
		t.Error("addition after removal should succeed")
	}
	v, _ = s.Get("q")
	if got := v.List(); got[0] != "oud" || got[1] != "musk" {
		t.Errorf("selection order lost: %v", got)
	}

	for i := 0; i < 20; i++ {
		s.Toggle("free", fmt.Sprint(i), 0)
	}
	if v, _ := s.Get("free"); len(v.List()) != 20 {
		t.Errorf("uncapped toggle should keep all options, got %d", len(v.List()))
	}
}

func TestAnswerStoreOrderAndReset(t *testing.T) {
	s := NewAnswerStore()
	s.Set("b", model.TextAnswer("x"))
	s.Set("a", model.NumberAnswer(1))
	s.Set("b", model.TextAnswer("y"))

	entries := s.Entries()
	if len(entries) != 2 || entries[0].QuestionID != "b" || entries[1].QuestionID != "a" {
		t.Fatalf("unexpected order %+v", entries)
	}
	if entries[0].Value.Text() != "y" {
		t.Errorf("replace should keep position and update value, got %q", entries[0].Value.Text())
	}

	cp := s.Clone()
	s.Reset()
	if s.Len() != 0 {
		t.Error("expected empty store after reset")
	}
	if _, ok := s.Get("a"); ok {
		t.Error("reset left answers behind")
	}
	if cp.Len() != 2 {
		t.Error("clone should be independent of reset")
	}
}

func TestNavigatorBounds(t *testing.T) {
	nv := NewNavigator(3)
	if !nv.AtStart() || nv.CanSubmit() {
		t.Fatal("unexpected initial state")
	}
	if nv.Previous() || nv.Index() != 0 {
		t.Error("previous at index 0 should be a no-op")
	}
	nv.Next()
	nv.Next()
	if !nv.AtEnd() || !nv.CanSubmit() {
		t.Error("expected last index to be submission eligible")
	}
	if nv.Next() || nv.Index() != 2 {
		t.Error("next at last index should be a no-op")
	}

	empty := NewNavigator(0)
	if empty.Next() || empty.Previous() || empty.CanSubmit() {
		t.Error("empty navigator must never move or submit")
	}

	single := NewNavigator(1)
	if !single.CanSubmit() {
		t.Error("single topic is immediately submission eligible")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		value  model.AnswerValue
		text   string
		number *float64
		json   string
	}{
		{"text", model.TextAnswer("hi"), "hi", nil, ""},
		{"number", model.NumberAnswer(4.5), "", ptr(4.5), ""},
		{"list", model.ListAnswer("a", "b"), "", nil, `["a","b"]`},
		{"empty list", model.ListAnswer(), "", nil, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Classify(7, model.AnswerEntry{QuestionID: "q", Value: tt.value})
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			set := 0
			if rec.AnswerText != nil {
				set++
				if *rec.AnswerText != tt.text {
					t.Errorf("text = %q", *rec.AnswerText)
				}
			}
			if rec.AnswerNumber != nil {
				set++
				if tt.number == nil || *rec.AnswerNumber != *tt.number {
					t.Errorf("number = %v", *rec.AnswerNumber)
				}
			}
			if rec.AnswerJSON != nil {
				set++
				if *rec.AnswerJSON != tt.json {
					t.Errorf("json = %q", *rec.AnswerJSON)
				}
			}
			if set != 1 {
				t.Errorf("expected exactly one populated field, got %d", set)
			}
			if rec.UserID != 7 || rec.QuestionID != "q" {
				t.Errorf("unexpected record %+v", rec)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	failAt    int // 1-based response call that fails, 0 for none
	profErr   error
	block     chan struct{}
	profileIn api.ProfileRequest
}

func (f *fakeBackend) SubmitResponse(ctx context.Context, rec api.ResponseRecord) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "response:"+rec.QuestionID)
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, "response:") {
			n++
		}
	}
	if f.failAt > 0 && n == f.failAt {
		return &api.APIError{StatusCode: 500, Message: "boom"}
	}
	return nil
}

func (f *fakeBackend) CreateProfile(ctx context.Context, req api.ProfileRequest) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "profile")
	f.profileIn = req
	if f.profErr != nil {
		return model.Profile{}, f.profErr
	}
	return model.Profile{ID: 1, UserID: req.UserID, Fields: map[string]any{"ok": "yes"}}, nil
}

func threeAnswers() []model.AnswerEntry {
	return []model.AnswerEntry{
		{QuestionID: "1", Value: model.TextAnswer("a")},
		{QuestionID: "2", Value: model.NumberAnswer(2)},
		{QuestionID: "3", Value: model.ListAnswer("x", "y")},
	}
}

func TestSubmitFailFast(t *testing.T) {
	fb := &fakeBackend{failAt: 2}
	_, err := NewCoordinator(fb).Submit(context.Background(), threeAnswers(), 1, nil)

	var serr *SubmitError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SubmitError, got %v", err)
	}
	if serr.Stage != StageResponse || serr.QuestionID != "2" || serr.Message != "boom" {
		t.Errorf("unexpected error %+v", serr)
	}
	if len(fb.calls) != 2 || fb.calls[0] != "response:1" || fb.calls[1] != "response:2" {
		t.Errorf("expected no calls after the failure, got %v", fb.calls)
	}
}

func TestSubmitProfileFailure(t *testing.T) {
	fb := &fakeBackend{profErr: &api.APIError{StatusCode: 422, Message: "field required"}}
	_, err := NewCoordinator(fb).Submit(context.Background(), threeAnswers(), 1, nil)

	var serr *SubmitError
	if !errors.As(err, &serr) || serr.Stage != StageProfile {
		t.Fatalf("expected profile stage error, got %v", err)
	}
	if serr.Message != "field required" {
		t.Errorf("expected validation message, got %q", serr.Message)
	}
}

func TestSubmitBuildsProfilePayload(t *testing.T) {
	catalog := []model.TopicGroup{
		{Topic: "About", Questions: []model.Question{{ID: "1", Text: "Name?", Topic: "About"}, {ID: "2", Text: "Age?", Topic: "About"}}},
		{Topic: "Scent", Questions: []model.Question{{ID: "3", Text: "Notes?", Topic: "Scent"}}},
	}
	fb := &fakeBackend{}
	p, err := NewCoordinator(fb).Submit(context.Background(), threeAnswers(), 9, catalog)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.UserID != 9 {
		t.Errorf("unexpected profile %+v", p)
	}
	req := fb.profileIn
	if len(req.Questions) != 3 || req.Questions[2].QuestionTopic != "Scent" {
		t.Errorf("unexpected catalog snapshot %+v", req.Questions)
	}
	if len(req.Answers) != 3 {
		t.Fatalf("unexpected answers %+v", req.Answers)
	}
	if req.Answers[2].Answer != "x, y" || req.Answers[2].QuestionText != "Notes?" {
		t.Errorf("list answer not flattened: %+v", req.Answers[2])
	}
	if req.Answers[1].Answer != "2" {
		t.Errorf("number answer = %q", req.Answers[1].Answer)
	}
}

func TestSubmitRejectsConcurrentAttempt(t *testing.T) {
	fb := &fakeBackend{block: make(chan struct{})}
	coord := NewCoordinator(fb)

	done := make(chan error, 1)
	go func() {
		_, err := coord.Submit(context.Background(), threeAnswers()[:1], 1, nil)
		done <- err
	}()
	for !coord.Busy() {
		time.Sleep(time.Millisecond)
	}
	if _, err := coord.Submit(context.Background(), threeAnswers(), 1, nil); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("expected ErrSubmitInProgress, got %v", err)
	}
	close(fb.block)
	if err := <-done; err != nil {
		t.Errorf("first submit: %v", err)
	}
	if coord.Busy() {
		t.Error("busy flag should clear after completion")
	}
}

func TestParseAnswer(t *testing.T) {
	lo, hi := 0.0, 10.0
	num := model.Question{ID: "n", Kind: model.KindNumber, Min: &lo, Max: &hi}
	sel := model.Question{ID: "s", Kind: model.KindSingleSelect, Choices: []string{"Yes", "No"}}
	multi := model.Question{ID: "m", Kind: model.KindMultiSelect, Choices: []string{"a", "b", "c"}, MaxSelections: 2}

	tests := []struct {
		name    string
		q       model.Question
		raw     string
		want    string
		wantErr bool
	}{
		{"number", num, " 4.5 ", "4.5", false},
		{"number not numeric", num, "four", "", true},
		{"number above max", num, "11", "", true},
		{"select", sel, "No", "No", false},
		{"select unknown", sel, "Maybe", "", true},
		{"multi capped", multi, "a, b, c", "a, b", false},
		{"multi unknown", multi, "a,z", "", true},
		{"text", model.Question{ID: "t", Kind: model.KindText}, " hello ", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseAnswer(tt.q, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAnswer) {
					t.Errorf("expected ErrInvalidAnswer, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAnswer: %v", err)
			}
			if v.DisplayText() != tt.want {
				t.Errorf("got %q, want %q", v.DisplayText(), tt.want)
			}
		})
	}
}

func TestSessionEditAndCancel(t *testing.T) {
	catalog := []model.TopicGroup{
		{Topic: "About", Questions: []model.Question{
			{ID: "10", Code: "gender", Kind: model.KindSingleSelect, Choices: []string{"male", "female"}},
			{ID: "age", Kind: model.KindNumber},
		}},
		{Topic: "Scent", Questions: []model.Question{{ID: "notes", Kind: model.KindMultiSelect, Choices: []string{"rose", "oud"}}}},
	}
	s := NewSession(catalog)
	filled := s.StartEdit(model.Profile{Fields: map[string]any{
		"gender":  "female",
		"age":     31.0,
		"notes":   []any{"rose"},
		"unknown": "ignored",
		"empty":   "",
	}})
	if filled != 3 {
		t.Errorf("expected 3 prefilled answers, got %d", filled)
	}
	if !s.Editing() {
		t.Error("expected edit mode")
	}
	if v, ok := s.Answers().Get("10"); !ok || v.Text() != "female" {
		t.Errorf("code-matched prefill missing: %v %v", v, ok)
	}

	s.Next()
	s.Cancel()
	if s.Editing() || s.Answers().Len() != 0 || s.Position().Index != 0 {
		t.Errorf("cancel should reset the session, got %+v answers=%d", s.Position(), s.Answers().Len())
	}
}

func TestSessionSubmitOnlyOnLastTopic(t *testing.T) {
	catalog := []model.TopicGroup{{Topic: "A"}, {Topic: "B"}}
	s := NewSession(catalog)
	coord := NewCoordinator(&fakeBackend{})

	if _, err := s.Submit(context.Background(), coord, 1); !errors.Is(err, ErrNotAtLastTopic) {
		t.Fatalf("expected ErrNotAtLastTopic, got %v", err)
	}
	s.StartEdit(model.Profile{})
	s.Next()
	if _, err := s.Submit(context.Background(), coord, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Editing() {
		t.Error("successful submit should leave edit mode")
	}
}

func TestSessionKeepsAnswersOnFailure(t *testing.T) {
	catalog := []model.TopicGroup{{Topic: "A", Questions: []model.Question{{ID: "1", Kind: model.KindText}}}}
	s := NewSession(catalog)
	if err := s.SetAnswer("1", "hello"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	if err := s.SetAnswer("nope", "x"); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}

	_, err := s.Submit(context.Background(), NewCoordinator(&fakeBackend{failAt: 1}), 1)
	if err == nil {
		t.Fatal("expected failure")
	}
	if v, ok := s.Answers().Get("1"); !ok || v.Text() != "hello" {
		t.Error("answers must survive a failed submission")
	}
}
