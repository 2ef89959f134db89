package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/scentmatch/scentmatch/internal/model"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// fakeBackend serves canned bodies per "METHOD /path" and records every request.
type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeBackend(t *testing.T) (*fakeBackend, *Client) {
	t.Helper()
	fb := &fakeBackend{routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		h, ok := fb.routes[r.Method+" "+r.URL.Path]
		fb.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return fb, New(srv.URL, 0)
}

func (fb *fakeBackend) json(route string, status int, body string) {
	fb.routes[route] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func (fb *fakeBackend) last() recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.requests[len(fb.requests)-1]
}

func TestNewNormalizesBaseURL(t *testing.T) {
	if got := New("", 0).BaseURL(); got != DefaultBaseURL {
		t.Errorf("empty base URL: got %q", got)
	}
	if got := New(" http://x:8000/ ", 0).BaseURL(); got != "http://x:8000" {
		t.Errorf("trailing slash: got %q", got)
	}
}

func TestLogin(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /auth/login", 200, `{"success":true,"data":[{"user_id":12,"token":"abc","type":"bearer"}]}`)

	u, err := c.Login(context.Background(), "ana", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != 12 || u.UserID != 12 || u.Token != "abc" || u.TokenType != "bearer" || u.Username != "ana" {
		t.Errorf("unexpected user %+v", u)
	}
	var sent map[string]string
	json.Unmarshal([]byte(fb.last().Body), &sent)
	if sent["username"] != "ana" || sent["password"] != "pw" {
		t.Errorf("unexpected login body %s", fb.last().Body)
	}
}

func TestLoginRejected(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /auth/login", 401, `{"detail":"Invalid credentials"}`)

	_, err := c.Login(context.Background(), "ana", "bad")
	if StatusOf(err) != 401 {
		t.Errorf("expected status 401, got %d (%v)", StatusOf(err), err)
	}
	if MessageOf(err) != "Invalid credentials" {
		t.Errorf("expected detail message, got %q", MessageOf(err))
	}
}

func TestEnvelopeFailure(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("GET /questionnaires/questions/", 200, `{"success":false,"message":"db down","data":null}`)

	_, err := c.ListQuestions(context.Background())
	if !errors.Is(err, ErrUnsuccessful) {
		t.Fatalf("expected ErrUnsuccessful, got %v", err)
	}
	if MessageOf(err) != "db down" {
		t.Errorf("expected envelope message, got %q", MessageOf(err))
	}
}

func TestListQuestionsShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantLen   int
		malformed bool
	}{
		{"array", `{"success":true,"data":[{"id":1,"question_text":"Q","type":"text"}]}`, 1, false},
		{"string", `{"success":true,"data":"[{\"id\":1},{\"id\":2}]"}`, 2, false},
		{"object", `{"success":true,"data":{"id":1}}`, 0, true},
		{"garbage string", `{"success":true,"data":"nope"}`, 0, true},
		{"no envelope", `[{"id":1}]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, c := newFakeBackend(t)
			fb.json("GET /questionnaires/questions/", 200, tt.body)
			qs, err := c.ListQuestions(context.Background())
			if tt.malformed {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("expected ErrMalformedPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListQuestions: %v", err)
			}
			if len(qs) != tt.wantLen {
				t.Errorf("expected %d questions, got %d", tt.wantLen, len(qs))
			}
		})
	}
}

func TestSubmitResponseSendsExplicitNulls(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /questionnaires/responses/", 200, `{"success":true,"data":{}}`)

	n := 3.0
	err := c.SubmitResponse(context.Background(), ResponseRecord{UserID: 5, QuestionID: "q1", AnswerNumber: &n})
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(fb.last().Body), &sent); err != nil {
		t.Fatalf("body: %v", err)
	}
	for _, k := range []string{"answer_text", "answer_json"} {
		v, ok := sent[k]
		if !ok || v != nil {
			t.Errorf("%s: expected explicit null, got %v (present=%v)", k, v, ok)
		}
	}
	if sent["answer_number"] != 3.0 {
		t.Errorf("answer_number = %v", sent["answer_number"])
	}
}

func TestTokenIsSent(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /feedback/recommendation/9/like", 200, `{"success":true}`)
	fb.json("DELETE /feedback/recommendation/9/like", 200, `{"success":true}`)

	authed := c.WithToken("tok")
	if err := authed.LikeRecommendation(context.Background(), 9); err != nil {
		t.Fatalf("LikeRecommendation: %v", err)
	}
	if got := fb.last().Auth; got != "Bearer tok" {
		t.Errorf("expected bearer header, got %q", got)
	}
	if err := c.UnlikeRecommendation(context.Background(), 9); err != nil {
		t.Fatalf("UnlikeRecommendation: %v", err)
	}
	if got := fb.last(); got.Auth != "" || got.Method != http.MethodDelete {
		t.Errorf("unexpected unlike request %+v", got)
	}
}

func TestCreateProfileValidationMessage(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /profiles/create/profile", 422, `{"detail":[{"loc":["body","answers"],"msg":"field required"}]}`)

	_, err := c.CreateProfile(context.Background(), ProfileRequest{UserID: 1})
	if MessageOf(err) != "field required" {
		t.Errorf("expected first validation message, got %q (%v)", MessageOf(err), err)
	}
}

func TestCreateProfile(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /profiles/create/profile", 200, `{"success":true,"data":[{"id":3,"user_id":1,"gender":"female","favorite_notes":"rose, oud"}]}`)

	p, err := c.CreateProfile(context.Background(), ProfileRequest{UserID: 1})
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if p.ID != 3 || p.UserID != 1 || p.Fields["gender"] != "female" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestUserProfiles(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("GET /profiles/user/4", 200, `{"success":true,"data":[{"id":1,"user_id":4,"mood":"calm"},{"id":2,"user_id":4}]}`)

	ps, err := c.UserProfiles(context.Background(), 4)
	if err != nil {
		t.Fatalf("UserProfiles: %v", err)
	}
	if len(ps) != 2 || ps[0].Fields["mood"] != "calm" {
		t.Errorf("unexpected profiles %+v", ps)
	}
}

func TestGenerateRecommendation(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("POST /ai/", 200, `{"success":true,"data":[{"id":8,"ai_perfume_name":"Chanel No. 5","reason":"floral","other_perfumes_to_try":[{"name":"Miss Dior","price":"120"}]}]}`)

	temp := 21.5
	rc := &model.RecommendationContext{Mood: "happy", Activity: "work", PrimaryClimate: "temperate", Temperature: &temp}
	rec, err := c.GenerateRecommendation(context.Background(), 3, rc)
	if err != nil {
		t.Fatalf("GenerateRecommendation: %v", err)
	}
	if rec.ID != 8 || rec.Name != "Chanel No. 5" || rec.Reason != "floral" {
		t.Errorf("unexpected recommendation %+v", rec)
	}
	if len(rec.Alternates) != 1 || rec.Alternates[0].Price == nil || *rec.Alternates[0].Price != 120 {
		t.Errorf("unexpected alternates %+v", rec.Alternates)
	}
	if rec.Context.Mood != "happy" {
		t.Errorf("context not carried: %+v", rec.Context)
	}

	var sent map[string]any
	json.Unmarshal([]byte(fb.last().Body), &sent)
	if sent["user_id"] != 3.0 || sent["mood"] != "happy" || sent["temperature"] != 21.5 {
		t.Errorf("unexpected request body %s", fb.last().Body)
	}
	if _, ok := sent["humidity"]; ok {
		t.Error("unset humidity should be omitted")
	}
}

func TestRecommendationHistoryAndLatest(t *testing.T) {
	fb, c := newFakeBackend(t)
	fb.json("GET /recommendations/my", 200, `{"success":true,"data":[{"perfume":"A"},{"name":"B"}]}`)
	fb.json("GET /recommendations/my/latest", 200, `{"success":true,"data":[]}`)

	recs, err := c.RecommendationHistory(context.Background(), 2, 50)
	if err != nil {
		t.Fatalf("RecommendationHistory: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "A" || recs[1].Name != "B" {
		t.Errorf("unexpected history %+v", recs)
	}
	if q := fb.last().Query; !strings.Contains(q, "user_id=2") || !strings.Contains(q, "limit=50") {
		t.Errorf("unexpected query %q", q)
	}

	latest, err := c.LatestRecommendation(context.Background(), 2)
	if err != nil {
		t.Fatalf("LatestRecommendation: %v", err)
	}
	if latest != nil {
		t.Errorf("expected no latest recommendation, got %+v", latest)
	}
}

func TestTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", 0)
	_, err := c.ListQuestions(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if StatusOf(err) != 0 {
		t.Errorf("transport failure should carry no status, got %d", StatusOf(err))
	}
}
