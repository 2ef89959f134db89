package questionnaire

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/scentmatch/scentmatch/internal/api"
)

const twoTopicCatalog = `{"success":true,"message":"ok","data":[
	{"id":1,"question_id":"1.1","question_topic":"About you","question_text":"Gender?","type":"radio","multiple_choices":"Male,Female"},
	{"id":2,"question_id":"1.2","question_topic":"About you","question_text":"Age?","type":"number","min":10,"max":99},
	{"id":3,"question_id":"1.3","question_topic":"About you","question_text":"City?","type":"text"},
	{"id":4,"question_id":"2.1","question_topic":"Preferences","question_text":"Notes?","type":"select","can_select_multiple":true,"max":2,"multiple_choices":"Rose,Oud,Citrus"},
	{"id":5,"question_id":"2.2","question_topic":"Preferences","question_text":"Budget?","type":"number"}
]}`

func TestQuestionnaireEndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
		last  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /questionnaires/questions/":
			io.WriteString(w, twoTopicCatalog)
		case "POST /questionnaires/responses/":
			calls = append(calls, "response")
			io.WriteString(w, `{"success":true,"data":{}}`)
		case "POST /profiles/create/profile":
			calls = append(calls, "profile")
			json.Unmarshal(body, &last)
			io.WriteString(w, `{"success":true,"data":[{"id":1,"user_id":42,"gender":"Female"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := api.New(srv.URL, 0)
	ctx := context.Background()

	catalog, err := NewLoader(client).LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(catalog) != 2 || len(catalog[0].Questions) != 3 || len(catalog[1].Questions) != 2 {
		t.Fatalf("unexpected catalog shape %+v", catalog)
	}

	s := NewSession(catalog)
	for id, raw := range map[string]string{"1": "Female", "2": "31", "3": "Paris", "5": "120"} {
		if err := s.SetAnswer(id, raw); err != nil {
			t.Fatalf("SetAnswer(%s): %v", id, err)
		}
	}
	s.ToggleOption("4", "Rose")
	s.ToggleOption("4", "Oud")
	if changed, _ := s.ToggleOption("4", "Citrus"); changed {
		t.Error("third option should be capped")
	}

	if _, err := s.Submit(ctx, NewCoordinator(client), 42); err == nil {
		t.Fatal("submit on the first topic should be refused")
	}
	s.Next()

	profile, err := s.Submit(ctx, NewCoordinator(client), 42)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if profile.UserID != 42 || profile.Fields["gender"] != "Female" {
		t.Errorf("unexpected profile %+v", profile)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"response", "response", "response", "response", "response", "profile"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got %s, want %s (%v)", i, calls[i], want[i], calls)
		}
	}
	if qs, _ := last["questions"].([]any); len(qs) != 5 {
		t.Errorf("expected full catalog snapshot, got %v", last["questions"])
	}
}
