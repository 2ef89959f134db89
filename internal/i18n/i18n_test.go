package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "ScentMatch" {
		t.Errorf("T(AppTitle) = %q, want 'ScentMatch'", got)
	}

	got = T(ctx, "NavHistory")
	if got != "History" {
		t.Errorf("T(NavHistory) = %q, want 'History'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "NavHistory")
	if got != "История" {
		t.Errorf("T(NavHistory) = %q, want 'История'", got)
	}

	got = T(ctx, "Previous")
	if got != "Назад" {
		t.Errorf("T(Previous) = %q, want 'Назад'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		count int
		want  string
	}{
		{1, "1 question answered"},
		{5, "5 questions answered"},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "AnsweredCount", tt.count); got != tt.want {
			t.Errorf("Tp(AnsweredCount, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestPluralTranslationRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	tests := []struct {
		count int
		want  string
	}{
		{1, "1 вопрос отвечен"},
		{3, "3 вопроса отвечено"},
		{5, "5 вопросов отвечено"},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "AnsweredCount", tt.count); got != tt.want {
			t.Errorf("Tp(AnsweredCount, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "TopicProgress", map[string]any{"Index": 2, "Count": 5})
	if got != "Topic 2 of 5" {
		t.Errorf("Td(TopicProgress) = %q, want 'Topic 2 of 5'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")

	langs := Languages()
	if len(langs) != 2 || langs[0] != "en" {
		t.Errorf("Languages() = %v, want en first of two", langs)
	}
}

func TestMiddlewareLanguageSelection(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "NavHistory")
	}))

	tests := []struct {
		name   string
		target string
		cookie string
		accept string
		want   string
	}{
		{"default", "/", "", "", "History"},
		{"accept language", "/", "", "ru-RU,ru;q=0.9", "История"},
		{"cookie beats header", "/", "en", "ru", "History"},
		{"query beats cookie", "/?lang=ru", "en", "", "История"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareRemembersQueryLanguage(t *testing.T) {
	initLang(t, "en")

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?lang=ru", nil))

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == LangCookie && c.Value == "ru" {
			found = true
		}
	}
	if !found {
		t.Error("expected lang cookie to be set")
	}
}
