package i18n

import "net/http"

// LangCookie remembers a language picked with the ?lang= query parameter.
const LangCookie = "lang"

// Middleware puts a localizer into every request context. The language comes from
// ?lang=, then the lang cookie, then Accept-Language, then the default.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefs []string
		if q := r.URL.Query().Get("lang"); q != "" {
			prefs = append(prefs, q)
			http.SetCookie(w, &http.Cookie{
				Name:     LangCookie,
				Value:    q,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		if c, err := r.Cookie(LangCookie); err == nil && c.Value != "" {
			prefs = append(prefs, c.Value)
		}
		if al := r.Header.Get("Accept-Language"); al != "" {
			prefs = append(prefs, al)
		}
		ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
