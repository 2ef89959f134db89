package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/handler/views"
	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
)

const (
	browserCookieName = "scentmatch_session"
	csrfCookieName    = "csrf_token"

	minPasswordLength = 6
)

type browserIDCtxKey struct{}

func contextWithBrowserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, browserIDCtxKey{}, id)
}

func browserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(browserIDCtxKey{}).(string)
	return id
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				slog.Warn("CSRF cookie missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}

			formToken := r.FormValue("csrf_token")
			if formToken == "" {
				slog.Warn("CSRF form token missing")
				http.Error(w, "csrf token missing", http.StatusForbidden)
				return
			}

			if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
				slog.Warn("CSRF token mismatch")
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
		}

		r, ok := h.setCSRFCookie(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// browserSession identifies the browser by a long-lived cookie and loads the
// logged-in user of that browser, if any.
func (h *Handler) browserSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if cookie, err := r.Cookie(browserCookieName); err == nil && cookie.Value != "" {
			ok, err := h.store.BrowserSessionExists(cookie.Value)
			if err != nil {
				slog.Error("failed to check browser session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if ok {
				id = cookie.Value
			} else {
				h.dropBrowser(cookie.Value)
			}
		}

		if id == "" {
			var err error
			id, err = h.store.CreateBrowserSession()
			if err != nil {
				slog.Error("failed to create browser session", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     browserCookieName,
				Value:    id,
				Path:     h.cookiePath(),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   h.config.SecureCookies,
			})
		}

		ctx := contextWithBrowserID(r.Context(), id)
		user, err := h.sessionStore(id).LoadUser()
		if err != nil {
			slog.Error("failed to load session user", "error", err)
		}
		if user != nil {
			ctx = model.ContextWithUser(ctx, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth redirects to the login page when the browser has no logged-in user.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if model.UserFromContext(r.Context()) == nil {
			h.redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if model.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, h.path("/profile"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.LoginPage(h.takeFlash(r), ""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := h.client.Login(r.Context(), username, password)
	if err != nil {
		slog.Warn("login failed", "username", username, "error", err)
		msgID := "LoginError"
		var apiErr *api.APIError
		if !errors.As(err, &apiErr) && !errors.Is(err, api.ErrMalformedPayload) {
			msgID = "NetworkError"
		}
		render(w, r, http.StatusUnauthorized, views.LoginPage(errorNotice(r.Context(), msgID), username))
		return
	}

	if err := h.startSession(r, user); err != nil {
		slog.Error("failed to save session user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.Info("user logged in", "username", user.Username, "user_id", user.EffectiveID())
	http.Redirect(w, r, h.path("/profile"), http.StatusSeeOther)
}

// startSession stores user as the browser's session user and forgets any
// questionnaire left over from a previous user.
func (h *Handler) startSession(r *http.Request, user model.SessionUser) error {
	id := browserIDFromContext(r.Context())
	h.dropBrowser(id)
	return h.sessionStore(id).SaveUser(user)
}

func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.RegisterPage(h.takeFlash(r), model.Registration{}))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	reg := model.Registration{
		Username:  strings.TrimSpace(r.FormValue("username")),
		Email:     strings.TrimSpace(r.FormValue("email")),
		FirstName: strings.TrimSpace(r.FormValue("first_name")),
		LastName:  strings.TrimSpace(r.FormValue("last_name")),
		Password:  r.FormValue("password"),
	}
	ctx := r.Context()

	if reg.Password != r.FormValue("confirm_password") {
		render(w, r, http.StatusUnprocessableEntity, views.RegisterPage(errorNotice(ctx, "PasswordsDontMatch"), reg))
		return
	}
	if len(reg.Password) < minPasswordLength {
		render(w, r, http.StatusUnprocessableEntity, views.RegisterPage(errorNotice(ctx, "PasswordTooShort"), reg))
		return
	}

	if _, err := h.client.CreateUser(ctx, reg); err != nil {
		slog.Warn("registration failed", "username", reg.Username, "error", err)
		msg := api.MessageOf(err)
		if msg == "" {
			msg = appI18n.T(ctx, "GenericError")
		}
		notice := views.ErrorNotice(appI18n.Td(ctx, "RegisterFailed", map[string]any{"Message": msg}))
		render(w, r, http.StatusUnprocessableEntity, views.RegisterPage(notice, reg))
		return
	}
	slog.Info("user registered", "username", reg.Username)

	user, err := h.client.Login(ctx, reg.Username, reg.Password)
	if err != nil {
		slog.Warn("login after registration failed", "username", reg.Username, "error", err)
		h.redirect(w, r, "/login", successNotice(ctx, "RegisterSuccess"))
		return
	}
	if err := h.startSession(r, user); err != nil {
		slog.Error("failed to save session user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.redirect(w, r, "/questionnaire", successNotice(ctx, "RegisterSuccess"))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := browserIDFromContext(r.Context())
	if err := h.sessionStore(id).ClearUser(); err != nil {
		slog.Error("failed to clear session user", "error", err)
	}
	h.dropBrowser(id)
	h.redirect(w, r, "/login", views.InfoNotice(appI18n.T(r.Context(), "LoggedOut")))
}
