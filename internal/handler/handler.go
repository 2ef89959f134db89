package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/handler/views"
	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/questionnaire"
	"github.com/scentmatch/scentmatch/internal/recommend"
	"github.com/scentmatch/scentmatch/internal/store"
)

// browserState is the in-memory state of one browser session.
type browserState struct {
	quiz  *questionnaire.Session
	coord *questionnaire.Coordinator
	flash views.Notice
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	client *api.Client
	loader *questionnaire.Loader
	config model.UIConfig

	mu       sync.Mutex
	browsers map[string]*browserState
}

// New creates a new Handler.
func New(s *store.Store, client *api.Client, cfg model.UIConfig) (*Handler, error) {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = recommend.DefaultHistoryLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = recommend.DefaultCacheTTL
	}
	return &Handler{
		store:    s,
		client:   client,
		loader:   questionnaire.NewLoader(client),
		config:   cfg,
		browsers: make(map[string]*browserState),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.browserSession)
	r.Use(h.csrfMiddleware)

	r.Get("/", h.handleIndex)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.handleRegisterPage)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/questionnaire", h.handleQuestionnairePage)
		r.Post("/questionnaire", h.handleQuestionnaire)
		r.Get("/questionnaire/edit", h.handleEditProfile)
		r.Get("/profile", h.handleProfilePage)
		r.Get("/recommendations", h.handleRecommendationsPage)
		r.Post("/recommendations", h.handleRecommend)
		r.Post("/recommendations/quick", h.handleQuickRecommend)
		r.Get("/history", h.handleHistoryPage)
		r.Post("/history/{recID}/like", h.handleLike)
		r.Post("/history/{recID}/unlike", h.handleUnlike)
		r.Post("/feedback", h.handleFeedback)
	})
}

// BasePathMiddleware makes the deployment base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// CleanupExpired removes expired browser sessions from the store and drops the
// in-memory state of browsers that no longer exist.
func (h *Handler) CleanupExpired() error {
	if err := h.store.CleanupExpiredSessions(); err != nil {
		return err
	}
	h.mu.Lock()
	ids := make([]string, 0, len(h.browsers))
	for id := range h.browsers {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		ok, err := h.store.BrowserSessionExists(id)
		if err != nil {
			return err
		}
		if !ok {
			h.dropBrowser(id)
		}
	}
	return nil
}

func (h *Handler) browser(id string) *browserState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.browsers[id]
	if !ok {
		st = &browserState{}
		h.browsers[id] = st
	}
	return st
}

func (h *Handler) dropBrowser(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.browsers, id)
}

// setFlash keeps a notice for the next rendered page of the browser.
func (h *Handler) setFlash(r *http.Request, n views.Notice) {
	st := h.browser(browserIDFromContext(r.Context()))
	h.mu.Lock()
	st.flash = n
	h.mu.Unlock()
}

func (h *Handler) takeFlash(r *http.Request) views.Notice {
	st := h.browser(browserIDFromContext(r.Context()))
	h.mu.Lock()
	defer h.mu.Unlock()
	n := st.flash
	st.flash = views.Notice{}
	return n
}

// redirect sends the browser to p (relative to the base path) with a notice.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string, n views.Notice) {
	if !n.Empty() {
		h.setFlash(r, n)
	}
	http.Redirect(w, r, h.path(p), http.StatusSeeOther)
}

// userClient returns a backend client carrying the user's token.
func (h *Handler) userClient(u *model.SessionUser) *api.Client {
	return h.client.WithToken(u.Token)
}

func (h *Handler) sessionStore(browserID string) *store.SessionStore {
	return store.NewSessionStore(h.store.Scope(store.SessionNamespace(browserID)))
}

func (h *Handler) historyService(browserID string, c *api.Client) *recommend.HistoryService {
	cache := store.NewHistoryCache(h.store.Scope(store.HistoryNamespace(browserID)))
	return recommend.NewHistoryService(c, cache, h.config.HistoryLimit, h.config.CacheTTL)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if model.UserFromContext(r.Context()) != nil {
		http.Redirect(w, r, h.path("/profile"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func errorNotice(ctx context.Context, msgID string) views.Notice {
	return views.ErrorNotice(appI18n.T(ctx, msgID))
}

func successNotice(ctx context.Context, msgID string) views.Notice {
	return views.SuccessNotice(appI18n.T(ctx, msgID))
}
