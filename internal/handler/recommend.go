package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scentmatch/scentmatch/internal/handler/views"
	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/recommend"
)

const profileHistoryItems = 3

func (h *Handler) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)
	client := h.userClient(user)
	uid := user.EffectiveID()

	v := views.ProfileView{Notice: h.takeFlash(r)}

	profiles, err := client.UserProfiles(ctx, uid)
	if err != nil {
		slog.Error("failed to load profile", "user_id", uid, "error", err)
		if v.Notice.Empty() {
			v.Notice = errorNotice(ctx, "ProfileLoadFailed")
		}
	} else if len(profiles) > 0 {
		v.Profile = &profiles[0]
	}

	latest, err := client.LatestRecommendation(ctx, uid)
	if err != nil {
		slog.Warn("failed to load latest recommendation", "user_id", uid, "error", err)
	} else if latest != nil && recommend.IsValid(latest.Name) {
		v.Latest = latest
	}

	hist, err := h.historyService(browserIDFromContext(ctx), client).Load(ctx, uid)
	if err != nil {
		slog.Warn("failed to load recommendation history", "user_id", uid, "error", err)
	} else {
		v.History = hist.Recommendations
		v.FromCache = hist.FromCache
		if len(v.History) > profileHistoryItems {
			v.History = v.History[:profileHistoryItems]
		}
	}

	render(w, r, http.StatusOK, views.ProfilePage(v))
}

func (h *Handler) handleRecommendationsPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.RecommendationsPage(views.RecommendationView{
		Form:   recommend.DefaultContext(),
		Notice: h.takeFlash(r),
	}))
}

// handleRecommend requests a recommendation for the situation described in the form.
func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc, err := recommend.ParseContext(
		r.FormValue("mood"),
		r.FormValue("activity"),
		r.FormValue("primary_climate"),
		r.FormValue("temperature"),
		r.FormValue("humidity"),
	)
	if err != nil {
		render(w, r, http.StatusUnprocessableEntity, views.RecommendationsPage(views.RecommendationView{
			Form:   rc,
			Notice: errorNotice(ctx, "InvalidContext"),
		}))
		return
	}
	if err := recommend.ValidateContext(rc); err != nil {
		render(w, r, http.StatusUnprocessableEntity, views.RecommendationsPage(views.RecommendationView{
			Form:   rc,
			Notice: errorNotice(ctx, "ContextIncomplete"),
		}))
		return
	}
	h.recommend(w, r, rc, &rc)
}

// handleQuickRecommend requests a recommendation from the profile alone.
func (h *Handler) handleQuickRecommend(w http.ResponseWriter, r *http.Request) {
	h.recommend(w, r, recommend.DefaultContext(), nil)
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request, form model.RecommendationContext, rc *model.RecommendationContext) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)
	client := h.userClient(user)
	fetcher := recommend.NewFetcher(client, h.historyService(browserIDFromContext(ctx), client))

	v := views.RecommendationView{Form: form}
	status := http.StatusOK
	rec, err := fetcher.Fetch(ctx, user.EffectiveID(), rc)
	if err != nil {
		slog.Error("recommendation failed", "user_id", user.EffectiveID(), "error", err)
		v.Notice = failureNotice(ctx, recommend.Classify(err))
		status = http.StatusBadGateway
		if errors.Is(err, recommend.ErrNotAvailable) {
			status = http.StatusOK
		}
	} else {
		v.Result = &rec
		v.Notice = successNotice(ctx, "RecFound")
	}
	render(w, r, status, views.RecommendationsPage(v))
}

func failureNotice(ctx context.Context, f recommend.Failure) views.Notice {
	switch f {
	case recommend.FailureNotAvailable:
		return views.InfoNotice(appI18n.T(ctx, "RecNotAvailable"))
	case recommend.FailureIncompleteProfile:
		return errorNotice(ctx, "RecIncompleteProfile")
	case recommend.FailureServiceUnavailable:
		return errorNotice(ctx, "RecServiceUnavailable")
	case recommend.FailureNetwork:
		return errorNotice(ctx, "NetworkError")
	}
	return errorNotice(ctx, "RecGeneric")
}

func (h *Handler) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)
	svc := h.historyService(browserIDFromContext(ctx), h.userClient(user))

	v := views.HistoryView{Notice: h.takeFlash(r)}
	res, err := svc.Load(ctx, user.EffectiveID())
	if err != nil {
		slog.Error("failed to load recommendation history", "user_id", user.EffectiveID(), "error", err)
		v.Notice = errorNotice(ctx, "HistoryLoadFailed")
		v.Recommendations = svc.Cached(user.EffectiveID())
	} else {
		v.Recommendations = res.Recommendations
		v.FromCache = res.FromCache
		v.LastUpdated = res.LastUpdated
	}
	render(w, r, http.StatusOK, views.HistoryPage(v))
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, true)
}

func (h *Handler) handleUnlike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, false)
}

func (h *Handler) toggleLike(w http.ResponseWriter, r *http.Request, like bool) {
	ctx := r.Context()
	recID, err := strconv.ParseInt(chi.URLParam(r, "recID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid recommendation ID", http.StatusBadRequest)
		return
	}
	client := h.userClient(model.UserFromContext(ctx))

	msgID := "Liked"
	if like {
		err = client.LikeRecommendation(ctx, recID)
	} else {
		msgID = "Unliked"
		err = client.UnlikeRecommendation(ctx, recID)
	}
	if err != nil {
		slog.Error("failed to update like", "recommendation_id", recID, "like", like, "error", err)
		h.redirect(w, r, "/history", errorNotice(ctx, "LikeFailed"))
		return
	}
	h.redirect(w, r, "/history", successNotice(ctx, msgID))
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	fb := model.PerfumeFeedback{
		UserID:      user.EffectiveID(),
		PerfumeName: strings.TrimSpace(r.FormValue("perfume_name")),
		Notes:       strings.TrimSpace(r.FormValue("notes")),
	}
	if fb.PerfumeName == "" {
		http.Error(w, "perfume name required", http.StatusBadRequest)
		return
	}
	if s := r.FormValue("recommendation_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, "invalid recommendation ID", http.StatusBadRequest)
			return
		}
		fb.RecommendationID = &id
	}
	if s := r.FormValue("rating"); s != "" {
		rating, err := strconv.Atoi(s)
		if err != nil || rating < 1 || rating > 5 {
			http.Error(w, "invalid rating", http.StatusBadRequest)
			return
		}
		fb.Rating = &rating
	}

	if err := h.userClient(user).SubmitPerfumeFeedback(ctx, fb); err != nil {
		slog.Error("failed to send feedback", "user_id", fb.UserID, "perfume", fb.PerfumeName, "error", err)
		h.redirect(w, r, "/history", errorNotice(ctx, "FeedbackFailed"))
		return
	}
	h.redirect(w, r, "/history", successNotice(ctx, "FeedbackSent"))
}
