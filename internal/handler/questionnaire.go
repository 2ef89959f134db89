package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scentmatch/scentmatch/internal/handler/views"
	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/questionnaire"
)

// quizFor returns the browser's questionnaire and its coordinator, loading the
// catalog on first use. A failed load is not remembered so the next request retries.
func (h *Handler) quizFor(ctx context.Context, user *model.SessionUser) (*questionnaire.Session, *questionnaire.Coordinator, views.Notice) {
	st := h.browser(browserIDFromContext(ctx))
	h.mu.Lock()
	quiz, coord := st.quiz, st.coord
	h.mu.Unlock()
	if quiz != nil {
		return quiz, coord, views.Notice{}
	}

	catalog, notice := h.loadCatalog(ctx)
	if !notice.Empty() {
		return questionnaire.NewSession(nil), nil, notice
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if st.quiz == nil {
		st.quiz = questionnaire.NewSession(catalog)
		st.coord = questionnaire.NewCoordinator(h.userClient(user))
	}
	return st.quiz, st.coord, views.Notice{}
}

func (h *Handler) loadCatalog(ctx context.Context) ([]model.TopicGroup, views.Notice) {
	catalog, err := h.loader.LoadCatalog(ctx)
	if err == nil {
		return catalog, views.Notice{}
	}
	slog.Error("failed to load questionnaire catalog", "error", err)
	var cerr *questionnaire.CatalogError
	switch {
	case errors.As(err, &cerr) && cerr.Malformed:
		return nil, errorNotice(ctx, "CatalogInvalid")
	case errors.As(err, &cerr) && cerr.Message != "":
		return nil, views.ErrorNotice(appI18n.Td(ctx, "CatalogLoadFailedMsg", map[string]any{"Message": cerr.Message}))
	}
	return nil, errorNotice(ctx, "CatalogLoadFailed")
}

func (h *Handler) renderQuestionnaire(w http.ResponseWriter, r *http.Request, status int, quiz *questionnaire.Session, notice views.Notice) {
	answers := make(map[string]model.AnswerValue)
	for _, e := range quiz.Answers().Entries() {
		answers[e.QuestionID] = e.Value
	}
	render(w, r, status, views.QuestionnairePage(views.QuestionnaireView{
		Position: quiz.Position(),
		Answers:  answers,
		Notice:   notice,
	}))
}

func (h *Handler) handleQuestionnairePage(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	quiz, _, notice := h.quizFor(r.Context(), user)
	if notice.Empty() {
		notice = h.takeFlash(r)
	}
	h.renderQuestionnaire(w, r, http.StatusOK, quiz, notice)
}

func (h *Handler) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)
	quiz, coord, notice := h.quizFor(ctx, user)
	if !notice.Empty() {
		h.renderQuestionnaire(w, r, http.StatusBadGateway, quiz, notice)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	answerNotice := applyTopicAnswers(ctx, quiz, r)

	switch r.FormValue("action") {
	case "prev":
		quiz.Previous()
		h.redirect(w, r, "/questionnaire", answerNotice)
	case "next":
		if answerNotice.Kind == views.NoticeError {
			h.redirect(w, r, "/questionnaire", answerNotice)
			return
		}
		quiz.Next()
		h.redirect(w, r, "/questionnaire", answerNotice)
	case "cancel":
		msgID := "AnswersReset"
		if quiz.Editing() {
			msgID = "EditCancelled"
		}
		quiz.Cancel()
		if msgID == "EditCancelled" {
			h.redirect(w, r, "/profile", views.InfoNotice(appI18n.T(ctx, msgID)))
			return
		}
		h.redirect(w, r, "/questionnaire", views.InfoNotice(appI18n.T(ctx, msgID)))
	case "submit":
		if answerNotice.Kind == views.NoticeError {
			h.redirect(w, r, "/questionnaire", answerNotice)
			return
		}
		h.submitQuestionnaire(w, r, quiz, coord, user)
	default:
		h.redirect(w, r, "/questionnaire", answerNotice)
	}
}

// submitQuestionnaire submits detached from the request context: a browser that
// disconnects mid-submit does not stop the response chain.
func (h *Handler) submitQuestionnaire(w http.ResponseWriter, r *http.Request, quiz *questionnaire.Session, coord *questionnaire.Coordinator, user *model.SessionUser) {
	ctx := r.Context()
	editing := quiz.Editing()

	if _, err := quiz.Submit(context.WithoutCancel(ctx), coord, user.EffectiveID()); err != nil {
		h.redirect(w, r, "/questionnaire", submitNotice(ctx, err))
		return
	}

	st := h.browser(browserIDFromContext(ctx))
	h.mu.Lock()
	if st.quiz == quiz {
		st.quiz, st.coord = nil, nil
	}
	h.mu.Unlock()

	msgID := "ProfileCreated"
	if editing {
		msgID = "ProfileUpdated"
	}
	h.redirect(w, r, "/profile", successNotice(ctx, msgID))
}

func submitNotice(ctx context.Context, err error) views.Notice {
	var serr *questionnaire.SubmitError
	switch {
	case errors.Is(err, questionnaire.ErrNotAtLastTopic):
		return errorNotice(ctx, "SubmitOnlyOnLastTopic")
	case errors.Is(err, questionnaire.ErrSubmitInProgress):
		return views.InfoNotice(appI18n.T(ctx, "SubmitInProgress"))
	case errors.As(err, &serr) && serr.Stage == questionnaire.StageResponse:
		return views.ErrorNotice(appI18n.Td(ctx, "ResponseSaveFailed", map[string]any{"Question": serr.QuestionID}))
	case errors.As(err, &serr) && serr.Message != "":
		return views.ErrorNotice(appI18n.Td(ctx, "ProfileSaveFailedMsg", map[string]any{"Message": serr.Message}))
	case errors.As(err, &serr):
		return errorNotice(ctx, "ProfileSaveFailed")
	}
	slog.Error("questionnaire submission failed", "error", err)
	return errorNotice(ctx, "GenericError")
}

// applyTopicAnswers stores the answers posted for the current topic. Blank single
// values are skipped; multi-select questions are diffed against the stored list so
// the selection cap applies in selection order.
func applyTopicAnswers(ctx context.Context, quiz *questionnaire.Session, r *http.Request) views.Notice {
	var notice views.Notice
	for _, q := range quiz.Position().Topic.Questions {
		field := views.FieldName(q.ID)
		if q.Kind == model.KindMultiSelect {
			if n := applySelection(ctx, quiz, q, r.Form[field]); !n.Empty() && notice.Empty() {
				notice = n
			}
			continue
		}
		raw := r.PostFormValue(field)
		if raw == "" {
			continue
		}
		if err := quiz.SetAnswer(q.ID, raw); err != nil {
			slog.Warn("rejected questionnaire answer", "question_id", q.ID, "error", err)
			if notice.Kind != views.NoticeError {
				notice = views.ErrorNotice(appI18n.Td(ctx, "InvalidAnswer", map[string]any{"Question": q.Text}))
			}
		}
	}
	return notice
}

func applySelection(ctx context.Context, quiz *questionnaire.Session, q model.Question, selected []string) views.Notice {
	current, _ := quiz.Answers().Get(q.ID)
	want := make(map[string]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}

	for _, opt := range current.List() {
		if !want[opt] {
			if _, err := quiz.ToggleOption(q.ID, opt); err != nil {
				slog.Warn("failed to deselect option", "question_id", q.ID, "option", opt, "error", err)
			}
		}
	}

	var capped bool
	for _, opt := range selected {
		if current.Contains(opt) {
			continue
		}
		changed, err := quiz.ToggleOption(q.ID, opt)
		if err != nil {
			slog.Warn("rejected questionnaire option", "question_id", q.ID, "option", opt, "error", err)
			continue
		}
		if !changed {
			capped = true
		}
	}
	if capped {
		return views.InfoNotice(appI18n.Td(ctx, "SelectionCapped", map[string]any{"Max": q.MaxSelections, "Question": q.Text}))
	}
	return views.Notice{}
}

// handleEditProfile opens the questionnaire in edit mode, prefilled from the
// user's current profile.
func (h *Handler) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	profiles, err := h.userClient(user).UserProfiles(ctx, user.EffectiveID())
	if err != nil {
		slog.Error("failed to load profile for editing", "user_id", user.EffectiveID(), "error", err)
		h.redirect(w, r, "/profile", errorNotice(ctx, "ProfileLoadFailed"))
		return
	}

	catalog, notice := h.loadCatalog(ctx)
	if !notice.Empty() {
		h.redirect(w, r, "/profile", notice)
		return
	}

	quiz := questionnaire.NewSession(catalog)
	if len(profiles) > 0 {
		filled := quiz.StartEdit(profiles[0])
		slog.Debug("prefilled questionnaire from profile", "user_id", user.EffectiveID(), "answers", filled)
	} else {
		quiz.StartEdit(model.Profile{})
	}

	st := h.browser(browserIDFromContext(ctx))
	h.mu.Lock()
	st.quiz = quiz
	st.coord = questionnaire.NewCoordinator(h.userClient(user))
	h.mu.Unlock()
	http.Redirect(w, r, h.path("/questionnaire"), http.StatusSeeOther)
}
