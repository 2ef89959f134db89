package views

import (
	"github.com/a-h/templ"

	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/questionnaire"
)

// QuestionnaireView is the state shown on the questionnaire page.
type QuestionnaireView struct {
	Position questionnaire.Position
	Answers  map[string]model.AnswerValue
	Notice   Notice
}

// FieldName is the form field carrying the answer of a question.
func FieldName(questionID string) string { return "q_" + questionID }

// QuestionnairePage renders the current topic of the questionnaire.
func QuestionnairePage(v QuestionnaireView) templ.Component {
	title := "QuestionnaireTitle"
	if v.Position.Editing {
		title = "EditProfileTitle"
	}
	return layout(title, v.Notice, func(h *html) {
		h.raw(`<h1>`)
		h.t(title)
		h.raw(`</h1>`)
		if v.Position.Count == 0 {
			h.raw(`<p class="muted">`)
			h.t("NoQuestions")
			h.raw(`</p>`)
			return
		}

		h.raw(`<p class="muted">`)
		h.td("TopicProgress", map[string]any{"Index": v.Position.Index + 1, "Count": v.Position.Count})
		h.raw(` &middot; `)
		h.tp("AnsweredCount", len(v.Answers))
		h.raw(`</p><h2>`)
		h.text(v.Position.Topic.Topic)
		h.rawf(`</h2><form method="post" action="%s">`, h.url("/questionnaire"))
		h.csrf()
		for _, q := range v.Position.Topic.Questions {
			answer, answered := v.Answers[q.ID]
			questionField(h, q, answer, answered)
		}

		h.raw(`<div class="actions">`)
		if !v.Position.AtStart {
			actionButton(h, "prev", "Previous")
		}
		if v.Position.CanSubmit {
			label := "SubmitQuestionnaire"
			if v.Position.Editing {
				label = "SaveProfile"
			}
			actionButton(h, "submit", label)
		} else {
			actionButton(h, "next", "Next")
		}
		cancel := "ResetAnswers"
		if v.Position.Editing {
			cancel = "CancelEdit"
		}
		actionButton(h, "cancel", cancel)
		h.raw(`</div></form>`)
	})
}

func actionButton(h *html, action, labelID string) {
	h.rawf(`<button type="submit" name="action" value="%s" formnovalidate>`, action)
	h.t(labelID)
	h.raw(`</button>`)
}

func questionField(h *html, q model.Question, answer model.AnswerValue, answered bool) {
	name := h.attr(FieldName(q.ID))
	h.raw(`<fieldset><legend>`)
	if q.Code != "" {
		h.text(q.Code + ". ")
	}
	h.text(q.Text)
	h.raw(`</legend>`)

	switch q.Kind {
	case model.KindSingleSelect:
		for _, c := range q.Choices {
			checked := ""
			if answered && answer.Text() == c {
				checked = " checked"
			}
			h.rawf(`<label><input type="radio" name="%s" value="%s"%s> `, name, h.attr(c), checked)
			h.text(c)
			h.raw(`</label>`)
		}
	case model.KindMultiSelect:
		if q.MaxSelections > 0 {
			h.raw(`<p class="muted">`)
			h.td("SelectUpTo", map[string]any{"Max": q.MaxSelections})
			h.raw(`</p>`)
		}
		for _, c := range q.Choices {
			checked := ""
			if answered && answer.Contains(c) {
				checked = " checked"
			}
			h.rawf(`<label class="chip"><input type="checkbox" name="%s" value="%s"%s> `, name, h.attr(c), checked)
			h.text(c)
			h.raw(`</label>`)
		}
	case model.KindNumber:
		value := ""
		if answered {
			value = answer.DisplayText()
		}
		h.rawf(`<input type="number" name="%s" value="%s"`, name, h.attr(value))
		if q.Min != nil {
			h.rawf(` min="%s"`, formatFloat(*q.Min))
		}
		if q.Max != nil {
			h.rawf(` max="%s"`, formatFloat(*q.Max))
		}
		if q.Step > 0 {
			h.rawf(` step="%s"`, formatFloat(q.Step))
		} else {
			h.raw(` step="any"`)
		}
		h.raw(`>`)
	default:
		value := ""
		if answered {
			value = answer.DisplayText()
		}
		h.rawf(`<input type="text" name="%s" value="%s">`, name, h.attr(value))
	}
	h.raw(`</fieldset>`)
}
