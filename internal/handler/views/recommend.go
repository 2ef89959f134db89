package views

import (
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/recommend"
)

// RecommendationView is the data of the recommendation page.
type RecommendationView struct {
	Form   model.RecommendationContext
	Result *model.Recommendation
	Notice Notice
}

// RecommendationsPage renders the context form and, when present, its result.
func RecommendationsPage(v RecommendationView) templ.Component {
	return layout("RecommendationsTitle", v.Notice, func(h *html) {
		h.raw(`<h1>`)
		h.t("RecommendationsTitle")
		h.raw(`</h1><p class="muted">`)
		h.t("RecommendationsIntro")
		h.rawf(`</p><form method="post" action="%s" class="card">`, h.url("/recommendations"))
		h.csrf()
		selectField(h, "mood", "Mood", "SelectMood", recommend.Moods, v.Form.Mood)
		selectField(h, "activity", "Activity", "SelectActivity", recommend.Activities, v.Form.Activity)
		selectField(h, "primary_climate", "Climate", "SelectClimate", recommend.Climates, v.Form.PrimaryClimate)
		rangeField(h, "temperature", "Temperature", v.Form.Temperature, recommend.DefaultTemperature, recommend.MinTemperature, recommend.MaxTemperature, 1)
		rangeField(h, "humidity", "Humidity", v.Form.Humidity, recommend.DefaultHumidity, recommend.MinHumidity, recommend.MaxHumidity, 5)
		h.raw(`<div class="actions"><button type="submit">`)
		h.t("GetRecommendation")
		h.raw(`</button></div></form>`)

		if v.Result != nil {
			h.raw(`<h2>`)
			h.t("YourMatch")
			h.raw(`</h2>`)
			recommendationCard(h, *v.Result, true)
		}
	})
}

func selectField(h *html, name, labelID, placeholderID string, options []string, selected string) {
	h.rawf(`<label for="%s">`, name)
	h.t(labelID)
	h.rawf(`</label><select id="%s" name="%s"><option value="">`, name, name)
	h.t(placeholderID)
	h.raw(`</option>`)
	for _, o := range options {
		sel := ""
		if o == selected {
			sel = " selected"
		}
		h.rawf(`<option value="%s"%s>`, h.attr(o), sel)
		h.text(o)
		h.raw(`</option>`)
	}
	h.raw(`</select>`)
}

func rangeField(h *html, name, labelID string, value *float64, def, min, max, step float64) {
	v := def
	if value != nil {
		v = *value
	}
	h.rawf(`<label for="%s">`, name)
	h.t(labelID)
	h.rawf(`</label><input id="%s" name="%s" type="range" min="%s" max="%s" step="%s" value="%s">`,
		name, name, formatFloat(min), formatFloat(max), formatFloat(step), formatFloat(v))
}

func recommendationCard(h *html, r model.Recommendation, withFeedback bool) {
	h.raw(`<div class="card"><h3>`)
	h.text(r.Name)
	h.raw(`</h3>`)
	if r.ImageURL != "" {
		h.rawf(`<img src="%s" alt="%s" width="160">`, h.attr(r.ImageURL), h.attr(r.Name))
	}
	if r.Reason != "" {
		h.raw(`<p>`)
		h.text(r.Reason)
		h.raw(`</p>`)
	}
	metric(h, "Price", r.Price)
	metric(h, "UtilityScore", r.UtilityScore)
	metric(h, "Longevity", r.PredictedLongevity)
	metric(h, "Projection", r.PredictedProjection)
	metric(h, "Sillage", r.PredictedSillage)
	if r.CreatedAt != nil {
		h.raw(`<p class="muted">`)
		h.text(r.CreatedAt.Format(time.DateOnly))
		h.raw(`</p>`)
	}
	if len(r.Alternates) > 0 {
		h.raw(`<p>`)
		h.t("AlsoTry")
		h.raw(`</p><ul>`)
		for _, a := range r.Alternates {
			h.raw(`<li>`)
			h.text(a.Name)
			if a.Price != nil {
				h.text(" (" + formatFloat(*a.Price) + ")")
			}
			h.raw(`</li>`)
		}
		h.raw(`</ul>`)
	}
	if withFeedback && r.ID != 0 {
		id := strconv.FormatInt(r.ID, 10)
		h.rawf(`<div class="actions"><form method="post" action="%s" class="inline">`, h.url("/history/"+id+"/like"))
		h.csrf()
		h.raw(`<button type="submit">`)
		h.t("Like")
		h.rawf(`</button></form><form method="post" action="%s" class="inline">`, h.url("/history/"+id+"/unlike"))
		h.csrf()
		h.raw(`<button type="submit">`)
		h.t("Unlike")
		h.raw(`</button></form></div>`)
	}
	if withFeedback {
		feedbackForm(h, r)
	}
	h.raw(`</div>`)
}

func metric(h *html, labelID string, v *float64) {
	if v == nil {
		return
	}
	h.raw(`<span class="chip">`)
	h.t(labelID)
	h.text(": " + formatFloat(*v))
	h.raw(`</span>`)
}

func feedbackForm(h *html, r model.Recommendation) {
	h.raw(`<details><summary>`)
	h.t("LeaveFeedback")
	h.rawf(`</summary><form method="post" action="%s">`, h.url("/feedback"))
	h.csrf()
	h.rawf(`<input type="hidden" name="perfume_name" value="%s">`, h.attr(r.Name))
	if r.ID != 0 {
		h.rawf(`<input type="hidden" name="recommendation_id" value="%d">`, r.ID)
	}
	h.raw(`<label>`)
	h.t("Rating")
	h.raw(`</label><select name="rating"><option value=""></option>`)
	for i := 1; i <= 5; i++ {
		h.rawf(`<option value="%d">%d</option>`, i, i)
	}
	h.raw(`</select><label>`)
	h.t("Notes")
	h.raw(`</label><textarea name="notes" rows="3"></textarea><div class="actions"><button type="submit">`)
	h.t("SendFeedback")
	h.raw(`</button></div></form></details>`)
}

// HistoryView is the data of the history page.
type HistoryView struct {
	Recommendations []model.Recommendation
	FromCache       bool
	LastUpdated     time.Time
	Notice          Notice
}

// HistoryPage renders the recommendation history.
func HistoryPage(v HistoryView) templ.Component {
	return layout("HistoryTitle", v.Notice, func(h *html) {
		h.raw(`<h1>`)
		h.t("HistoryTitle")
		h.raw(`</h1>`)
		if v.FromCache {
			h.raw(`<p class="muted">`)
			h.td("FromCacheAt", map[string]any{"Time": v.LastUpdated.Format(time.DateTime)})
			h.raw(`</p>`)
		}
		if len(v.Recommendations) == 0 {
			h.raw(`<p class="muted">`)
			h.t("NoHistory")
			h.rawf(`</p><a href="%s">`, h.url("/recommendations"))
			h.t("GetRecommendation")
			h.raw(`</a>`)
			return
		}
		for _, r := range v.Recommendations {
			recommendationCard(h, r, true)
		}
	})
}
