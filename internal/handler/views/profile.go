package views

import (
	"github.com/a-h/templ"

	"github.com/scentmatch/scentmatch/internal/model"
)

// ProfileView is the data of the profile page.
type ProfileView struct {
	Profile   *model.Profile
	Latest    *model.Recommendation
	History   []model.Recommendation
	FromCache bool
	Notice    Notice
}

// ProfilePage renders the user's profile with the latest recommendation.
func ProfilePage(v ProfileView) templ.Component {
	return layout("ProfileTitle", v.Notice, func(h *html) {
		h.raw(`<h1>`)
		h.t("ProfileTitle")
		h.raw(`</h1>`)

		if v.Profile == nil || v.Profile.IsEmpty() {
			h.raw(`<div class="card"><p>`)
			h.t("NoProfile")
			h.rawf(`</p><a href="%s">`, h.url("/questionnaire"))
			h.t("StartQuestionnaire")
			h.raw(`</a></div>`)
		} else {
			h.raw(`<div class="card"><dl>`)
			for _, f := range v.Profile.DisplayFields() {
				h.raw(`<dt>`)
				h.text(f.Label)
				h.raw(`</dt><dd>`)
				h.text(f.Value)
				h.raw(`</dd>`)
			}
			h.rawf(`</dl><a href="%s">`, h.url("/questionnaire/edit"))
			h.t("UpdateProfile")
			h.raw(`</a></div>`)
		}

		h.raw(`<h2>`)
		h.t("LatestRecommendation")
		h.raw(`</h2>`)
		if v.Latest != nil {
			recommendationCard(h, *v.Latest, false)
		} else {
			h.raw(`<p class="muted">`)
			h.t("NoRecommendationYet")
			h.raw(`</p>`)
		}
		h.rawf(`<form method="post" action="%s">`, h.url("/recommendations/quick"))
		h.csrf()
		h.raw(`<button type="submit">`)
		h.t("GetRecommendation")
		h.raw(`</button></form>`)

		if len(v.History) > 0 {
			h.raw(`<h2>`)
			h.t("RecentRecommendations")
			h.raw(`</h2>`)
			if v.FromCache {
				h.raw(`<p class="muted">`)
				h.t("FromCache")
				h.raw(`</p>`)
			}
			h.raw(`<ul>`)
			for _, r := range v.History {
				h.raw(`<li>`)
				h.text(r.Name)
				h.raw(`</li>`)
			}
			h.rawf(`</ul><a href="%s">`, h.url("/history"))
			h.t("ViewHistory")
			h.raw(`</a>`)
		}
	})
}
