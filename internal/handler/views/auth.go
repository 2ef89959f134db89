package views

import (
	"github.com/a-h/templ"

	"github.com/scentmatch/scentmatch/internal/model"
)

// LoginPage renders the login form.
func LoginPage(notice Notice, username string) templ.Component {
	return layout("LoginTitle", notice, func(h *html) {
		h.raw(`<h1>`)
		h.t("LoginTitle")
		h.rawf(`</h1><form method="post" action="%s" class="card">`, h.url("/login"))
		h.csrf()
		h.raw(`<label for="username">`)
		h.t("Username")
		h.rawf(`</label><input id="username" name="username" required value="%s">`, h.attr(username))
		h.raw(`<label for="password">`)
		h.t("Password")
		h.raw(`</label><input id="password" name="password" type="password" required>`)
		h.raw(`<div class="actions"><button type="submit">`)
		h.t("LoginButton")
		h.rawf(`</button><a href="%s">`, h.url("/register"))
		h.t("NoAccount")
		h.raw(`</a></div></form>`)
	})
}

// RegisterPage renders the registration form, keeping what was typed except passwords.
func RegisterPage(notice Notice, form model.Registration) templ.Component {
	return layout("RegisterTitle", notice, func(h *html) {
		h.raw(`<h1>`)
		h.t("RegisterTitle")
		h.rawf(`</h1><form method="post" action="%s" class="card">`, h.url("/register"))
		h.csrf()
		for _, f := range []struct {
			name, labelID, value, typ string
			required                  bool
		}{
			{"username", "Username", form.Username, "text", true},
			{"email", "Email", form.Email, "email", true},
			{"first_name", "FirstName", form.FirstName, "text", false},
			{"last_name", "LastName", form.LastName, "text", false},
			{"password", "Password", "", "password", true},
			{"confirm_password", "ConfirmPassword", "", "password", true},
		} {
			h.rawf(`<label for="%s">`, f.name)
			h.t(f.labelID)
			h.rawf(`</label><input id="%s" name="%s" type="%s" value="%s"`, f.name, f.name, f.typ, h.attr(f.value))
			if f.required {
				h.raw(` required`)
			}
			h.raw(`>`)
		}
		h.raw(`<div class="actions"><button type="submit">`)
		h.t("RegisterButton")
		h.rawf(`</button><a href="%s">`, h.url("/login"))
		h.t("HaveAccount")
		h.raw(`</a></div></form>`)
	})
}
