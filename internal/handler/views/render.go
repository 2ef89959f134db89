// Package views renders the web UI as templ components.
package views

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
)

// NoticeKind is the severity of a notice.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a user-visible message shown above the page content.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Empty reports whether there is nothing to show.
func (n Notice) Empty() bool { return n.Text == "" }

// ErrorNotice builds an error notice.
func ErrorNotice(text string) Notice { return Notice{Kind: NoticeError, Text: text} }

// InfoNotice builds an informational notice.
func InfoNotice(text string) Notice { return Notice{Kind: NoticeInfo, Text: text} }

// SuccessNotice builds a success notice.
func SuccessNotice(text string) Notice { return Notice{Kind: NoticeSuccess, Text: text} }

// html writes markup and remembers the first write error.
type html struct {
	ctx context.Context
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *html) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func (h *html) text(s string) { h.raw(templ.EscapeString(s)) }

func (h *html) t(msgID string) { h.text(appI18n.T(h.ctx, msgID)) }

func (h *html) td(msgID string, data map[string]any) { h.text(appI18n.Td(h.ctx, msgID, data)) }

func (h *html) tp(msgID string, count int) { h.text(appI18n.Tp(h.ctx, msgID, count)) }

func (h *html) attr(s string) string { return templ.EscapeString(s) }

// url returns path prefixed with the deployment base path, escaped for an attribute.
func (h *html) url(path string) string {
	return templ.EscapeString(model.BasePathFromContext(h.ctx) + path)
}

func (h *html) csrf() {
	h.rawf(`<input type="hidden" name="csrf_token" value="%s">`, h.attr(model.CSRFTokenFromContext(h.ctx)))
}

func (h *html) notice(n Notice) {
	if n.Empty() {
		return
	}
	h.rawf(`<div class="notice notice-%s" role="status">`, h.attr(string(n.Kind)))
	h.text(n.Text)
	h.raw(`</div>`)
}

func component(fn func(h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{ctx: ctx, w: w}
		fn(h)
		return h.err
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// layout wraps body in the page chrome with navigation for the logged-in user.
func layout(titleID string, notice Notice, body func(h *html)) templ.Component {
	return component(func(h *html) {
		h.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		h.t(titleID)
		h.raw(` | `)
		h.t("AppTitle")
		h.raw(`</title><style>` + stylesheet + `</style></head><body>`)

		h.raw(`<header><a class="brand" href="` + h.url("/") + `">`)
		h.t("AppTitle")
		h.raw(`</a><nav>`)
		if u := model.UserFromContext(h.ctx); u != nil {
			for _, item := range []struct{ path, id string }{
				{"/profile", "NavProfile"},
				{"/questionnaire", "NavQuestionnaire"},
				{"/recommendations", "NavRecommendations"},
				{"/history", "NavHistory"},
			} {
				h.rawf(`<a href="%s">`, h.url(item.path))
				h.t(item.id)
				h.raw(`</a>`)
			}
			h.rawf(`<form method="post" action="%s" class="inline">`, h.url("/logout"))
			h.csrf()
			h.raw(`<button type="submit" class="link">`)
			h.td("Logout", map[string]any{"Username": u.Username})
			h.raw(`</button></form>`)
		} else {
			h.rawf(`<a href="%s">`, h.url("/login"))
			h.t("NavLogin")
			h.rawf(`</a><a href="%s">`, h.url("/register"))
			h.t("NavRegister")
			h.raw(`</a>`)
		}
		h.raw(`</nav></header><main>`)
		h.notice(notice)
		body(h)
		h.raw(`</main></body></html>`)
	})
}

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;color:#222}
header{display:flex;justify-content:space-between;align-items:center;padding:.8rem 1.5rem;background:#5b2a86;color:#fff}
header a,header button.link{color:#fff;margin-left:1rem;text-decoration:none;background:none;border:0;font:inherit;cursor:pointer}
.brand{font-weight:bold;margin-left:0}
main{max-width:48rem;margin:1.5rem auto;padding:0 1rem}
.notice{padding:.6rem 1rem;border-radius:.3rem;margin-bottom:1rem}
.notice-error{background:#fde2e2}.notice-success{background:#e1f5e1}.notice-info{background:#e5eefc}
.card{border:1px solid #ddd;border-radius:.4rem;padding:1rem;margin-bottom:1rem}
.muted{color:#777}.inline{display:inline}
label{display:block;margin:.5rem 0 .2rem}
fieldset{border:0;padding:0;margin:0 0 1rem}
.actions{display:flex;gap:.5rem;margin-top:1rem}
.chip{display:inline-block;padding:.2rem .6rem;border:1px solid #aaa;border-radius:1rem;margin:.15rem;background:#fff;cursor:pointer}
.chip.selected{background:#5b2a86;color:#fff}`
