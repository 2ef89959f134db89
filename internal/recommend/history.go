package recommend

import (
	"regexp"
	"strings"

	"github.com/scentmatch/scentmatch/internal/model"
)

// DefaultHistoryLimit bounds a history when no limit is configured.
const DefaultHistoryLimit = 10

var testPerfumePattern = regexp.MustCompile(`(?i)^test perfume \d+$`)

// IsValid reports whether a display name denotes a real recommendation rather than
// an empty result or a backend placeholder.
func IsValid(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, model.UnknownPerfume) {
		return false
	}
	return !testPerfumePattern.MatchString(name)
}

// History is a capped, newest-first list of recommendations with unique names.
type History struct {
	limit int
	items []model.Recommendation
}

// NewHistory creates an empty history. A non-positive limit uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// HistoryFrom builds a history from an existing newest-first list, dropping invalid
// and duplicate entries.
func HistoryFrom(recs []model.Recommendation, limit int) *History {
	h := NewHistory(limit)
	h.items = Merge(recs, nil, h.limit)
	return h
}

// Add puts rec at the front. Invalid names and names already present are refused.
func (h *History) Add(rec model.Recommendation) bool {
	if !IsValid(rec.Name) || h.contains(rec.Name) {
		return false
	}
	h.items = append([]model.Recommendation{rec}, h.items...)
	if len(h.items) > h.limit {
		h.items = h.items[:h.limit]
	}
	return true
}

func (h *History) contains(name string) bool {
	for _, r := range h.items {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Items returns a copy of the entries, newest first.
func (h *History) Items() []model.Recommendation {
	return append([]model.Recommendation(nil), h.items...)
}

func (h *History) Len() int { return len(h.items) }

// Merge combines server and local histories. Server entries come first; a local
// entry is kept only when its name is not already present. Invalid entries are
// dropped and the result holds at most limit entries (limit <= 0 means no cap).
func Merge(server, local []model.Recommendation, limit int) []model.Recommendation {
	seen := make(map[string]bool, len(server)+len(local))
	out := make([]model.Recommendation, 0, len(server)+len(local))
	for _, src := range [][]model.Recommendation{server, local} {
		for _, r := range src {
			if !IsValid(r.Name) || seen[r.Name] {
				continue
			}
			seen[r.Name] = true
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
