package model

import "time"

// HistoryExport is the top-level JSON structure for recommendation history export.
type HistoryExport struct {
	UserID          int64            `json:"user_id"`
	Username        string           `json:"username"`
	ExportedAt      time.Time        `json:"exported_at"`
	FromCache       bool             `json:"from_cache"`
	Recommendations []Recommendation `json:"recommendations"`
}
