// Package questionnaire implements the multi-topic questionnaire: catalog loading,
// answer state, topic navigation and the submission of answers into a profile.
package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/model"
)

// QuestionSource returns the flat question catalog.
type QuestionSource interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
}

// CatalogError reports why the catalog could not be loaded.
type CatalogError struct {
	Message   string // backend message, if any
	Malformed bool   // payload was not a question array
	Err       error
}

func (e *CatalogError) Error() string {
	switch {
	case e.Malformed:
		return "load catalog: malformed payload: " + e.Err.Error()
	case e.Message != "":
		return "load catalog: " + e.Message
	}
	return fmt.Sprintf("load catalog: %v", e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Loader fetches the catalog and groups it by topic. Concurrent loads share one
// backend call; nothing is cached past it.
type Loader struct {
	src   QuestionSource
	group singleflight.Group
}

// NewLoader creates a loader over src.
func NewLoader(src QuestionSource) *Loader {
	return &Loader{src: src}
}

// LoadCatalog returns the catalog grouped by topic. The shared backend call is not
// bound to any one caller; each caller stops waiting when its own ctx is done.
func (l *Loader) LoadCatalog(ctx context.Context) ([]model.TopicGroup, error) {
	ch := l.group.DoChan("catalog", func() (any, error) {
		return l.src.ListQuestions(context.WithoutCancel(ctx))
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &CatalogError{Err: ctx.Err()}
	}
	v, err := res.Val, res.Err
	if err != nil {
		cerr := &CatalogError{Err: err, Message: api.MessageOf(err)}
		if errors.Is(err, api.ErrMalformedPayload) {
			cerr.Malformed = true
			slog.Warn("question catalog payload is malformed", "error", err)
		}
		return nil, cerr
	}
	return GroupByTopic(v.([]model.Question)), nil
}

// GroupByTopic groups questions by topic in first-seen order, keeping source order
// inside each topic. Questions without a topic land in model.DefaultTopic.
func GroupByTopic(questions []model.Question) []model.TopicGroup {
	var groups []model.TopicGroup
	index := make(map[string]int)
	for _, q := range questions {
		topic := strings.TrimSpace(q.Topic)
		if topic == "" {
			topic = model.DefaultTopic
		}
		q.Topic = topic
		i, ok := index[topic]
		if !ok {
			i = len(groups)
			index[topic] = i
			groups = append(groups, model.TopicGroup{Topic: topic})
		}
		groups[i].Questions = append(groups[i].Questions, q)
	}
	return groups
}

// Questions flattens a catalog back into presentation order.
func Questions(catalog []model.TopicGroup) []model.Question {
	var out []model.Question
	for _, g := range catalog {
		out = append(out, g.Questions...)
	}
	return out
}

// FindQuestion looks a question up by id.
func FindQuestion(catalog []model.TopicGroup, id string) (model.Question, bool) {
	for _, g := range catalog {
		for _, q := range g.Questions {
			if q.ID == id {
				return q, true
			}
		}
	}
	return model.Question{}, false
}
