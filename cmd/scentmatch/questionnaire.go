package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/questionnaire"
)

func questionnaireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questionnaire",
		Short: "Answer the questionnaire in the terminal and create a profile",
		RunE:  runQuestionnaire,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("edit", false, "Prefill answers from the current profile and update it")
	return cmd
}

func runQuestionnaire(cmd *cobra.Command, _ []string) error {
	env, err := openCLI(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	user, client, err := env.user()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	catalog, err := questionnaire.NewLoader(client).LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", appI18n.T(ctx, "CatalogLoadFailed"), err)
	}
	quiz := questionnaire.NewSession(catalog)

	if env.v.GetBool("edit") {
		profiles, err := client.UserProfiles(ctx, user.EffectiveID())
		if err != nil {
			return fmt.Errorf("%s: %w", appI18n.T(ctx, "ProfileLoadFailed"), err)
		}
		var p model.Profile
		if len(profiles) > 0 {
			p = profiles[0]
		}
		quiz.StartEdit(p)
	}

	t := &terminal{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
	profile, err := t.run(ctx, quiz, questionnaire.NewCoordinator(client), user.EffectiveID())
	if err != nil {
		return err
	}
	printProfile(ctx, t.out, profile)
	return nil
}

// terminal walks a questionnaire session over line-based input.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// run asks every topic in order and submits on the last one.
func (t *terminal) run(ctx context.Context, quiz *questionnaire.Session, coord *questionnaire.Coordinator, userID int64) (model.Profile, error) {
	if quiz.Position().Count == 0 {
		return model.Profile{}, errors.New(appI18n.T(ctx, "NoQuestions"))
	}
	editing := quiz.Editing()
	for {
		pos := quiz.Position()
		fmt.Fprintf(t.out, "\n== %s (%s) ==\n", pos.Topic.Topic,
			appI18n.Td(ctx, "TopicProgress", map[string]any{"Index": pos.Index + 1, "Count": pos.Count}))
		for _, q := range pos.Topic.Questions {
			if err := t.ask(ctx, quiz, q); err != nil {
				return model.Profile{}, err
			}
		}
		if pos.CanSubmit {
			break
		}
		quiz.Next()
	}

	fmt.Fprintln(t.out, appI18n.Tp(ctx, "AnsweredCount", quiz.Answers().Len()))
	var profile model.Profile
	for {
		var err error
		if profile, err = quiz.Submit(ctx, coord, userID); err == nil {
			break
		}
		msg := submitMessage(ctx, err)
		fmt.Fprintln(t.out, msg)
		if !t.confirm(appI18n.T(ctx, "RetrySubmit")) {
			return model.Profile{}, errors.New(msg)
		}
	}
	msgID := "ProfileCreated"
	if editing {
		msgID = "ProfileUpdated"
	}
	fmt.Fprintln(t.out, appI18n.T(ctx, msgID))
	return profile, nil
}

// ask prompts for one question until the input is accepted. An empty line keeps
// the current answer.
func (t *terminal) ask(ctx context.Context, quiz *questionnaire.Session, q model.Question) error {
	fmt.Fprintf(t.out, "\n%s\n", q.Text)
	for i, c := range q.Choices {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, c)
	}
	if q.Kind == model.KindMultiSelect && q.MaxSelections > 0 {
		fmt.Fprintln(t.out, appI18n.Td(ctx, "SelectUpTo", map[string]any{"Max": q.MaxSelections}))
	}

	for {
		label := "> "
		if cur, ok := quiz.Answers().Get(q.ID); ok && !cur.IsEmpty() {
			label = "[" + cur.DisplayText() + "] > "
		}
		line, err := prompt(t.in, t.out, label)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}

		if q.Kind == model.KindMultiSelect {
			if capped := selectOptions(quiz, q, splitList(line)); capped {
				fmt.Fprintln(t.out, appI18n.Td(ctx, "SelectionCapped", map[string]any{"Max": q.MaxSelections, "Question": q.Text}))
			}
			return nil
		}
		if err := quiz.SetAnswer(q.ID, resolveChoice(q, line)); err != nil {
			fmt.Fprintln(t.out, appI18n.Td(ctx, "InvalidAnswer", map[string]any{"Question": q.Text}))
			continue
		}
		return nil
	}
}

// confirm asks a yes/no question; an empty answer means yes, end of input means no.
func (t *terminal) confirm(label string) bool {
	line, err := prompt(t.in, t.out, label)
	if err != nil {
		return false
	}
	switch strings.ToLower(line) {
	case "", "y", "yes":
		return true
	}
	return false
}

// selectOptions replaces the selection of a multi-select question in input order.
// It reports whether the cap dropped any option.
func selectOptions(quiz *questionnaire.Session, q model.Question, input []string) bool {
	if cur, ok := quiz.Answers().Get(q.ID); ok {
		for _, opt := range cur.List() {
			if _, err := quiz.ToggleOption(q.ID, opt); err != nil {
				slog.Debug("failed to clear option", "question_id", q.ID, "option", opt, "error", err)
			}
		}
	}
	var capped bool
	seen := make(map[string]bool)
	for _, in := range input {
		opt := resolveChoice(q, in)
		if seen[opt] {
			continue
		}
		seen[opt] = true
		changed, err := quiz.ToggleOption(q.ID, opt)
		if err == nil && !changed {
			capped = true
		}
	}
	return capped
}

// resolveChoice maps a 1-based choice number onto the choice text.
func resolveChoice(q model.Question, in string) string {
	if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(q.Choices) && q.Kind.IsSelect() {
		return q.Choices[n-1]
	}
	return in
}

func splitList(line string) []string {
	var out []string
	for _, p := range strings.Split(line, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func submitMessage(ctx context.Context, err error) string {
	var serr *questionnaire.SubmitError
	switch {
	case errors.Is(err, questionnaire.ErrSubmitInProgress):
		return appI18n.T(ctx, "SubmitInProgress")
	case errors.As(err, &serr) && serr.Stage == questionnaire.StageResponse:
		return appI18n.Td(ctx, "ResponseSaveFailed", map[string]any{"Question": serr.QuestionID})
	case errors.As(err, &serr) && serr.Message != "":
		return appI18n.Td(ctx, "ProfileSaveFailedMsg", map[string]any{"Message": serr.Message})
	case errors.As(err, &serr):
		return appI18n.T(ctx, "ProfileSaveFailed")
	}
	return err.Error()
}

func printProfile(ctx context.Context, w io.Writer, p model.Profile) {
	fields := p.DisplayFields()
	if len(fields) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", appI18n.T(ctx, "ProfileTitle"))
	for _, f := range fields {
		fmt.Fprintf(w, "  %s: %s\n", f.Label, f.Value)
	}
}
