package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scentmatch/scentmatch/internal/api"
	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/recommend"
	"github.com/scentmatch/scentmatch/internal/store"
)

// cliSession is the browser session id under which terminal commands keep state.
const cliSession = "cli"

var errNotLoggedIn = errors.New("not logged in: run `scentmatch login` first")

// cliEnv is what every terminal command opens.
type cliEnv struct {
	v       *viper.Viper
	db      *store.Store
	client  *api.Client
	session *store.SessionStore
}

func openCLI(cmd *cobra.Command) (*cliEnv, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &cliEnv{
		v:       v,
		db:      db,
		client:  api.New(v.GetString("api-url"), v.GetDuration("http-timeout")),
		session: store.NewSessionStore(db.Scope(store.SessionNamespace(cliSession))),
	}, nil
}

func (e *cliEnv) Close() error { return e.db.Close() }

// user returns the logged-in user and a client carrying its token.
func (e *cliEnv) user() (*model.SessionUser, *api.Client, error) {
	u, err := e.session.LoadUser()
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	if u == nil {
		return nil, nil, errNotLoggedIn
	}
	return u, e.client.WithToken(u.Token), nil
}

func (e *cliEnv) historyService(c *api.Client) *recommend.HistoryService {
	cache := store.NewHistoryCache(e.db.Scope(store.HistoryNamespace(cliSession)))
	return recommend.NewHistoryService(c, cache, e.v.GetInt("history-limit"), e.v.GetDuration("cache-ttl"))
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the perfume backend",
		RunE:  runLogin,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("username", "u", "", "Username (prompted when empty)")
	f.StringP("password", "p", "", "Password (or set SCENTMATCH_PASSWORD; prompted when empty)")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	env, err := openCLI(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	username := env.v.GetString("username")
	if username == "" {
		if username, err = prompt(in, out, appI18n.T(cmd.Context(), "Username")+": "); err != nil {
			return err
		}
	}
	password := env.v.GetString("password")
	if password == "" {
		if password, err = prompt(in, out, appI18n.T(cmd.Context(), "Password")+": "); err != nil {
			return err
		}
	}

	user, err := env.client.Login(cmd.Context(), username, password)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			return errors.New(appI18n.T(cmd.Context(), "LoginError"))
		}
		return fmt.Errorf("login: %w", err)
	}
	if err := env.session.SaveUser(user); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(out, "Logged in as %s (user %d)\n", user.Username, user.EffectiveID())
	return nil
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored login",
		RunE:  runLogout,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("clear-history", false, "Also drop the locally cached recommendation history")
	return cmd
}

func runLogout(cmd *cobra.Command, _ []string) error {
	env, err := openCLI(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.v.GetBool("clear-history") {
		if user, client, err := env.user(); err == nil {
			env.historyService(client).Forget(user.EffectiveID())
		}
	}
	if err := env.session.ClearUser(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(cmd.Context(), "LoggedOut"))
	return nil
}

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Request a perfume recommendation",
		Long: "Request a perfume recommendation. Without --mood, --activity and --climate the\n" +
			"recommendation is based on the profile alone.",
		RunE: runRecommend,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.String("mood", "", "Current mood ("+strings.Join(recommend.Moods, ", ")+")")
	f.String("activity", "", "Activity ("+strings.Join(recommend.Activities, ", ")+")")
	f.String("climate", "", "Primary climate ("+strings.Join(recommend.Climates, ", ")+")")
	f.String("temperature", "", "Temperature in °C")
	f.String("humidity", "", "Humidity in percent")
	return cmd
}

func runRecommend(cmd *cobra.Command, _ []string) error {
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

	var rc *model.RecommendationContext
	mood, activity, climate := env.v.GetString("mood"), env.v.GetString("activity"), env.v.GetString("climate")
	if mood != "" || activity != "" || climate != "" {
		parsed, err := recommend.ParseContext(mood, activity, climate, env.v.GetString("temperature"), env.v.GetString("humidity"))
		if err != nil {
			return fmt.Errorf("%s: %w", appI18n.T(ctx, "InvalidContext"), err)
		}
		if err := recommend.ValidateContext(parsed); err != nil {
			return errors.New(appI18n.T(ctx, "ContextIncomplete"))
		}
		rc = &parsed
	}

	fetcher := recommend.NewFetcher(client, env.historyService(client))
	rec, err := fetcher.Fetch(ctx, user.EffectiveID(), rc)
	if err != nil {
		return errors.New(failureMessage(ctx, recommend.Classify(err)))
	}
	printRecommendation(ctx, cmd.OutOrStdout(), rec)
	return nil
}

func failureMessage(ctx context.Context, f recommend.Failure) string {
	switch f {
	case recommend.FailureNotAvailable:
		return appI18n.T(ctx, "RecNotAvailable")
	case recommend.FailureIncompleteProfile:
		return appI18n.T(ctx, "RecIncompleteProfile")
	case recommend.FailureServiceUnavailable:
		return appI18n.T(ctx, "RecServiceUnavailable")
	case recommend.FailureNetwork:
		return appI18n.T(ctx, "NetworkError")
	}
	return appI18n.T(ctx, "RecGeneric")
}

func printRecommendation(ctx context.Context, w io.Writer, rec model.Recommendation) {
	fmt.Fprintf(w, "%s: %s\n", appI18n.T(ctx, "YourMatch"), rec.Name)
	if rec.Reason != "" {
		fmt.Fprintf(w, "  %s\n", rec.Reason)
	}
	for _, m := range []struct {
		id string
		v  *float64
	}{
		{"Price", rec.Price},
		{"UtilityScore", rec.UtilityScore},
		{"Longevity", rec.PredictedLongevity},
		{"Projection", rec.PredictedProjection},
		{"Sillage", rec.PredictedSillage},
	} {
		if m.v != nil {
			fmt.Fprintf(w, "  %s: %g\n", appI18n.T(ctx, m.id), *m.v)
		}
	}
	if len(rec.Alternates) > 0 {
		fmt.Fprintf(w, "  %s\n", appI18n.T(ctx, "AlsoTry"))
		for _, a := range rec.Alternates {
			fmt.Fprintf(w, "    - %s\n", a.Name)
		}
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the recommendation history as JSON",
		RunE:  runHistory,
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	env, err := openCLI(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	user, client, err := env.user()
	if err != nil {
		return err
	}

	res, err := env.historyService(client).Load(cmd.Context(), user.EffectiveID())
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	export := model.HistoryExport{
		UserID:          user.EffectiveID(),
		Username:        user.Username,
		ExportedAt:      time.Now().UTC(),
		FromCache:       res.FromCache,
		Recommendations: res.Recommendations,
	}
	if export.Recommendations == nil {
		export.Recommendations = []model.Recommendation{}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := env.v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

// prompt writes label and reads one trimmed line.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
