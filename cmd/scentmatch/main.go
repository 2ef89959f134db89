package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scentmatch/scentmatch/internal/api"
	"github.com/scentmatch/scentmatch/internal/handler"
	appI18n "github.com/scentmatch/scentmatch/internal/i18n"
	"github.com/scentmatch/scentmatch/internal/model"
	"github.com/scentmatch/scentmatch/internal/recommend"
	"github.com/scentmatch/scentmatch/internal/store"
)

const sessionCleanupInterval = time.Hour

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scentmatch",
		Short: "Perfume questionnaire and recommendation client",
	}

	serve := serveCmd()
	root.AddCommand(
		serve,
		loginCmd(),
		logoutCmd(),
		questionnaireCmd(),
		recommendCmd(),
		historyCmd(),
	)

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `scentmatch --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the flags every command shares.
func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-url", api.DefaultBaseURL, "Perfume backend base URL")
	f.String("db", "scentmatch.db", "SQLite path for local state")
	f.Duration("http-timeout", 0, "Backend request timeout (0 = none)")
	f.StringP("lang", "l", "en", "Language for messages (en, ru)")
	f.Int("history-limit", recommend.DefaultHistoryLimit, "Maximum recommendations kept in history")
	f.Duration("cache-ttl", recommend.DefaultCacheTTL, "Age after which the cached history is not served")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /scent)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SCENTMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("scentmatch")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/scentmatch")
	v.AddConfigPath("/etc/scentmatch")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// normalizeBasePath returns "" or a path with a leading and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	client := api.New(v.GetString("api-url"), v.GetDuration("http-timeout"))
	basePath := normalizeBasePath(v.GetString("base-path"))

	uiCfg := model.UIConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		HistoryLimit:  v.GetInt("history-limit"),
		CacheTTL:      v.GetDuration("cache-ttl"),
	}

	h, err := handler.New(db, client, uiCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := h.CleanupExpired(); err != nil {
				slog.Error("browser session cleanup failed", "error", err)
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"api_url", client.BaseURL(),
		"lang", lang,
		"languages", appI18n.Languages(),
		"history_limit", uiCfg.HistoryLimit,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}
