package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/zulandar/dailyread/internal/config"
	"github.com/zulandar/dailyread/internal/dailyread"
	"github.com/zulandar/dailyread/internal/datastore"
	"github.com/zulandar/dailyread/internal/db"
	"github.com/zulandar/dailyread/internal/notify"
	"github.com/zulandar/dailyread/internal/notify/discord"
	"github.com/zulandar/dailyread/internal/notify/slack"
	"github.com/zulandar/dailyread/internal/orderportal"
	"github.com/zulandar/dailyread/internal/project"
	"github.com/zulandar/dailyread/internal/report"
	"github.com/zulandar/dailyread/internal/sources"
	"gorm.io/gorm"
)

// app holds everything a command needs, built once from the config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	history  *db.History
	priority *project.Priority
	store    *datastore.Store
	closers  []io.Closer
}

// newApp loads the config, sets up logging and opens the history database
// and the project record store.
func newApp(configPath string, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg}
	logger, closer, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	if a.priority, err = project.NewPriority(cfg.StatusPriority); err != nil {
		a.Close()
		return nil, fmt.Errorf("status priority: %w", err)
	}

	if a.db, err = db.Connect(cfg.DB); err != nil {
		a.Close()
		return nil, err
	}
	if sqlDB, err := a.db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB)
	}
	if err := db.AutoMigrate(a.db); err != nil {
		a.Close()
		return nil, err
	}
	a.history = db.NewHistory(a.db)

	a.store, err = datastore.Open(cfg.Data.Location, datastore.Options{
		Backend:     cfg.Data.Backend,
		DB:          a.db,
		AuthorName:  cfg.Data.AuthorName,
		AuthorEmail: cfg.Data.AuthorEmail,
		Priority:    a.priority,
		Logger:      logger.With("component", "datastore"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the log file and database handle.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}

// runner wires the sources, order portal, renderer and notifiers.
func (a *app) runner() (*dailyread.Runner, error) {
	client := &http.Client{Timeout: a.cfg.OrderPortal.Timeout}

	master, err := sources.NewMaster(a.cfg, client, a.priority, a.logger.With("component", "sources"))
	if err != nil {
		return nil, err
	}
	portal, err := orderportal.NewClient(orderportal.ClientOptions{
		URL:        a.cfg.OrderPortal.URL,
		APIKey:     a.cfg.OrderPortal.APIKey,
		HTTPClient: client,
		Logger:     a.logger.With("component", "orderportal"),
	})
	if err != nil {
		return nil, err
	}
	renderer, err := report.NewHTMLRenderer(a.priority)
	if err != nil {
		return nil, err
	}
	users, err := config.ReadUserList(a.cfg.UsersListLocation)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(a.cfg.Notify, a.logger)
	if err != nil {
		return nil, err
	}

	return &dailyread.Runner{
		Store:   a.store,
		Sources: master,
		Portal:  portal,
		Reconciler: orderportal.NewReconciler(orderportal.ReconcilerOptions{
			ClosedBeforeInDays: &a.cfg.Reconcile.ClosedBeforeInDays,
			PaddingDays:        &a.cfg.Reconcile.PaddingDays,
			Priority:           a.priority,
			Logger:             a.logger.With("component", "reconcile"),
		}),
		Renderer:   renderer,
		Priority:   a.priority,
		ReportsDir: a.cfg.ReportsLocation,
		UserList:   users,
		History:    a.history,
		Notifier:   notifier,
		Logger:     a.logger,
	}, nil
}

// buildNotifier returns the configured chat notifiers, or nil when none is
// configured.
func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	var multi notify.Multi
	if cfg.SlackWebhookURL != "" {
		n, err := slack.New(slack.Opts{WebhookURL: cfg.SlackWebhookURL})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if cfg.DiscordBotToken != "" || cfg.DiscordChannelID != "" {
		n, err := discord.New(discord.Opts{
			BotToken:  cfg.DiscordBotToken,
			ChannelID: cfg.DiscordChannelID,
			Logger:    logger.With("component", "discord"),
		})
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	if len(multi) == 0 {
		return nil, nil
	}
	return multi, nil
}

// newLogger builds a text slog logger at the configured level, writing to
// the log file when one is set and to stderr otherwise.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	w := stderr
	var closer io.Closer
	if cfg.Location != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Location), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		f, err := os.OpenFile(cfg.Location, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		w, closer = f, f
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}))
	return logger, closer, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
