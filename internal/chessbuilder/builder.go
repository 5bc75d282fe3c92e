// Package chessbuilder wires the application from configuration.
package chessbuilder

import (
	"context"
	"fmt"

	"github.com/park285/cheese-chess-arena/internal/archive"
	"github.com/park285/cheese-chess-arena/internal/config"
	"github.com/park285/cheese-chess-arena/internal/identity"
	"github.com/park285/cheese-chess-arena/internal/msgcat"
	"github.com/park285/cheese-chess-arena/internal/notify"
	"github.com/park285/cheese-chess-arena/internal/presence"
	"github.com/park285/cheese-chess-arena/internal/session"
	"github.com/park285/cheese-chess-arena/internal/store"
	"github.com/park285/cheese-chess-arena/internal/webhook"
	"go.uber.org/zap"
)

type Deps struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Store       store.Store
	Coordinator *session.Coordinator
	Solo        *session.Solo
	Hub         *notify.Hub
	Presence    *presence.Tracker
	Identity    *identity.Provider
	// Archive is nil when DATABASE_URL is empty.
	Archive *archive.Archive
	// Webhook is nil when RESULT_WEBHOOK_URL is empty.
	Webhook *webhook.Client
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// Store (Redis optional)
	var st store.Store
	if cfg.RedisURL != "" {
		rs, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		st = rs
		logger.Info("store_ready", zap.String("backend", "redis"))
	} else {
		st = store.NewMemory()
		logger.Warn("store_ready", zap.String("backend", "memory"))
	}

	ident, err := identity.NewProvider(identity.Config{
		Secret:       []byte(cfg.AuthSecret),
		TrustHeaders: cfg.AuthTrustHeaders,
		TokenTTL:     cfg.AuthTokenTTL,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	coord := session.New(session.Options{
		Store:        st,
		Catalog:      msgs,
		Logger:       logger.Named("session"),
		ChallengeTTL: cfg.ChallengeTTL,
		HistoryLimit: cfg.HistoryLimit,
	})

	deps := &Deps{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Coordinator: coord,
		Solo:        session.NewSolo(coord, cfg.SoloTTL),
		Identity:    ident,
	}

	// Archive (DB optional)
	if cfg.DatabaseURL != "" {
		arc, err := archive.Open(ctx, cfg.DatabaseURL, logger.Named("archive"))
		if err != nil {
			deps.Close()
			return nil, err
		}
		if err := arc.Migrate(ctx); err != nil {
			_ = arc.Close()
			deps.Close()
			return nil, err
		}
		deps.Archive = arc
		coord.AttachResultSink(arc)
	}

	if cfg.ResultWebhookURL != "" {
		deps.Webhook = webhook.New(cfg.ResultWebhookURL,
			webhook.WithRetry(cfg.ResultWebhookRetry),
			webhook.WithBearerToken(cfg.ResultWebhookToken),
			webhook.WithLogger(logger.Named("webhook")),
		)
		coord.AttachResultSink(deps.Webhook)
	}

	hub := notify.NewHub(coord, logger.Named("notify"), cfg.PushTimeout)
	tracker := presence.NewTracker(logger.Named("presence"))
	tracker.OnChange(hub.LobbyChanged)
	coord.AttachNotifier(hub)
	coord.AttachRoster(tracker)
	deps.Hub = hub
	deps.Presence = tracker

	return deps, nil
}

// Close stops the fan-out, waits for pending result sinks and releases storage.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Hub != nil {
		d.Hub.Close()
	}
	if d.Coordinator != nil {
		d.Coordinator.Wait()
	}
	if d.Archive != nil {
		if err := d.Archive.Close(); err != nil {
			d.Logger.Warn("archive_close_error", zap.Error(err))
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.Warn("store_close_error", zap.Error(err))
		}
	}
}
