package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/park285/cheese-chess-arena/internal/archive"
	"github.com/park285/cheese-chess-arena/internal/chessbuilder"
	"github.com/park285/cheese-chess-arena/internal/config"
	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/identity"
	"github.com/park285/cheese-chess-arena/internal/obslog"
	"github.com/park285/cheese-chess-arena/internal/server"
	"github.com/park285/cheese-chess-arena/pkg/chessdto"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chess-server",
		Short:         "Real-time two-player chess over HTTP and WebSocket.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	cmd.AddCommand(newServeCmd(), newTokenCmd(), newMigrateCmd())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("chess-server v{{.Version}}\n")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (config from environment).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := obslog.InitFromEnv(); err != nil {
				return err
			}
			logger := obslog.L()
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := chessbuilder.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			srv := server.New(server.Options{
				Coordinator:    deps.Coordinator,
				Solo:           deps.Solo,
				Hub:            deps.Hub,
				Presence:       deps.Presence,
				Identity:       deps.Identity,
				Archive:        deps.Archive,
				Logger:         logger.Named("http"),
				AllowedOrigins: cfg.AllowedOrigins,
			})
			logger.Info("server_start",
				zap.String("version", releaseVersion),
				zap.String("addr", cfg.HTTPAddr),
				zap.Bool("redis", cfg.RedisURL != ""),
				zap.Bool("archive", deps.Archive != nil),
				zap.Bool("webhook", deps.Webhook != nil),
			)
			return srv.ListenAndServe(ctx, cfg.HTTPAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed identity token with AUTH_SECRET.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id = strings.TrimSpace(id)
			if id == "" {
				return errors.New("--id is required")
			}
			if strings.TrimSpace(name) == "" {
				name = id
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			p, err := identity.NewProvider(identity.Config{Secret: []byte(cfg.AuthSecret), TokenTTL: cfg.AuthTokenTTL})
			if err != nil {
				return err
			}
			who := domain.Identity{ID: id, Name: strings.TrimSpace(name)}
			tok, err := p.Issue(who)
			if err != nil {
				return err
			}
			return printJSON(cmd, chessdto.TokenResponse{Token: tok, Player: chessdto.Player{ID: who.ID, Name: who.Name}})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the id)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the result archive tables in DATABASE_URL.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := obslog.InitFromEnv(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			arc, err := archive.Open(ctx, cfg.DatabaseURL, obslog.L())
			if err != nil {
				return err
			}
			defer arc.Close()
			if err := arc.Migrate(ctx); err != nil {
				return err
			}
			obslog.L().Info("archive_migrated")
			return nil
		},
	}
}
