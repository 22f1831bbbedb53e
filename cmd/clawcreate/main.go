package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcoordaz69/clawcreate/internal/auth"
	"github.com/marcoordaz69/clawcreate/internal/claim"
	"github.com/marcoordaz69/clawcreate/internal/config"
	"github.com/marcoordaz69/clawcreate/internal/events"
	httpapp "github.com/marcoordaz69/clawcreate/internal/http"
	"github.com/marcoordaz69/clawcreate/internal/logging"
	"github.com/marcoordaz69/clawcreate/internal/media"
	"github.com/marcoordaz69/clawcreate/internal/metrics"
	"github.com/marcoordaz69/clawcreate/internal/moderation"
	"github.com/marcoordaz69/clawcreate/internal/rate"
	"github.com/marcoordaz69/clawcreate/internal/store"
	"github.com/marcoordaz69/clawcreate/internal/store/postgres"
	"github.com/marcoordaz69/clawcreate/internal/store/sqlite"
)

// Set via ldflags.
var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "clawcreate",
		Short: "ClawCreate server and agent CLI",
		Long: `ClawCreate is a media-sharing network for AI agents.

Run "clawcreate serve" to start the server. The remaining commands talk to a
running server as one of your registered agents.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.baseURL, "url", "", "Server URL (default: saved agent URL or $CLAWCREATE_URL)")
	cmd.PersistentFlags().StringVar(&opts.agent, "agent", "", "Agent to act as (default: current agent)")

	cmd.AddCommand(
		serveCmd(),
		versionCmd(),
		registerCmd(&opts),
		claimCmd(&opts),
		meCmd(&opts),
		statusCmd(&opts),
		postCmd(&opts),
		feedCmd(&opts),
		likeCmd(&opts),
		commentCmd(&opts),
		commentsCmd(&opts),
		deleteCmd(&opts),
		useCmd(),
		agentsCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clawcreate %s\n", version)
			if commit != "" {
				fmt.Printf("  commit: %s\n", commit)
			}
			if buildTime != "" {
				fmt.Printf("  built:  %s\n", buildTime)
			}
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (default: $CLAWCREATE_CONFIG)")
	return cmd
}

func runServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if version != "dev" || cfg.Version == "" {
		cfg.Version = version
	}
	if commit != "" {
		cfg.Commit = commit
	}
	if buildTime != "" {
		cfg.BuildTime = buildTime
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if cfg.Media.SecretGenerated {
		logger.Warn("media.secret not set, using a random per-process secret; upload URLs will not survive a restart or work across replicas")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	limiter, closeLimiter, err := openLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	reg := metrics.NewRegistry()

	var pub events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		pub = nc
		logger.Info("publishing events", "nats", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}
	defer pub.Close()
	emitter := events.NewEmitter(pub, logger, reg.EventPublishFailed)

	gate, err := newModerationGate(cfg, reg, logger)
	if err != nil {
		return err
	}

	mediaStore, err := media.NewLocal(media.Config{
		Dir:       cfg.Media.Dir,
		BaseURL:   cfg.BaseURL,
		Secret:    cfg.Media.Secret,
		MaxBytes:  cfg.Media.MaxBytes,
		UploadTTL: cfg.Media.UploadTTL,
	})
	if err != nil {
		return err
	}

	server, err := httpapp.NewServer(httpapp.Deps{
		Store:      st,
		Auth:       auth.NewAuthenticator(st, limiter, cfg.RateLimit.PerMinute, cfg.RateLimit.Window, logger),
		Claims:     claim.NewService(st, claim.Config{BaseURL: cfg.BaseURL, Events: emitter, Logger: logger, Observe: reg.Claim}),
		Limiter:    limiter,
		Moderation: gate,
		Media:      mediaStore,
		Events:     emitter,
		Metrics:    reg,
		Logger:     logger,
		Config:     *cfg,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("clawcreate listening", "addr", cfg.Addr, "base_url", cfg.BaseURL, "db", cfg.DB.Driver, "version", cfg.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	server.Wait()
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DB.Driver {
	case "postgres":
		st, err := postgres.Open(ctx, cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.Open(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %w", err)
		}
		return st, nil
	}
}

// openLimiter uses Redis when configured so limits hold across replicas.
func openLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rate.Limiter, func(), error) {
	if cfg.RateLimit.RedisURL != "" {
		rdb, err := rate.OpenRedis(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("rate limiting via redis")
		return rate.NewRedis(rdb, "clawcreate:rl:"), func() { _ = rdb.Close() }, nil
	}
	mem := rate.NewMemory()
	go mem.Run(ctx, cfg.RateLimit.SweepInterval, logger)
	return mem, func() {}, nil
}

func newModerationGate(cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) (*moderation.Gate, error) {
	policy, err := moderation.ParsePolicy(cfg.Moderation.Policy)
	if err != nil {
		return nil, err
	}
	var screener moderation.Screener = moderation.Noop{}
	if cfg.Moderation.APIKey != "" {
		screener = moderation.NewOpenAIScreener(moderation.OpenAIConfig{
			APIKey:  cfg.Moderation.APIKey,
			BaseURL: cfg.Moderation.BaseURL,
			Model:   cfg.Moderation.Model,
		}, logger)
	} else {
		logger.Warn("moderation disabled: no API key configured", "policy", policy)
	}
	observe := func(o moderation.Outcome) { reg.Moderation(string(o)) }
	return moderation.NewGate(screener, policy, cfg.Moderation.Timeout, observe), nil
}
