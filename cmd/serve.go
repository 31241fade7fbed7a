package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/livedesk/internal/adapter/adminapi"
	"github.com/xiaot623/livedesk/internal/channel"
	"github.com/xiaot623/livedesk/internal/config"
	"github.com/xiaot623/livedesk/internal/console"
	"github.com/xiaot623/livedesk/internal/policy"
	"github.com/xiaot623/livedesk/internal/repository"
	transport "github.com/xiaot623/livedesk/internal/transport/http"
	"github.com/xiaot623/livedesk/pkg/logger"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the chat server and serve the local API",
	Long: `Connect to the chat server event channel, keep the console state in sync
and serve it to local view layers over HTTP. The connection is re-established
with exponential backoff after drops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.HTTP.Port = servePort
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Local API port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting livedesk",
		logger.String("channel_url", cfg.Channel.URL),
		logger.String("api_url", cfg.API.BaseURL),
		logger.String("operator_id", cfg.Operator.ID),
		logger.Int("http_port", cfg.HTTP.Port))

	journal, err := repository.NewSQLiteJournal(cfg.Storage.JournalDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer journal.Close()

	engine, err := policy.LoadEngine(ctx, cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	api := adminapi.NewClient(cfg.API.BaseURL, cfg.Operator.Token, config.Ms(cfg.API.TimeoutMs))
	supervisor := channel.NewSupervisor(channel.OptionsFromConfig(cfg), channel.BackoffFromConfig(cfg), log)

	svc := console.New(cfg, console.Deps{
		API:     api,
		Channel: supervisor,
		Policy:  engine,
		Journal: journal,
		Logger:  log,
	})
	server := transport.NewServer(svc, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() {
		runErr <- svc.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.HTTP.Port)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	var result error
	select {
	case <-ctx.Done():
		log.Info("Shutting down livedesk")
	case err := <-httpErr:
		result = fmt.Errorf("local API failed: %w", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shutdown local API gracefully", logger.Error(err))
	}
	if err := <-runErr; err != nil && result == nil {
		result = err
	}

	log.Info("livedesk stopped")
	return result
}
