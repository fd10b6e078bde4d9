package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/config"
	"github.com/user/ledgerclaw/internal/delivery"
	"github.com/user/ledgerclaw/internal/httpapi"
	"github.com/user/ledgerclaw/internal/scheduler"
	"github.com/user/ledgerclaw/internal/telegram"
	"github.com/user/ledgerclaw/internal/tracing"
	"github.com/user/ledgerclaw/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledgerclaw daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "ledgerclaw",
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.stores.Close()

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	a.gateway.Start(ctx)
	defer a.gateway.Stop()

	logger.Info("ledgerclaw started",
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("database", cfg.DatabaseURL != ""),
		zap.String("company", cfg.Company.Code),
		zap.Int("max_concurrent", cfg.Agent.MaxConcurrent),
		zap.Int("max_rounds", cfg.Agent.MaxRounds),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("pid_file", pidPath))

	deliveries := delivery.NewRegistry()
	// HTTP clients poll /api/clarifications; their reminders only go to the log.
	deliveries.Register("", func(_ context.Context, key types.SessionKey, text string) error {
		logger.Info("reminder without a push channel", zap.String("session_key", string(key)), zap.String("text", text))
		return nil
	})

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, telegram.Config{
			Inbound:  a.gateway,
			Files:    a.stores.Files,
			Sessions: a.stores.Sessions,
			Messages: a.stores.Messages,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		deliveries.Register(telegram.KeyPrefix, adapter.Deliver)
		go adapter.Start(ctx)
		logger.Info("telegram adapter started")
	} else {
		logger.Warn("telegram adapter disabled (no token)")
	}

	if cfg.Reminder.Enabled {
		reminder, err := scheduler.New(a.clarify, a.stores.Sessions, deliveries.Deliver, scheduler.Config{
			Schedule: cfg.Reminder.Schedule,
			After:    cfg.ReminderAfter(),
			Logger:   logger.Named("reminder"),
		})
		if err != nil {
			return err
		}
		reminder.Start()
		defer reminder.Stop()
		logger.Info("reminder scheduler started", zap.String("schedule", cfg.Reminder.Schedule))
	}

	if cfg.HTTP.Addr != "" {
		srv := startHTTP(cfg, a, logger)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
	}

	return waitForSignal(cfg, pidPath, logger)
}

func startHTTP(cfg *config.Config, a *app, logger *zap.Logger) *http.Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.New(httpapi.Config{
		Gateway:        a.gateway,
		Sessions:       a.stores.Sessions,
		Messages:       a.stores.Messages,
		Files:          a.stores.Files,
		Clarifications: a.clarify,
		Gatherer:       a.reg,
		Logger:         logger.Named("http"),
		RunTimeout:     5 * time.Minute,
	})
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("http server started", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	return srv
}

// waitForSignal blocks until SIGINT or SIGTERM. SIGHUP re-executes the binary.
func waitForSignal(cfg *config.Config, pidPath string, logger *zap.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				logger.Error("failed to get executable path", zap.Error(err))
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				logger.Error("failed to re-exec", zap.Error(err))
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					logger.Error("failed to re-write PID file", zap.Error(writeErr))
				}
				continue
			}
		}
		logger.Info("shutting down", zap.Stringer("signal", sig))
		return nil
	}
}
