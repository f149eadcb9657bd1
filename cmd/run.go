package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/qqclaw/internal/bot"
	"github.com/nextlevelbuilder/qqclaw/internal/config"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and start replying",
		Run: func(cmd *cobra.Command, args []string) {
			runBot()
		},
	}
}

func runBot() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(cfgPath); err != nil {
		slog.Error("invalid configuration")
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	b, err := bot.New(cfg)
	if err != nil {
		slog.Error("failed to build bot", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM. In-flight judge and
	// generation calls are cancelled with the context; late results
	// are dropped.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("bot stopped")
}
