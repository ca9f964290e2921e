package main

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/bellflower/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "bellflower",
		Short:        "Bellflower - notifications, subject chats and live chat delivery",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(flipImportanceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the zap-backed ectologger. The returned func flushes buffered entries.
func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level
	zapCfg.InitialFields = map[string]any{"service": cfg.AppName, "version": Version}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}

// loadConfig loads the configuration and the logger shared by every command.
func loadConfig() (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Version == "" || cfg.Version == "dev" {
		cfg.Version = Version
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, flush, nil
}
