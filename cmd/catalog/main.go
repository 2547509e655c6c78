package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"real-estate-catalog/internal/backend"
	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	_ = godotenv.Load()

	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Real estate catalog service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", envOr("CONFIG_PATH", "config/catalog.yaml"), "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(
		serveCmd(flags),
		loadCmd(flags),
		ownersCmd(flags),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// setup loads the configuration and builds the process logger.
func setup(flags *rootFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv()
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newAggregator(cfg *config.Config, logger *slog.Logger) (*catalog.Aggregator, error) {
	client, err := backend.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return catalog.NewAggregatorFromConfig(client, cfg, logger), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Assemble the catalog once and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			agg, err := newAggregator(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			cat, err := agg.LoadCatalog(ctx)
			if err != nil {
				return err
			}
			return printJSON(cat)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the load")
	return cmd
}

func ownersCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "List backend owners as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			agg, err := newAggregator(cfg, logger)
			if err != nil {
				return err
			}
			owners, err := agg.ListOwners(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(owners)
		},
	}
}
