package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/sherpa/internal/config"
	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/pkg/adapters/file"
	"github.com/aretw0/sherpa/pkg/adapters/memory"
	"github.com/aretw0/sherpa/pkg/adapters/redis"
	"github.com/aretw0/sherpa/pkg/persistence/middleware"
	"github.com/aretw0/sherpa/pkg/ports"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sherpa",
	Short: "Sherpa is a flow navigation engine for guided, multi-step journeys",
	Long: `Sherpa runs multi-step, conditionally-branching flows: onboarding
wizards, setup assistants, guided configuration. Flows are defined in
YAML or JSON files and sessions persist across restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		v := config.NewViper(configFile)

		// Flags take priority over env and file values.
		if err := v.BindPFlag("flow", cmd.Flags().Lookup("flow")); err != nil {
			return err
		}
		if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("store.driver", cmd.Flags().Lookup("store")); err != nil {
			return err
		}

		var err error
		cfg, err = config.Read(v, configFile != "")
		if err != nil {
			return err
		}
		logger = logging.New(logging.ParseLevel(cfg.Log.Level))
		return nil
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: ./sherpa.yaml)")
	rootCmd.PersistentFlags().StringP("flow", "f", "", "Path to the flow definition file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("store", "", "Session store driver: memory, file, redis")
}

// flowPath resolves the flow file from the first positional argument or
// the configuration.
func flowPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Flow
}

// buildStore constructs the configured state store, wrapped in the
// masking and encryption middlewares when those are set.
func buildStore() (ports.StateStore, error) {
	var store ports.StateStore
	switch cfg.Store.Driver {
	case "memory":
		store = memory.NewStore()
	case "file", "":
		store = file.New(cfg.Store.Path)
	case "redis":
		var opts []redis.Option
		if ttl := cfg.Store.Redis.TTLSeconds; ttl > 0 {
			opts = append(opts, redis.WithTTL(time.Duration(ttl)*time.Second))
		}
		store = redis.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if len(cfg.Store.MaskPatterns) > 0 {
		store = middleware.NewPIIMiddleware(cfg.Store.MaskPatterns)(store)
	}
	if key := cfg.Store.EncryptionKey; key != "" {
		store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: []byte(key),
		})(store)
	}
	return store, nil
}
