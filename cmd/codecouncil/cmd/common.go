package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/codecouncil-ai/codecouncil/internal/adapters/llm"
	"github.com/codecouncil-ai/codecouncil/internal/adapters/state"
	"github.com/codecouncil-ai/codecouncil/internal/config"
	"github.com/codecouncil-ai/codecouncil/internal/core"
	"github.com/codecouncil-ai/codecouncil/internal/logging"
	"github.com/codecouncil-ai/codecouncil/internal/service"
)

// loadConfig loads and validates the unified configuration using the global
// viper instance, so persistent flag bindings apply.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config. Logs go to stderr so
// report output on stdout stays clean.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	return logging.New(logging.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// buildCouncil wires provider, gateway chains, agents and coordinator into a
// ready-to-run engine.
func buildCouncil(cfg *config.Config, logger *logging.Logger) (*service.Engine, *service.Gateway, error) {
	provider, err := llm.New(cfg.Upstream, logger)
	if err != nil {
		return nil, nil, err
	}
	return service.BuildEngine(cfg, provider, core.SystemClock(), logger)
}

// openRunStore opens the run-history backend named by config.
func openRunStore(cfg *config.Config) (core.RunStore, error) {
	path := cfg.Store.Path
	if path == "" {
		path = ".codecouncil/history.db"
	}
	return state.NewRunStore(path)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
