// Command pbirest is a Power BI REST API client: it lists workspaces and
// their contents, drives dataset and dataflow refreshes, and runs a
// periodic refresh monitor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbirest/pbirest-go/internal/config"
	"github.com/pbirest/pbirest-go/internal/powerbi"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
	flagTimeout    time.Duration
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pbirest",
		Short:   "Power BI REST API client",
		Long:    "List workspaces, datasets, dataflows and reports; trigger, watch and cancel refreshes; monitor refresh health.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "overall deadline for the command (0 = none)")

	// Register subcommands.
	cmd.AddCommand(newGroupsCmd())
	cmd.AddCommand(newDatasetsCmd())
	cmd.AddCommand(newDataflowsCmd())
	cmd.AddCommand(newReportsCmd())
	cmd.AddCommand(newPagesCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newMonitorCmd())

	return cmd
}

// loadConfig resolves the effective configuration (defaults -> file -> env)
// and stores it in resolvedCfg for use by subcommands.
func loadConfig() error {
	path := flagConfigPath

	if path == "" {
		if env := os.Getenv("PBIREST_CONFIG"); env != "" {
			path = env
		} else {
			defaultPath, err := config.DefaultPath()
			if err != nil {
				return err
			}

			path = defaultPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// configPath returns the path loadConfig resolved, for the monitor's
// config watcher.
func configPath() (string, error) {
	if flagConfigPath != "" {
		return flagConfigPath, nil
	}

	if env := os.Getenv("PBIREST_CONFIG"); env != "" {
		return env, nil
	}

	return config.DefaultPath()
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newSession builds the authenticated API session from the resolved config.
func newSession(logger *slog.Logger) (*powerbi.Session, error) {
	cred, err := resolvedCfg.Credential()
	if err != nil {
		return nil, err
	}

	tokens := powerbi.NewTokenCache(cred, logger)
	session := powerbi.NewSession(resolvedCfg.API.BaseURL, tokens, logger)
	session.SetRateLimit(resolvedCfg.API.RequestsPerSecond, resolvedCfg.API.RequestBurst)

	return session, nil
}

// cmdContext returns a context canceled on SIGINT/SIGTERM, with the
// --timeout deadline applied when set. The returned stop function releases
// both.
func cmdContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if flagTimeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, flagTimeout)

	return ctx, func() {
		cancel()
		stop()
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
