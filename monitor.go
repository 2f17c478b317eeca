package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pbirest/pbirest-go/internal/config"
	"github.com/pbirest/pbirest-go/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	var (
		flagWebhookURL  string
		flagInterval    string
		flagMetricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Periodically post a refresh status card to a webhook",
		Long: `Run the refresh monitor: on every interval, list all workspaces and
datasets, fetch their refresh history, and post an Adaptive Card summary
to the configured webhook. The config file is watched; interval and title
changes apply without a restart. Runs until interrupted.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := buildLogger()

			session, err := newSession(logger)
			if err != nil {
				return err
			}
			defer session.Close()

			webhookURL := resolvedCfg.Monitor.WebhookURL
			if flagWebhookURL != "" {
				webhookURL = flagWebhookURL
			}

			if webhookURL == "" {
				return fmt.Errorf("monitor: no webhook URL: set monitor.webhook_url or --webhook-url")
			}

			if flagInterval != "" {
				resolvedCfg.Monitor.Interval = flagInterval
			}

			interval, err := resolvedCfg.MonitorInterval()
			if err != nil {
				return err
			}

			notifier := &monitor.WebhookNotifier{URL: webhookURL, Logger: logger}

			m := monitor.New(session, notifier, monitor.Settings{
				Interval: interval,
				Title:    resolvedCfg.Monitor.Title,
			}, logger)

			ctx, stop := cmdContext()
			defer stop()

			if flagMetricsAddr != "" {
				go serveMetrics(flagMetricsAddr, logger)
			}

			// Reload monitor settings when the config file changes. Flag
			// overrides stay in force; only file-driven settings move.
			cfgPath, err := configPath()
			if err == nil {
				go watchMonitorConfig(ctx, cfgPath, flagInterval, logger, m)
			}

			return m.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&flagWebhookURL, "webhook-url", "", "webhook to post cards to (overrides config)")
	cmd.Flags().StringVar(&flagInterval, "interval", "", "poll interval, e.g. 15m (overrides config)")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")

	return cmd
}

// watchMonitorConfig re-reads the config file on change and pushes the new
// interval and title into the running monitor.
func watchMonitorConfig(ctx context.Context, path, intervalOverride string, logger *slog.Logger, m *monitor.Monitor) {
	err := monitor.WatchFile(ctx, path, logger, func() {
		cfg, loadErr := config.Load(path)
		if loadErr != nil {
			logger.Warn("ignoring config reload", slog.String("error", loadErr.Error()))

			return
		}

		if intervalOverride != "" {
			cfg.Monitor.Interval = intervalOverride
		}

		interval, intervalErr := cfg.MonitorInterval()
		if intervalErr != nil {
			logger.Warn("ignoring config reload", slog.String("error", intervalErr.Error()))

			return
		}

		m.Reload(monitor.Settings{Interval: interval, Title: cfg.Monitor.Title})
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("config watcher stopped", slog.String("error", err.Error()))
	}
}

// serveMetrics exposes the default Prometheus registry.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("serving metrics", slog.String("addr", addr))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logger.Warn("metrics server stopped", slog.String("error", err.Error()))
	}
}
