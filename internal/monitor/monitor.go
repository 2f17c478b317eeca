// Package monitor implements a periodic refresh monitor: on every tick it
// walks groups -> datasets -> refresh history, derives per-dataset status,
// and posts an Adaptive Card summary to a webhook.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pbirest/pbirest-go/internal/powerbi"
)

// xmlaRefreshType marks refreshes triggered through the XMLA endpoint.
// They are tool-driven and excluded from monitoring.
const xmlaRefreshType = "ViaXmlaEndpoint"

// DatasetStatus is the monitor's per-dataset summary row.
type DatasetStatus struct {
	Dataset       string
	GroupName     string
	Status        powerbi.RefreshStatus
	LastStart     time.Time
	LastEnd       time.Time
	LastCompleted time.Time // start of the most recent completed refresh
}

// Notifier delivers a rendered card.
type Notifier interface {
	Notify(ctx context.Context, card []byte) error
}

// WebhookNotifier posts cards to an incoming-webhook URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func (n *WebhookNotifier) Notify(ctx context.Context, card []byte) error {
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(card))
	if err != nil {
		return fmt.Errorf("monitor: creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("monitor: posting card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("monitor: webhook returned HTTP %d: %s", resp.StatusCode, body)
	}

	if n.Logger != nil {
		n.Logger.Debug("posted card to webhook", slog.Int("bytes", len(card)))
	}

	return nil
}

// Settings are the reloadable parts of the monitor. Reload swaps them
// while Run is looping.
type Settings struct {
	Interval time.Duration
	Title    string
}

// Monitor runs the periodic collection loop.
type Monitor struct {
	session  *powerbi.Session
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	settings Settings

	// sleepFunc waits between ticks. Tests override it.
	sleepFunc powerbi.SleepFunc
}

// New creates a monitor over the given session and notifier.
func New(session *powerbi.Session, notifier Notifier, settings Settings, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		session:   session,
		notifier:  notifier,
		logger:    logger,
		settings:  settings,
		sleepFunc: powerbi.Sleep,
	}
}

// Reload replaces the monitor's settings. Takes effect on the next tick.
func (m *Monitor) Reload(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("monitor settings reloaded",
		slog.Duration("interval", settings.Interval),
		slog.String("title", settings.Title),
	)

	m.settings = settings
}

func (m *Monitor) current() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.settings
}

// Run ticks until ctx is canceled. Collection failures are logged and the
// loop keeps going; only cancellation stops it.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			m.logger.Error("monitor tick failed", slog.String("error", err.Error()))
		}

		if err := m.sleepFunc(ctx, m.current().Interval); err != nil {
			return err
		}
	}
}

// Tick runs one collection + notification pass.
func (m *Monitor) Tick(ctx context.Context) error {
	statuses, err := m.Collect(ctx)
	if err != nil {
		return err
	}

	card := BuildCard(m.current().Title, time.Now().UTC(), statuses)

	return m.notifier.Notify(ctx, card)
}

// Collect fetches the full refresh picture: every dataset in every group
// with its latest refresh status. XMLA-triggered refreshes are ignored.
// Datasets with no history are skipped; there is nothing to report on them.
func (m *Monitor) Collect(ctx context.Context) ([]DatasetStatus, error) {
	groups, err := m.session.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	datasets, err := m.session.ListDatasets(ctx, groups...)
	if err != nil {
		return nil, err
	}

	targets := make([]powerbi.Refreshable, 0, len(datasets))
	for _, d := range datasets {
		targets = append(targets, d)
	}

	histories, err := m.session.HistoryAll(ctx, targets...)
	if err != nil {
		return nil, err
	}

	statuses := make([]DatasetStatus, 0, len(datasets))

	for i, dataset := range datasets {
		status, ok := summarize(dataset, histories[i])
		if !ok {
			continue
		}

		statuses = append(statuses, status)
	}

	m.logger.Info("collected refresh statuses",
		slog.Int("groups", len(groups)),
		slog.Int("datasets", len(datasets)),
		slog.Int("reported", len(statuses)),
	)

	return statuses, nil
}

// summarize reduces one dataset's history to its latest refresh and latest
// completed refresh. ok is false when no reportable history remains after
// the XMLA filter.
func summarize(dataset powerbi.Dataset, history []powerbi.Record) (DatasetStatus, bool) {
	var (
		latest        *powerbi.Record
		lastCompleted time.Time
	)

	for i := range history {
		record := &history[i]
		if record.RefreshType == xmlaRefreshType {
			continue
		}

		if latest == nil || record.StartTime.After(latest.StartTime) {
			latest = record
		}

		if record.Status == powerbi.StatusCompleted && record.StartTime.After(lastCompleted) {
			lastCompleted = record.StartTime
		}
	}

	if latest == nil {
		return DatasetStatus{}, false
	}

	return DatasetStatus{
		Dataset:       dataset.Name,
		GroupName:     dataset.GroupName,
		Status:        latest.Status,
		LastStart:     latest.StartTime,
		LastEnd:       latest.EndTime,
		LastCompleted: lastCompleted,
	}, true
}
