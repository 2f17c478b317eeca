// Package refresh implements the orchestration state machine for dataset
// and dataflow refreshes: idempotent start, forced cancellation with a
// settle delay, and an optional poll-until-terminal wait.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pbirest/pbirest-go/internal/powerbi"
)

const (
	// settleDelay is the pause after a forced cancel, giving the backend
	// time to converge before a new submission.
	settleDelay = 5 * time.Second

	// initialPollDelay is waited once before the first history poll so the
	// submitted refresh becomes visible in history.
	initialPollDelay = 10 * time.Second

	// pollInterval is the pause between history polls while waiting for a
	// terminal status.
	pollInterval = 10 * time.Second

	// DefaultRefreshType is sent when the caller does not choose one.
	DefaultRefreshType = "Full"
)

// Outcome is the control-flow result of a Start call. A skipped refresh is
// an expected branch, not a failure.
type Outcome int

const (
	// OutcomeStarted means a new refresh was submitted.
	OutcomeStarted Outcome = iota

	// OutcomeSkippedInProgress means a refresh was already running and the
	// caller did not force; nothing was submitted.
	OutcomeSkippedInProgress

	// OutcomeCancelledThenStarted means the running refresh was canceled
	// and a new one submitted after the settle delay.
	OutcomeCancelledThenStarted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeSkippedInProgress:
		return "skipped-in-progress"
	case OutcomeCancelledThenStarted:
		return "cancelled-then-started"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options controls a Start call.
type Options struct {
	// Force cancels an in-flight refresh before submitting instead of
	// skipping.
	Force bool

	// Wait polls history after submission until the refresh reaches a
	// terminal status. Unbounded: callers needing a deadline put one on ctx.
	Wait bool

	// RefreshType is the dataset refresh type (DefaultRefreshType if empty).
	// Ignored for dataflows.
	RefreshType string
}

// Result reports what Start did. Final is set only when Options.Wait was
// requested and the refresh reached a terminal status.
type Result struct {
	Outcome Outcome
	Final   *powerbi.Record
}

// Orchestrator drives refresh state transitions for one session. All state
// is re-derived from the server on every call; the orchestrator itself keeps
// nothing between invocations.
type Orchestrator struct {
	session *powerbi.Session
	logger  *slog.Logger

	// sleepFunc waits between state transitions. Tests override it.
	sleepFunc powerbi.SleepFunc

	// now stamps submissions for the wait filter. Tests override it.
	now func() time.Time
}

// New creates an orchestrator over the given session.
func New(session *powerbi.Session, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		session:   session,
		logger:    logger,
		sleepFunc: powerbi.Sleep,
		now:       time.Now,
	}
}

// LastRefresh returns the most recent refresh record for the resource,
// sorted by start time on the client, or nil when the resource has no
// history. Server-returned order is never trusted.
func (o *Orchestrator) LastRefresh(ctx context.Context, target powerbi.Refreshable) (*powerbi.Record, error) {
	records, err := o.session.History(ctx, target)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	sortByStartTime(records)

	last := records[len(records)-1]

	return &last, nil
}

// Start triggers a refresh of the resource.
//
// When the latest history entry is still running and Force is unset, nothing
// is submitted and the outcome is OutcomeSkippedInProgress: at most one
// in-flight refresh per resource. With Force, the running job is canceled
// first and the submission waits out the settle delay.
//
// The submission runs under the conflict retry policy because the backend
// may still reject overlapping submissions with 400/409 after the check.
func (o *Orchestrator) Start(ctx context.Context, target powerbi.Refreshable, opts Options) (*Result, error) {
	refreshType := opts.RefreshType
	if refreshType == "" {
		refreshType = DefaultRefreshType
	}

	last, err := o.LastRefresh(ctx, target)
	if err != nil {
		return nil, err
	}

	outcome := OutcomeStarted

	if last != nil && last.InProgress() {
		if !opts.Force {
			o.logger.Info("refresh already in progress, skipping",
				slog.String("kind", string(target.Kind())),
				slog.String("resource", target.ResourceName()),
				slog.String("record_id", last.ID),
			)

			outcomesTotal.WithLabelValues(OutcomeSkippedInProgress.String()).Inc()

			return &Result{Outcome: OutcomeSkippedInProgress}, nil
		}

		if err := o.session.CancelRefresh(ctx, target, *last); err != nil {
			return nil, err
		}

		o.logger.Info("canceled in-flight refresh, waiting for backend to settle",
			slog.String("resource", target.ResourceName()),
			slog.Duration("settle", settleDelay),
		)

		if err := o.sleepFunc(ctx, settleDelay); err != nil {
			return nil, fmt.Errorf("refresh: settle wait canceled: %w", err)
		}

		outcome = OutcomeCancelledThenStarted
	}

	submittedAt := o.now()

	err = powerbi.Do(ctx, o.logger, o.sleepFunc, func(ctx context.Context) error {
		return o.session.StartRefresh(ctx, target, refreshType)
	}, powerbi.ConflictPolicy())
	if err != nil {
		return nil, err
	}

	outcomesTotal.WithLabelValues(outcome.String()).Inc()

	result := &Result{Outcome: outcome}

	if opts.Wait {
		final, waitErr := o.WaitForCompletion(ctx, target, submittedAt)
		if waitErr != nil {
			return nil, waitErr
		}

		result.Final = final
	}

	return result, nil
}

// Cancel cancels the resource's in-flight refresh. When the latest history
// entry is not running, cancellation is meaningless: the miss is logged at
// error level and nil is returned.
func (o *Orchestrator) Cancel(ctx context.Context, target powerbi.Refreshable) error {
	last, err := o.LastRefresh(ctx, target)
	if err != nil {
		return err
	}

	if last == nil || !last.InProgress() {
		o.logger.Error("no refresh in progress to cancel",
			slog.String("kind", string(target.Kind())),
			slog.String("resource", target.ResourceName()),
		)

		return nil
	}

	return o.session.CancelRefresh(ctx, target, *last)
}

// WaitForCompletion polls the resource's history until the refresh that
// started after since reaches a terminal status, and returns its record.
// The loop has no deadline of its own; it stops when ctx is canceled. State
// is re-derived from the server on every poll, so a canceled wait leaves
// nothing ambiguous behind.
func (o *Orchestrator) WaitForCompletion(ctx context.Context, target powerbi.Refreshable, since time.Time) (*powerbi.Record, error) {
	if err := o.sleepFunc(ctx, initialPollDelay); err != nil {
		return nil, fmt.Errorf("refresh: wait canceled: %w", err)
	}

	for {
		current, err := o.currentRefresh(ctx, target, since)
		if err != nil {
			return nil, err
		}

		if current != nil && !current.InProgress() {
			duration := time.Duration(0)
			if d, ok := current.Duration(); ok {
				duration = d
			}

			o.logger.Info("refresh reached terminal status",
				slog.String("resource", target.ResourceName()),
				slog.String("status", string(current.Status)),
				slog.Duration("duration", duration),
			)

			return current, nil
		}

		if err := o.sleepFunc(ctx, pollInterval); err != nil {
			return nil, fmt.Errorf("refresh: wait canceled: %w", err)
		}
	}
}

// currentRefresh finds the earliest history entry that started after since,
// i.e. the refresh this orchestrator submitted. Nil when it is not yet
// visible in history.
func (o *Orchestrator) currentRefresh(ctx context.Context, target powerbi.Refreshable, since time.Time) (*powerbi.Record, error) {
	records, err := o.session.History(ctx, target)
	if err != nil {
		return nil, err
	}

	started := records[:0:0]
	for _, record := range records {
		if record.StartTime.After(since) {
			started = append(started, record)
		}
	}

	if len(started) == 0 {
		return nil, nil
	}

	sortByStartTime(started)

	current := started[0]

	return &current, nil
}

func sortByStartTime(records []powerbi.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
}
