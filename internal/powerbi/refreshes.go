package powerbi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// datasetRefreshRetryCount is sent with every dataset refresh submission so
// the service retries transient model failures on its side.
const datasetRefreshRetryCount = 3

// datasetRefreshRequest is the body of a dataset refresh submission.
type datasetRefreshRequest struct {
	RetryCount int    `json:"retryCount"`
	Type       string `json:"type"`
}

// History fetches the refresh history of a refreshable resource: refreshes
// for a dataset, transactions for a dataflow. Entries come back in the
// service's order; callers sort by StartTime before any "latest" decision.
func (s *Session) History(ctx context.Context, target Refreshable) ([]Record, error) {
	switch t := target.(type) {
	case Dataset:
		raw, err := listOf[refreshResponse](ctx, s, t.HistoryPath())
		if err != nil {
			return nil, err
		}

		records := make([]Record, 0, len(raw))
		for i := range raw {
			records = append(records, raw[i].toRecord(t))
		}

		return records, nil
	case Dataflow:
		raw, err := listOf[transactionResponse](ctx, s, t.HistoryPath())
		if err != nil {
			return nil, err
		}

		records := make([]Record, 0, len(raw))
		for i := range raw {
			records = append(records, raw[i].toRecord(t))
		}

		return records, nil
	default:
		return nil, fmt.Errorf("powerbi: unsupported refreshable type %T", target)
	}
}

// HistoryAll fetches refresh history for several resources in parallel.
// The outer slice preserves the input order of targets; batches are zipped
// back to their originating resource, never to response arrival order.
func (s *Session) HistoryAll(ctx context.Context, targets ...Refreshable) ([][]Record, error) {
	perTarget := make([][]Record, len(targets))
	eg, ctx := errgroup.WithContext(ctx)

	for i, target := range targets {
		eg.Go(func() error {
			records, err := s.History(ctx, target)
			if err != nil {
				return err
			}

			perTarget[i] = records

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return perTarget, nil
}

// StartRefresh submits a refresh for the resource. Dataset submissions carry
// a typed body; dataflow submissions send an empty refresh request. extra
// retry policies (typically the conflict policy) are layered in front of the
// session's rate-limit policy.
func (s *Session) StartRefresh(ctx context.Context, target Refreshable, refreshType string, extra ...Policy) error {
	var body any
	if target.Kind() == KindDataset {
		body = datasetRefreshRequest{RetryCount: datasetRefreshRetryCount, Type: refreshType}
	}

	encoded, err := encodeBody(body)
	if err != nil {
		return err
	}

	resp, err := s.RequestWith(ctx, http.MethodPost, target.StartRefreshPath(), encoded, nil, extra...)
	if err != nil {
		return err
	}
	resp.Body.Close()

	s.logger.Info("refresh submitted",
		slog.String("kind", string(target.Kind())),
		slog.String("resource", target.ResourceName()),
		slog.String("group_id", target.OwnerGroupID()),
	)

	return nil
}

// CancelRefresh cancels an in-flight refresh job. Datasets cancel by DELETE
// on the refresh's own URL; dataflows POST to the transaction's cancel URL.
func (s *Session) CancelRefresh(ctx context.Context, target Refreshable, record Record) error {
	var (
		resp *http.Response
		err  error
	)

	switch t := target.(type) {
	case Dataset:
		path := fmt.Sprintf("/groups/%s/datasets/%s/refreshes/%s", t.GroupID, t.ID, record.ID)
		resp, err = s.Delete(ctx, path)
	case Dataflow:
		resp, err = s.Post(ctx, t.cancelPath(record.ID), nil)
	default:
		return fmt.Errorf("powerbi: unsupported refreshable type %T", target)
	}

	if err != nil {
		return err
	}
	resp.Body.Close()

	s.logger.Info("refresh canceled",
		slog.String("kind", string(target.Kind())),
		slog.String("resource", target.ResourceName()),
		slog.String("record_id", record.ID),
	)

	return nil
}

// GetSchedule fetches the dataset's refresh schedule.
func (s *Session) GetSchedule(ctx context.Context, dataset Dataset) (*Schedule, error) {
	var raw scheduleResponse
	if err := s.getJSON(ctx, dataset.SchedulePath(), &raw); err != nil {
		return nil, err
	}

	schedule := raw.toSchedule(dataset)

	return &schedule, nil
}

// SchedulePatch holds the schedule fields to change. Nil fields are left
// untouched by the service.
type SchedulePatch struct {
	Days            []string `json:"days,omitempty"`
	Times           []string `json:"times,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty"`
	LocalTimeZoneID string   `json:"localTimeZoneId,omitempty"`
	NotifyOption    string   `json:"notifyOption,omitempty"`
}

// UpdateSchedule applies a partial schedule update to the dataset.
func (s *Session) UpdateSchedule(ctx context.Context, dataset Dataset, patch SchedulePatch) error {
	body := struct {
		Value SchedulePatch `json:"value"`
	}{Value: patch}

	resp, err := s.Patch(ctx, dataset.SchedulePath(), body)
	if err != nil {
		return err
	}
	resp.Body.Close()

	s.logger.Info("refresh schedule updated",
		slog.String("dataset", dataset.Name),
		slog.String("group_id", dataset.GroupID),
	)

	return nil
}
