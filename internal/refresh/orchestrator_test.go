package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbirest/pbirest-go/internal/powerbi"
)

var orchDataset = powerbi.Dataset{ID: "ds-1", Name: "Orders", GroupID: "g-1", GroupName: "Sales"}

type fakeRefresh struct {
	ID        string
	Status    string
	StartTime string
	EndTime   string
}

// fakeService is a stateful stand-in for the refresh endpoints of one
// dataset. Submissions append an in-progress entry; deletes mark the entry
// cancelled.
type fakeService struct {
	mu       sync.Mutex
	history  []fakeRefresh
	starts   int
	cancels  []string
	events   []string
	rejects  int // submissions to answer with 409 before accepting
	submitAt time.Time

	// statusAfterPolls flips the submitted entry to Success once this many
	// history reads have happened after the submission. Zero disables.
	statusAfterPolls int
	pollsSinceStart  int
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/groups/g-1/datasets/ds-1/refreshes", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if f.starts > 0 && f.statusAfterPolls > 0 {
				f.pollsSinceStart++
				if f.pollsSinceStart > f.statusAfterPolls {
					for i := range f.history {
						if f.history[i].Status == "Unknown" {
							f.history[i].Status = "Success"
							f.history[i].EndTime = f.submitAt.Add(3 * time.Minute).Format(time.RFC3339)
						}
					}
				}
			}

			f.events = append(f.events, "history")
			_ = json.NewEncoder(w).Encode(map[string]any{"value": f.valueLocked()})
		case http.MethodPost:
			_, _ = io.Copy(io.Discard, r.Body)

			if f.rejects > 0 {
				f.rejects--
				f.events = append(f.events, "submit-rejected")
				w.WriteHeader(http.StatusConflict)

				return
			}

			f.starts++
			f.events = append(f.events, "submit")
			f.history = append(f.history, fakeRefresh{
				ID:        fmt.Sprintf("r-new-%d", f.starts),
				Status:    "Unknown",
				StartTime: f.submitAt.Add(time.Minute).Format(time.RFC3339),
			})
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/groups/g-1/datasets/ds-1/refreshes/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		id := r.URL.Path[len("/groups/g-1/datasets/ds-1/refreshes/"):]
		f.cancels = append(f.cancels, id)
		f.events = append(f.events, "cancel")

		for i := range f.history {
			if f.history[i].ID == id {
				f.history[i].Status = "Cancelled"
			}
		}

		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func (f *fakeService) valueLocked() []map[string]string {
	out := make([]map[string]string, 0, len(f.history))
	for _, h := range f.history {
		out = append(out, map[string]string{
			"requestId": h.ID,
			"status":    h.Status,
			"startTime": h.StartTime,
			"endTime":   h.EndTime,
		})
	}

	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestOrchestrator wires an orchestrator to the fake service with instant
// sleeps and a pinned clock.
func newTestOrchestrator(t *testing.T, f *fakeService, waits *[]time.Duration) (*Orchestrator, func()) {
	t.Helper()

	server := httptest.NewServer(f.handler(t))

	tokens := powerbi.NewTokenCache(powerbi.StaticToken{Value: "test-token"}, testLogger())
	session := powerbi.NewSession(server.URL, tokens, testLogger())

	o := New(session, testLogger())
	o.sleepFunc = func(_ context.Context, d time.Duration) error {
		if waits != nil {
			*waits = append(*waits, d)
		}

		return nil
	}
	o.now = func() time.Time { return f.submitAt }

	return o, func() {
		session.Close()
		server.Close()
	}
}

func TestStart_SkipsWhenRefreshInProgress(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		history: []fakeRefresh{
			{ID: "r-old", Status: "Success", StartTime: "2026-08-24T08:00:00Z", EndTime: "2026-08-24T08:10:00Z"},
			{ID: "r-running", Status: "Unknown", StartTime: "2026-08-24T11:00:00Z"},
		},
	}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	result, err := o.Start(context.Background(), orchDataset, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkippedInProgress, result.Outcome)
	assert.Nil(t, result.Final)
	assert.Zero(t, f.starts)
	assert.Empty(t, f.cancels)
}

func TestStart_SubmitsWhenIdle(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		history: []fakeRefresh{
			{ID: "r-old", Status: "Success", StartTime: "2026-08-24T08:00:00Z", EndTime: "2026-08-24T08:10:00Z"},
		},
	}

	var waits []time.Duration

	o, cleanup := newTestOrchestrator(t, f, &waits)
	defer cleanup()

	result, err := o.Start(context.Background(), orchDataset, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeStarted, result.Outcome)
	assert.Equal(t, 1, f.starts)
	assert.Empty(t, f.cancels)
	assert.Empty(t, waits)
}

func TestStart_ForceCancelsThenSubmits(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		history: []fakeRefresh{
			{ID: "r-running", Status: "Unknown", StartTime: "2026-08-24T11:00:00Z"},
		},
	}

	var waits []time.Duration

	o, cleanup := newTestOrchestrator(t, f, &waits)
	defer cleanup()

	result, err := o.Start(context.Background(), orchDataset, Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCancelledThenStarted, result.Outcome)
	assert.Equal(t, []string{"r-running"}, f.cancels)
	assert.Equal(t, 1, f.starts)

	// Exactly one settle wait between the cancel and the submission.
	require.Len(t, waits, 1)
	assert.Equal(t, settleDelay, waits[0])
	assert.Equal(t, []string{"history", "cancel", "submit"}, f.events)
}

func TestStart_ConflictRetriedOnSubmit(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		rejects:  1,
	}

	var waits []time.Duration

	o, cleanup := newTestOrchestrator(t, f, &waits)
	defer cleanup()

	result, err := o.Start(context.Background(), orchDataset, Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeStarted, result.Outcome)
	assert.Equal(t, 1, f.starts)

	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], 10*time.Second)
	assert.LessOrEqual(t, waits[0], 20*time.Second)
}

func TestStart_WaitPollsUntilTerminal(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		history: []fakeRefresh{
			{ID: "r-old", Status: "Success", StartTime: "2026-08-24T08:00:00Z", EndTime: "2026-08-24T08:10:00Z"},
		},
		statusAfterPolls: 2,
	}

	var waits []time.Duration

	o, cleanup := newTestOrchestrator(t, f, &waits)
	defer cleanup()

	result, err := o.Start(context.Background(), orchDataset, Options{Wait: true})
	require.NoError(t, err)

	assert.Equal(t, OutcomeStarted, result.Outcome)
	require.NotNil(t, result.Final)
	assert.Equal(t, powerbi.StatusCompleted, result.Final.Status)
	assert.Equal(t, "r-new-1", result.Final.ID)

	// One initial delay, then one poll interval per non-terminal read.
	require.NotEmpty(t, waits)
	assert.Equal(t, initialPollDelay, waits[0])

	for _, wait := range waits[1:] {
		assert.Equal(t, pollInterval, wait)
	}
}

func TestWaitForCompletion_IgnoresOlderRecords(t *testing.T) {
	submitAt := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	f := &fakeService{
		submitAt: submitAt,
		history: []fakeRefresh{
			// Failed long before the submission; must not be picked up.
			{ID: "r-old", Status: "Failed", StartTime: "2026-08-24T08:00:00Z", EndTime: "2026-08-24T08:01:00Z"},
			{ID: "r-mine", Status: "Success", StartTime: "2026-08-24T12:05:00Z", EndTime: "2026-08-24T12:09:00Z"},
		},
	}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	final, err := o.WaitForCompletion(context.Background(), orchDataset, submitAt)
	require.NoError(t, err)

	assert.Equal(t, "r-mine", final.ID)
	assert.Equal(t, powerbi.StatusCompleted, final.Status)
}

func TestCancel_NoOpWithoutRunningRefresh(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		history: []fakeRefresh{
			{ID: "r-old", Status: "Success", StartTime: "2026-08-24T08:00:00Z", EndTime: "2026-08-24T08:10:00Z"},
		},
	}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	require.NoError(t, o.Cancel(context.Background(), orchDataset))
	assert.Empty(t, f.cancels)
}

func TestCancel_EmptyHistory(t *testing.T) {
	f := &fakeService{submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	require.NoError(t, o.Cancel(context.Background(), orchDataset))
	assert.Empty(t, f.cancels)
}

func TestCancel_CancelsRunningRefresh(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		history: []fakeRefresh{
			{ID: "r-running", Status: "Unknown", StartTime: "2026-08-24T11:00:00Z"},
		},
	}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	require.NoError(t, o.Cancel(context.Background(), orchDataset))
	assert.Equal(t, []string{"r-running"}, f.cancels)
}

func TestLastRefresh_SortsByStartTime(t *testing.T) {
	f := &fakeService{
		submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		// Service order is newest-first; the client must re-sort.
		history: []fakeRefresh{
			{ID: "r-3", Status: "Unknown", StartTime: "2026-08-24T11:00:00Z"},
			{ID: "r-1", Status: "Success", StartTime: "2026-08-24T08:00:00Z", EndTime: "2026-08-24T08:10:00Z"},
			{ID: "r-2", Status: "Failed", StartTime: "2026-08-24T09:00:00Z", EndTime: "2026-08-24T09:01:00Z"},
		},
	}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	last, err := o.LastRefresh(context.Background(), orchDataset)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r-3", last.ID)
}

func TestLastRefresh_EmptyHistory(t *testing.T) {
	f := &fakeService{submitAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}

	o, cleanup := newTestOrchestrator(t, f, nil)
	defer cleanup()

	last, err := o.LastRefresh(context.Background(), orchDataset)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "started", OutcomeStarted.String())
	assert.Equal(t, "skipped-in-progress", OutcomeSkippedInProgress.String())
	assert.Equal(t, "cancelled-then-started", OutcomeCancelledThenStarted.String())
}
