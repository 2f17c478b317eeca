package powerbi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParseRefreshStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want RefreshStatus
	}{
		{"Success", StatusCompleted},
		{"Completed", StatusCompleted},
		{"completed", StatusCompleted},
		{"Unknown", StatusInProgress},
		{"unknown", StatusInProgress},
		{"InProgress", StatusInProgress},
		{"Cancelling", StatusCancelled},
		{"Cancelled", StatusCancelled},
		{"Pending", StatusPending},
		{"Failed", StatusFailed},
		{"Disabled", StatusFailed},
		{"", StatusFailed},
		{"garbage", StatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseRefreshStatus(tc.raw))
		})
	}
}

func TestParseRefreshStatus_AlwaysNormalized(t *testing.T) {
	known := map[RefreshStatus]bool{
		StatusPending:    true,
		StatusInProgress: true,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	}

	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		got := ParseRefreshStatus(raw)
		assert.True(t, known[got], "unexpected status %q for input %q", got, raw)
	})
}

func TestParseServiceTime(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", "2026-08-24T10:30:00Z", time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)},
		{"fractional", "2026-08-24T10:30:00.123Z", time.Date(2026, 8, 24, 10, 30, 0, 123000000, time.UTC)},
		{"no zone", "2026-08-24T10:30:00", time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)},
		{"no zone fractional", "2026-08-24T10:30:00.5", time.Date(2026, 8, 24, 10, 30, 0, 500000000, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.want.Equal(parseServiceTime(tc.raw)))
		})
	}
}

func TestRecordDuration(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	running := Record{Status: StatusInProgress, StartTime: start}

	_, ok := running.Duration()
	assert.False(t, ok)

	finished := Record{Status: StatusCompleted, StartTime: start, EndTime: start.Add(90 * time.Second)}

	d, ok := finished.Duration()
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)
}

func TestRefreshablePaths(t *testing.T) {
	ds := Dataset{ID: "ds-1", GroupID: "g-1"}
	assert.Equal(t, "/groups/g-1/datasets/ds-1/refreshes?$top=50", ds.HistoryPath())
	assert.Equal(t, "/groups/g-1/datasets/ds-1/refreshes", ds.StartRefreshPath())
	assert.Equal(t, "/groups/g-1/datasets/ds-1/refreshSchedule", ds.SchedulePath())
	assert.Equal(t, "/groups/g-1/datasets/ds-1/executeQueries", ds.ExecuteQueriesPath())

	df := Dataflow{ID: "df-1", GroupID: "g-1"}
	assert.Equal(t, "/groups/g-1/dataflows/df-1/transactions", df.HistoryPath())
	assert.Equal(t, "/groups/g-1/dataflows/df-1/refreshes?processType=default", df.StartRefreshPath())
	assert.Equal(t, "/groups/g-1/dataflows/transactions/t-1/cancel", df.cancelPath("t-1"))
}
