// Package tabular materializes resource objects into flat, fixed-shape rows
// for table output and downstream dataframe conversion. Each resource type
// has its own explicit row function; nested references are resolved by
// traversal here, never by reflection.
package tabular

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pbirest/pbirest-go/internal/powerbi"
)

// Table is an ordered set of rows under a fixed header.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Groups renders workspaces.
func Groups(groups []powerbi.Group) Table {
	t := Table{Columns: []string{"ID", "NAME", "TYPE", "READ-ONLY", "DEDICATED", "CAPACITY"}}

	for _, g := range groups {
		t.Rows = append(t.Rows, []string{
			g.ID,
			g.Name,
			g.Type,
			strconv.FormatBool(g.IsReadOnly),
			strconv.FormatBool(g.IsOnDedicatedCapacity),
			g.CapacityID,
		})
	}

	return t
}

// Datasets renders datasets with their owning group resolved.
func Datasets(datasets []powerbi.Dataset) Table {
	t := Table{Columns: []string{"ID", "NAME", "GROUP", "GROUP-ID", "REFRESHABLE", "CONFIGURED-BY", "STORAGE"}}

	for _, d := range datasets {
		t.Rows = append(t.Rows, []string{
			d.ID,
			d.Name,
			d.GroupName,
			d.GroupID,
			strconv.FormatBool(d.IsRefreshable),
			d.ConfiguredBy,
			d.StorageMode,
		})
	}

	return t
}

// Dataflows renders dataflows with their owning group resolved.
func Dataflows(flows []powerbi.Dataflow) Table {
	t := Table{Columns: []string{"ID", "NAME", "GROUP", "GROUP-ID", "CONFIGURED-BY", "GENERATION"}}

	for _, f := range flows {
		t.Rows = append(t.Rows, []string{
			f.ID,
			f.Name,
			f.GroupName,
			f.GroupID,
			f.ConfiguredBy,
			strconv.Itoa(f.Generation),
		})
	}

	return t
}

// Reports renders reports with their owning group resolved.
func Reports(reports []powerbi.Report) Table {
	t := Table{Columns: []string{"ID", "NAME", "GROUP", "TYPE", "DATASET-ID", "WEB-URL"}}

	for _, r := range reports {
		t.Rows = append(t.Rows, []string{
			r.ID,
			r.Name,
			r.GroupName,
			r.ReportType,
			r.DatasetID,
			r.WebURL,
		})
	}

	return t
}

// Pages renders report pages with their owning report resolved.
func Pages(pages []powerbi.Page) Table {
	t := Table{Columns: []string{"ORDER", "NAME", "REPORT", "REPORT-ID", "GROUP-ID"}}

	for _, p := range pages {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(p.Order),
			p.Name,
			p.ReportName,
			p.ReportID,
			p.GroupID,
		})
	}

	return t
}

// Records renders refresh records with their owning resource resolved.
func Records(records []powerbi.Record) Table {
	t := Table{Columns: []string{"ID", "RESOURCE", "STATUS", "TYPE", "START", "END", "DURATION"}}

	for _, r := range records {
		end := ""
		duration := ""

		if d, ok := r.Duration(); ok {
			end = formatTime(r.EndTime)
			duration = d.Round(time.Second).String()
		}

		t.Rows = append(t.Rows, []string{
			r.ID,
			r.ResourceName,
			string(r.Status),
			r.RefreshType,
			formatTime(r.StartTime),
			end,
			duration,
		})
	}

	return t
}

// Schedules renders refresh schedules with their owning dataset resolved.
func Schedules(schedules []powerbi.Schedule) Table {
	t := Table{Columns: []string{"DATASET", "ENABLED", "DAYS", "TIMES", "TIMEZONE", "NOTIFY"}}

	for _, s := range schedules {
		t.Rows = append(t.Rows, []string{
			s.DatasetName,
			strconv.FormatBool(s.Enabled),
			strings.Join(s.Days, ","),
			strings.Join(s.Times, ","),
			s.LocalTimeZoneID,
			s.NotifyOption,
		})
	}

	return t
}

// QueryResult renders one DAX result. Column order is the sorted key set of
// the first row so output is deterministic.
func QueryResult(result powerbi.QueryResult) Table {
	var t Table

	if len(result.Rows) == 0 {
		return t
	}

	for column := range result.Rows[0] {
		t.Columns = append(t.Columns, column)
	}

	slices.Sort(t.Columns)

	for _, row := range result.Rows {
		cells := make([]string, 0, len(t.Columns))
		for _, column := range t.Columns {
			cells = append(cells, formatValue(row[column]))
		}

		t.Rows = append(t.Rows, cells)
	}

	return t
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format("2006-01-02 15:04:05")
}
