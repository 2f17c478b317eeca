package monitor

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pbirest/pbirest-go/internal/powerbi"
)

// Adaptive Card schema constants.
const (
	cardSchema  = "https://adaptivecards.io/schemas/adaptive-card.json"
	cardVersion = "1.5"
)

// statusStyles maps a refresh status to the card cell style rendering it.
var statusStyles = map[powerbi.RefreshStatus]string{
	powerbi.StatusFailed:     "Attention",
	powerbi.StatusCompleted:  "Good",
	powerbi.StatusInProgress: "Accent",
	powerbi.StatusPending:    "Default",
	powerbi.StatusCancelled:  "Default",
}

// cardStatusOrder is the rendering order of status sections: problems first.
var cardStatusOrder = []powerbi.RefreshStatus{
	powerbi.StatusFailed,
	powerbi.StatusCompleted,
	powerbi.StatusInProgress,
	powerbi.StatusPending,
	powerbi.StatusCancelled,
}

// BuildCard renders the monitor summary as an Adaptive Card JSON payload:
// a title block, KPI counters per status, and a dataset table grouped by
// status with failures first and newest end times at the top.
func BuildCard(title string, at time.Time, statuses []DatasetStatus) []byte {
	card := map[string]any{
		"type":    "AdaptiveCard",
		"$schema": cardSchema,
		"version": cardVersion,
		"body": []any{
			buildTitle(title, at),
			buildKPI(statuses),
			buildTable(statuses),
		},
	}

	// The card is built from plain maps and strings; marshaling cannot fail.
	encoded, _ := json.Marshal(card)

	return encoded
}

func buildTitle(title string, at time.Time) map[string]any {
	return map[string]any{
		"type": "Container",
		"items": []any{
			map[string]any{
				"type":      "TextBlock",
				"text":      title,
				"wrap":      true,
				"style":     "heading",
				"separator": true,
				"size":      "Large",
				"fontType":  "Monospace",
			},
			map[string]any{
				"type":      "TextBlock",
				"text":      at.Format("2006-01-02 15:04"),
				"wrap":      true,
				"separator": true,
				"size":      "Small",
				"isSubtle":  true,
				"color":     "Accent",
				"fontType":  "Monospace",
			},
		},
	}
}

func buildKPI(statuses []DatasetStatus) map[string]any {
	counts := make(map[powerbi.RefreshStatus]int)
	for _, s := range statuses {
		counts[s.Status]++
	}

	columns := make([]any, 0, len(cardStatusOrder)+1)
	for _, status := range cardStatusOrder {
		columns = append(columns, buildKPIColumn(string(status), counts[status]))
	}

	columns = append(columns, buildKPIColumn("Total", len(statuses)))

	return map[string]any{
		"type": "Container",
		"items": []any{
			map[string]any{
				"type":                "ColumnSet",
				"horizontalAlignment": "Center",
				"columns":             columns,
				"separator":           true,
				"spacing":             "Large",
			},
		},
	}
}

func buildKPIColumn(label string, count int) map[string]any {
	return map[string]any{
		"type":  "Column",
		"width": 1,
		"items": []any{
			map[string]any{
				"type":                "TextBlock",
				"text":                fmt.Sprintf("**%d**", count),
				"wrap":                true,
				"horizontalAlignment": "Center",
			},
			map[string]any{
				"type":                "TextBlock",
				"spacing":             "None",
				"text":                label,
				"wrap":                true,
				"fontType":            "Monospace",
				"horizontalAlignment": "Center",
			},
		},
	}
}

func buildTable(statuses []DatasetStatus) map[string]any {
	rows := []any{
		map[string]any{
			"type": "TableRow",
			"cells": []any{
				buildCell("Dataset", "Default"),
				buildCell("End Time", "Default"),
			},
			"verticalCellContentAlignment": "Center",
		},
	}

	for _, status := range cardStatusOrder {
		rows = append(rows, buildStatusRows(statuses, status)...)
	}

	return map[string]any{
		"type":    "Table",
		"columns": []any{map[string]any{"width": 5}, map[string]any{"width": 2}},
		"rows":    rows,
	}
}

// buildStatusRows renders the datasets in one status bucket, newest end
// time first.
func buildStatusRows(statuses []DatasetStatus, status powerbi.RefreshStatus) []any {
	var bucket []DatasetStatus
	for _, s := range statuses {
		if s.Status == status {
			bucket = append(bucket, s)
		}
	}

	sort.SliceStable(bucket, func(i, j int) bool {
		return bucket[i].LastEnd.After(bucket[j].LastEnd)
	})

	style := statusStyles[status]
	rows := make([]any, 0, len(bucket))

	for _, s := range bucket {
		end := ""
		if !s.LastEnd.IsZero() {
			end = s.LastEnd.Format("2006-01-02 15:04")
		}

		rows = append(rows, map[string]any{
			"type": "TableRow",
			"cells": []any{
				buildCell(s.Dataset, style),
				buildCell(end, style),
			},
		})
	}

	return rows
}

func buildCell(text, style string) map[string]any {
	return map[string]any{
		"type": "TableCell",
		"items": []any{
			map[string]any{
				"type":                "TextBlock",
				"text":                text,
				"wrap":                true,
				"height":              "stretch",
				"horizontalAlignment": "Left",
				"fontType":            "Monospace",
			},
		},
		"horizontalAlignment": "Center",
		"style":               style,
	}
}
