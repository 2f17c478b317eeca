package powerbi

import (
	"fmt"
	"strings"
	"time"
)

// topRefreshHistory caps how many history entries a single fetch returns.
const topRefreshHistory = 50

// Group is a workspace container owning datasets, dataflows, and reports.
// Its GroupID is its own ID; every child resource carries a back-reference
// to the owning group's ID and name (relation only, no ownership).
type Group struct {
	ID                          string
	Name                        string
	Type                        string
	IsReadOnly                  bool
	IsOnDedicatedCapacity       bool
	CapacityID                  string
	DefaultDatasetStorageFormat string
}

// GroupID returns the group's own ID; groups are their own owner.
func (g Group) GroupID() string {
	return g.ID
}

func (g Group) datasetsPath() string {
	return fmt.Sprintf("/groups/%s/datasets", g.ID)
}

func (g Group) dataflowsPath() string {
	return fmt.Sprintf("/groups/%s/dataflows", g.ID)
}

func (g Group) reportsPath() string {
	return fmt.Sprintf("/groups/%s/reports", g.ID)
}

// Dataset is a refreshable tabular model owned by a group.
type Dataset struct {
	ID            string
	Name          string
	GroupID       string
	GroupName     string
	WebURL        string
	IsRefreshable bool
	CreatedDate   string
	Description   string
	ConfiguredBy  string
	StorageMode   string
}

// HistoryPath lists the dataset's most recent refreshes, newest-first per
// the service; callers must sort before taking a "latest" decision.
func (d Dataset) HistoryPath() string {
	return fmt.Sprintf("/groups/%s/datasets/%s/refreshes?$top=%d", d.GroupID, d.ID, topRefreshHistory)
}

// StartRefreshPath is the POST target that submits a refresh.
func (d Dataset) StartRefreshPath() string {
	return fmt.Sprintf("/groups/%s/datasets/%s/refreshes", d.GroupID, d.ID)
}

// SchedulePath addresses the dataset's refresh schedule.
func (d Dataset) SchedulePath() string {
	return fmt.Sprintf("/groups/%s/datasets/%s/refreshSchedule", d.GroupID, d.ID)
}

// ExecuteQueriesPath is the POST target for DAX query execution.
func (d Dataset) ExecuteQueriesPath() string {
	return fmt.Sprintf("/groups/%s/datasets/%s/executeQueries", d.GroupID, d.ID)
}

func (d Dataset) ResourceID() string    { return d.ID }
func (d Dataset) ResourceName() string  { return d.Name }
func (d Dataset) OwnerGroupID() string  { return d.GroupID }
func (d Dataset) Kind() RefreshableKind { return KindDataset }

// Dataflow is a refreshable data preparation artifact owned by a group.
// Its refresh jobs are called transactions by the service.
type Dataflow struct {
	ID           string
	Name         string
	GroupID      string
	GroupName    string
	Description  string
	ConfiguredBy string
	Generation   int
}

// HistoryPath lists the dataflow's refresh transactions.
func (f Dataflow) HistoryPath() string {
	return fmt.Sprintf("/groups/%s/dataflows/%s/transactions", f.GroupID, f.ID)
}

// StartRefreshPath is the POST target that submits a refresh.
func (f Dataflow) StartRefreshPath() string {
	return fmt.Sprintf("/groups/%s/dataflows/%s/refreshes?processType=default", f.GroupID, f.ID)
}

// cancelPath addresses an in-flight transaction's cancel endpoint.
func (f Dataflow) cancelPath(transactionID string) string {
	return fmt.Sprintf("/groups/%s/dataflows/transactions/%s/cancel", f.GroupID, transactionID)
}

func (f Dataflow) ResourceID() string    { return f.ID }
func (f Dataflow) ResourceName() string  { return f.Name }
func (f Dataflow) OwnerGroupID() string  { return f.GroupID }
func (f Dataflow) Kind() RefreshableKind { return KindDataflow }

// RefreshableKind distinguishes the two resource kinds supporting refresh.
type RefreshableKind string

const (
	KindDataset  RefreshableKind = "dataset"
	KindDataflow RefreshableKind = "dataflow"
)

// Refreshable is the closed set of resources supporting refresh and cancel:
// Dataset and Dataflow. Session operations dispatch on the concrete type.
type Refreshable interface {
	ResourceID() string
	ResourceName() string
	OwnerGroupID() string
	Kind() RefreshableKind
	HistoryPath() string
	StartRefreshPath() string
}

// Report is a visualization artifact owned by a group.
type Report struct {
	ID          string
	Name        string
	GroupID     string
	GroupName   string
	ReportType  string
	WebURL      string
	EmbedURL    string
	DatasetID   string
	Description string
}

func (r Report) pagesPath() string {
	return fmt.Sprintf("/groups/%s/reports/%s/pages", r.GroupID, r.ID)
}

// Page is a single page of a report.
type Page struct {
	Name       string
	Order      int
	ReportID   string
	ReportName string
	GroupID    string
}

// Schedule is a dataset's refresh schedule.
type Schedule struct {
	Days            []string
	Times           []string
	Enabled         bool
	LocalTimeZoneID string
	NotifyOption    string
	DatasetID       string
	DatasetName     string
	GroupID         string
}

// RefreshStatus is the normalized status vocabulary for refresh records.
type RefreshStatus string

const (
	StatusPending    RefreshStatus = "Pending"
	StatusInProgress RefreshStatus = "InProgress"
	StatusCompleted  RefreshStatus = "Completed"
	StatusFailed     RefreshStatus = "Failed"
	StatusCancelled  RefreshStatus = "Cancelled"
)

// ParseRefreshStatus normalizes the service's status vocabulary into ours.
// "Success" means completed, "Unknown" means still running, "Cancelling"
// collapses into Cancelled. Anything unrecognized is treated as Failed.
func ParseRefreshStatus(raw string) RefreshStatus {
	switch strings.ToLower(raw) {
	case "success", "completed":
		return StatusCompleted
	case "unknown", "inprogress":
		return StatusInProgress
	case "cancelling", "cancelled":
		return StatusCancelled
	case "pending":
		return StatusPending
	case "failed":
		return StatusFailed
	default:
		return StatusFailed
	}
}

// Record is one refresh job: a Refresh for datasets, a Transaction for
// dataflows. Records are immutable snapshots; polling fetches new ones and
// compares by StartTime and Status, never patches in place.
type Record struct {
	ID           string
	Status       RefreshStatus
	RefreshType  string
	StartTime    time.Time
	EndTime      time.Time // zero while the job is running
	ErrorDetail  string
	ResourceID   string
	ResourceName string
	GroupID      string
}

// InProgress reports whether the job is still running.
func (r Record) InProgress() bool {
	return r.Status == StatusInProgress
}

// Duration returns EndTime - StartTime. ok is false while the job has no
// end time yet.
func (r Record) Duration() (time.Duration, bool) {
	if r.EndTime.IsZero() {
		return 0, false
	}

	return r.EndTime.Sub(r.StartTime), true
}

// Raw response mirrors. Unexported: callers only ever see the normalized
// types above.

type groupResponse struct {
	ID                          string `json:"id"`
	Name                        string `json:"name"`
	Type                        string `json:"type"`
	IsReadOnly                  bool   `json:"isReadOnly"`
	IsOnDedicatedCapacity       bool   `json:"isOnDedicatedCapacity"`
	CapacityID                  string `json:"capacityId"`
	DefaultDatasetStorageFormat string `json:"defaultDatasetStorageFormat"`
}

func (g *groupResponse) toGroup() Group {
	return Group{
		ID:                          g.ID,
		Name:                        g.Name,
		Type:                        g.Type,
		IsReadOnly:                  g.IsReadOnly,
		IsOnDedicatedCapacity:       g.IsOnDedicatedCapacity,
		CapacityID:                  g.CapacityID,
		DefaultDatasetStorageFormat: g.DefaultDatasetStorageFormat,
	}
}

type datasetResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	WebURL            string `json:"webUrl"`
	IsRefreshable     bool   `json:"isRefreshable"`
	CreatedDate       string `json:"createdDate"`
	Description       string `json:"description"`
	ConfiguredBy      string `json:"configuredBy"`
	TargetStorageMode string `json:"targetStorageMode"`
}

func (d *datasetResponse) toDataset(owner Group) Dataset {
	return Dataset{
		ID:            d.ID,
		Name:          d.Name,
		GroupID:       owner.ID,
		GroupName:     owner.Name,
		WebURL:        d.WebURL,
		IsRefreshable: d.IsRefreshable,
		CreatedDate:   d.CreatedDate,
		Description:   d.Description,
		ConfiguredBy:  d.ConfiguredBy,
		StorageMode:   d.TargetStorageMode,
	}
}

type dataflowResponse struct {
	// The service identifies dataflows by objectId, not id.
	ObjectID     string `json:"objectId"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ConfiguredBy string `json:"configuredBy"`
	Generation   int    `json:"generation"`
}

func (f *dataflowResponse) toDataflow(owner Group) Dataflow {
	return Dataflow{
		ID:           f.ObjectID,
		Name:         f.Name,
		GroupID:      owner.ID,
		GroupName:    owner.Name,
		Description:  f.Description,
		ConfiguredBy: f.ConfiguredBy,
		Generation:   f.Generation,
	}
}

type reportResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReportType  string `json:"reportType"`
	WebURL      string `json:"webUrl"`
	EmbedURL    string `json:"embedUrl"`
	DatasetID   string `json:"datasetId"`
	Description string `json:"description"`
}

func (r *reportResponse) toReport(owner Group) Report {
	return Report{
		ID:          r.ID,
		Name:        r.Name,
		GroupID:     owner.ID,
		GroupName:   owner.Name,
		ReportType:  r.ReportType,
		WebURL:      r.WebURL,
		EmbedURL:    r.EmbedURL,
		DatasetID:   r.DatasetID,
		Description: r.Description,
	}
}

type pageResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Order       int    `json:"order"`
}

func (p *pageResponse) toPage(owner Report) Page {
	name := p.DisplayName
	if name == "" {
		name = p.Name
	}

	return Page{
		Name:       name,
		Order:      p.Order,
		ReportID:   owner.ID,
		ReportName: owner.Name,
		GroupID:    owner.GroupID,
	}
}

type scheduleResponse struct {
	Days            []string `json:"days"`
	Times           []string `json:"times"`
	Enabled         bool     `json:"enabled"`
	LocalTimeZoneID string   `json:"localTimeZoneId"`
	NotifyOption    string   `json:"notifyOption"`
}

func (s *scheduleResponse) toSchedule(owner Dataset) Schedule {
	return Schedule{
		Days:            s.Days,
		Times:           s.Times,
		Enabled:         s.Enabled,
		LocalTimeZoneID: s.LocalTimeZoneID,
		NotifyOption:    s.NotifyOption,
		DatasetID:       owner.ID,
		DatasetName:     owner.Name,
		GroupID:         owner.GroupID,
	}
}

type refreshResponse struct {
	RequestID            string `json:"requestId"`
	RefreshType          string `json:"refreshType"`
	StartTime            string `json:"startTime"`
	EndTime              string `json:"endTime"`
	Status               string `json:"status"`
	ServiceExceptionJSON string `json:"serviceExceptionJson"`
}

func (r *refreshResponse) toRecord(owner Dataset) Record {
	return Record{
		ID:           r.RequestID,
		Status:       ParseRefreshStatus(r.Status),
		RefreshType:  r.RefreshType,
		StartTime:    parseServiceTime(r.StartTime),
		EndTime:      parseServiceTime(r.EndTime),
		ErrorDetail:  r.ServiceExceptionJSON,
		ResourceID:   owner.ID,
		ResourceName: owner.Name,
		GroupID:      owner.GroupID,
	}
}

type transactionResponse struct {
	ID          string `json:"id"`
	RefreshType string `json:"refreshType"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Status      string `json:"status"`
	ErrorInfo   string `json:"errorInfo"`
}

func (t *transactionResponse) toRecord(owner Dataflow) Record {
	return Record{
		ID:           t.ID,
		Status:       ParseRefreshStatus(t.Status),
		RefreshType:  t.RefreshType,
		StartTime:    parseServiceTime(t.StartTime),
		EndTime:      parseServiceTime(t.EndTime),
		ErrorDetail:  t.ErrorInfo,
		ResourceID:   owner.ID,
		ResourceName: owner.Name,
		GroupID:      owner.GroupID,
	}
}

// parseServiceTime parses the service's timestamp formats. The API is
// inconsistent about fractional seconds and zone suffixes, so several
// layouts are tried; unparseable or empty input yields the zero time.
func parseServiceTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}
