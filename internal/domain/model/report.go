// Package model defines the data types shared by the report job pipeline.
package model

import (
	"errors"
	"strings"
	"time"
)

// ReportType identifies which report generator handles a job.
type ReportType string

// ReportStatus is the lifecycle state of a report job.
type ReportStatus string

const (
	// ReportTypeSales summarizes sales volume, orders and top customers.
	ReportTypeSales ReportType = "sales"
	// ReportTypeUsers summarizes user counts and segmentation.
	ReportTypeUsers ReportType = "users"
	// ReportTypeProducts summarizes catalog and stock levels.
	ReportTypeProducts ReportType = "products"
	// ReportTypeFinancial summarizes revenue, expenses and cash flow.
	ReportTypeFinancial ReportType = "financial"

	// ReportStatusPending indicates the job is persisted and waiting for a consumer.
	ReportStatusPending ReportStatus = "pending"
	// ReportStatusProcessing indicates a consumer has taken the job.
	ReportStatusProcessing ReportStatus = "processing"
	// ReportStatusCompleted indicates the artifact was generated.
	ReportStatusCompleted ReportStatus = "completed"
	// ReportStatusFailed indicates processing ended with an error.
	ReportStatusFailed ReportStatus = "failed"
)

// DefaultOwnerID is assigned when a submission carries no owner.
const DefaultOwnerID = "user-123"

// ErrUnsupportedType is returned when no generator exists for a report type.
var ErrUnsupportedType = errors.New("unsupported report type")

// ReportTypes returns the closed set of report types in a stable order.
func ReportTypes() []ReportType {
	return []ReportType{ReportTypeSales, ReportTypeUsers, ReportTypeProducts, ReportTypeFinancial}
}

// ReportStatuses returns every status in lifecycle order.
func ReportStatuses() []ReportStatus {
	return []ReportStatus{
		ReportStatusPending,
		ReportStatusProcessing,
		ReportStatusCompleted,
		ReportStatusFailed,
	}
}

// Valid returns true if the ReportType is one of the supported types.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeSales, ReportTypeUsers, ReportTypeProducts, ReportTypeFinancial:
		return true
	default:
		return false
	}
}

// Valid returns true if the ReportStatus is known.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusPending, ReportStatusProcessing, ReportStatusCompleted, ReportStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusCompleted || s == ReportStatusFailed
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// The only edges are pending→processing, processing→processing (redelivery),
// and processing→completed|failed.
func (s ReportStatus) CanTransition(next ReportStatus) bool {
	switch s {
	case ReportStatusPending:
		return next == ReportStatusProcessing
	case ReportStatusProcessing:
		return next == ReportStatusProcessing || next.Terminal()
	default:
		return false
	}
}

// Report is a report generation job as stored in the job store.
type Report struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"ownerId"`
	Type         ReportType   `json:"type"`
	Status       ReportStatus `json:"status"`
	Parameters   Parameters   `json:"parameters"`
	ArtifactRef  *string      `json:"artifactRef,omitempty"`
	ErrorMessage *string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// SubmitReportRequest is the input of the submission path.
type SubmitReportRequest struct {
	Type       ReportType `json:"type"`
	Parameters Parameters `json:"parameters,omitempty"`
	OwnerID    string     `json:"ownerId,omitempty"`
}

// Normalize trims the owner and fills defaults that the store requires. Type is left
// untouched; it must match one of the ReportType constants exactly.
func (r *SubmitReportRequest) Normalize() {
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	if r.Parameters == nil {
		r.Parameters = Parameters{}
	}
}

// CompleteReportRequest carries the side effects of the processing→completed transition.
type CompleteReportRequest struct {
	ID          string
	ArtifactRef string
	CompletedAt time.Time
}

// FailReportRequest carries the side effects of the processing→failed transition.
type FailReportRequest struct {
	ID           string
	ErrorMessage string
	CompletedAt  time.Time
}

// ReportStatusResult is returned by the read path.
type ReportStatusResult struct {
	Report    *Report `json:"report"`
	FromCache bool    `json:"fromCache"`
}

// ReportListOptions selects a page of reports ordered by created_at descending.
type ReportListOptions struct {
	Limit  int
	Offset int
}

// ReportPage is one page of the report listing.
type ReportPage struct {
	Reports []*Report `json:"reports"`
	Total   int64     `json:"total"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
	Pages   int       `json:"pages"`
}

// ReportStats counts reports per status.
type ReportStats struct {
	Total    int64                  `json:"total"`
	ByStatus map[ReportStatus]int64 `json:"byStatus"`
}

// NewReportStats returns stats with every status present and zeroed.
func NewReportStats() *ReportStats {
	s := &ReportStats{ByStatus: make(map[ReportStatus]int64, len(ReportStatuses()))}
	for _, st := range ReportStatuses() {
		s.ByStatus[st] = 0
	}
	return s
}

// Add records n reports in status st and updates the total.
func (s *ReportStats) Add(st ReportStatus, n int64) {
	s.ByStatus[st] += n
	s.Total += n
}

// StaleReportCounts is what the stale-job monitor observes in one sweep.
type StaleReportCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
}
