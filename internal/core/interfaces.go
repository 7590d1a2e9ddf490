// Package core defines the ports of the report pipeline and the small services built directly on them.
package core

import (
	"context"
	"time"

	"github.com/target/mmk-reports/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete adapters.

// ReportRepository is the job store. It is the single source of truth for report state.
// Transition methods return data.ErrReportNotFound when the id is unknown and
// data.ErrInvalidTransition when the current status does not allow the move.
type ReportRepository interface {
	Create(ctx context.Context, req *model.SubmitReportRequest) (*model.Report, error)
	GetByID(ctx context.Context, id string) (*model.Report, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) (*model.Report, error)
	Complete(ctx context.Context, req model.CompleteReportRequest) (*model.Report, error)
	Fail(ctx context.Context, req model.FailReportRequest) (*model.Report, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts model.ReportListOptions) ([]*model.Report, error)
	CountByStatus(ctx context.Context) (*model.ReportStats, error)
}

// StaleReportParams selects reports that have sat in a non-terminal status too long.
type StaleReportParams struct {
	PendingOlderThan    time.Time
	ProcessingOlderThan time.Time
}

// StaleReportRepository is read by the stale-job monitor. It never mutates reports.
type StaleReportRepository interface {
	CountStale(ctx context.Context, params StaleReportParams) (*model.StaleReportCounts, error)
}

// ArtifactStore materializes generated reports and returns a reference clients can fetch.
type ArtifactStore interface {
	Write(ctx context.Context, artifact *model.Artifact) (string, error)
}

// Reconciler would republish reports stuck in pending after a lost publish.
// No implementation is wired; stuck reports are only surfaced by the stale-job monitor.
type Reconciler interface {
	Republish(ctx context.Context, params StaleReportParams) (int, error)
}

// DeadLetterSink would receive deliveries that were nacked without requeue.
// No implementation is wired; failed deliveries are dropped by the broker.
type DeadLetterSink interface {
	Capture(ctx context.Context, msg model.QueueMessage, cause error) error
}
