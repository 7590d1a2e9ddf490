package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/domain/model"
)

var (
	_ core.ReportRepository      = (*ReportRepo)(nil)
	_ core.StaleReportRepository = (*ReportRepo)(nil)
)

// RepoConfig holds configuration options for the report repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// ReportRepo provides PostgreSQL operations for report jobs.
type ReportRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewReportRepo creates a new ReportRepo instance with the given database connection and configuration.
func NewReportRepo(db *sql.DB, cfg RepoConfig) *ReportRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReportRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "report_repo"),
	}
}

const reportColumns = `
  id,
  owner_id,
  type,
  status,
  parameters,
  artifact_ref,
  error_message,
  created_at,
  started_at,
  completed_at
`

const (
	insertReportSQL = `
  INSERT INTO reports (id, owner_id, type, status, parameters, created_at)
  VALUES ($1, $2, $3, 'pending', $4, $5)
  RETURNING` + reportColumns

	selectReportSQL = `SELECT` + reportColumns + `FROM reports WHERE id = $1`

	// Redelivery of a report already in processing restarts its processing window.
	markProcessingSQL = `
  UPDATE reports
  SET status = 'processing', started_at = $2
  WHERE id = $1 AND status IN ('pending', 'processing')
  RETURNING` + reportColumns

	completeReportSQL = `
  UPDATE reports
  SET status = 'completed', artifact_ref = $2, error_message = NULL, completed_at = $3
  WHERE id = $1 AND status = 'processing'
  RETURNING` + reportColumns

	failReportSQL = `
  UPDATE reports
  SET status = 'failed', error_message = $2, artifact_ref = NULL, completed_at = $3
  WHERE id = $1 AND status = 'processing'
  RETURNING` + reportColumns

	listReportsSQL = `SELECT` + reportColumns + `FROM reports ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	countByStatusSQL = `SELECT status, COUNT(*) FROM reports GROUP BY status`

	countStaleSQL = `
  SELECT
    COUNT(*) FILTER (WHERE status = 'pending' AND created_at < $1),
    COUNT(*) FILTER (WHERE status = 'processing' AND started_at < $2)
  FROM reports`
)

// Create persists a new pending report with a freshly generated id.
func (r *ReportRepo) Create(ctx context.Context, req *model.SubmitReportRequest) (*model.Report, error) {
	if req == nil {
		return nil, errors.New("submit report request is required")
	}

	params := req.Parameters
	if params == nil {
		params = model.Parameters{}
	}

	row := r.DB.QueryRowContext(ctx, insertReportSQL,
		uuid.NewString(),
		req.OwnerID,
		req.Type,
		params,
		r.timeProvider.Now().UTC(),
	)
	report, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

// GetByID returns the report with the given id or ErrReportNotFound.
func (r *ReportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReportNotFound
	}

	report, err := scanReport(r.DB.QueryRowContext(ctx, selectReportSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// MarkProcessing moves a pending (or redelivered processing) report to processing.
func (r *ReportRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) (*model.Report, error) {
	return r.transition(ctx, id, markProcessingSQL, startedAt.UTC())
}

// Complete moves a processing report to completed with its artifact reference.
func (r *ReportRepo) Complete(ctx context.Context, req model.CompleteReportRequest) (*model.Report, error) {
	if req.ArtifactRef == "" {
		return nil, errors.New("artifact reference is required")
	}
	return r.transition(ctx, req.ID, completeReportSQL, req.ArtifactRef, req.CompletedAt.UTC())
}

// Fail moves a processing report to failed with an error message.
func (r *ReportRepo) Fail(ctx context.Context, req model.FailReportRequest) (*model.Report, error) {
	if req.ErrorMessage == "" {
		return nil, errors.New("error message is required")
	}
	return r.transition(ctx, req.ID, failReportSQL, req.ErrorMessage, req.CompletedAt.UTC())
}

// transition runs a guarded UPDATE. When no row matches it distinguishes an unknown id
// from a status that does not allow the move.
func (r *ReportRepo) transition(ctx context.Context, id, query string, args ...any) (*model.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReportNotFound
	}

	report, err := scanReport(r.DB.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update report status: %w", err)
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reports WHERE id = $1)`, id).
		Scan(&exists); err != nil {
		return nil, fmt.Errorf("check report exists: %w", err)
	}
	if !exists {
		return nil, ErrReportNotFound
	}
	return nil, ErrInvalidTransition
}

// Delete removes a report regardless of status.
func (r *ReportRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrReportNotFound
	}

	res, err := r.DB.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report rows affected: %w", err)
	}
	if n == 0 {
		return ErrReportNotFound
	}
	return nil
}

// List returns reports ordered by created_at descending.
func (r *ReportRepo) List(ctx context.Context, opts model.ReportListOptions) ([]*model.Report, error) {
	rows, err := r.DB.QueryContext(ctx, listReportsSQL, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.WarnContext(ctx, "close report rows", "error", cerr)
		}
	}()

	reports := make([]*model.Report, 0, opts.Limit)
	for rows.Next() {
		report, scanErr := scanReport(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan report: %w", scanErr)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// CountByStatus aggregates report counts per status.
func (r *ReportRepo) CountByStatus(ctx context.Context) (*model.ReportStats, error) {
	rows, err := r.DB.QueryContext(ctx, countByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			r.logger.WarnContext(ctx, "close stats rows", "error", cerr)
		}
	}()

	stats := model.NewReportStats()
	for rows.Next() {
		var (
			status model.ReportStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan report stats: %w", err)
		}
		stats.Add(status, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report stats: %w", err)
	}
	return stats, nil
}

// CountStale counts reports stuck in pending or processing past the given cutoffs.
func (r *ReportRepo) CountStale(
	ctx context.Context,
	params core.StaleReportParams,
) (*model.StaleReportCounts, error) {
	var out model.StaleReportCounts
	if err := r.DB.QueryRowContext(ctx, countStaleSQL,
		params.PendingOlderThan.UTC(),
		params.ProcessingOlderThan.UTC(),
	).Scan(&out.Pending, &out.Processing); err != nil {
		return nil, fmt.Errorf("count stale reports: %w", err)
	}
	return &out, nil
}

type reportRowScanner interface {
	Scan(dest ...any) error
}

type reportRowData struct {
	artifactRef, errorMessage sql.NullString
	startedAt, completedAt    sql.NullTime
}

func scanReport(scanner reportRowScanner) (*model.Report, error) {
	report := &model.Report{}
	var data reportRowData
	if err := scanner.Scan(
		&report.ID,
		&report.OwnerID,
		&report.Type,
		&report.Status,
		&report.Parameters,
		&data.artifactRef,
		&data.errorMessage,
		&report.CreatedAt,
		&data.startedAt,
		&data.completedAt,
	); err != nil {
		return nil, err
	}

	report.CreatedAt = report.CreatedAt.UTC()
	report.ArtifactRef = cloneNullableString(data.artifactRef)
	report.ErrorMessage = cloneNullableString(data.errorMessage)
	report.StartedAt = cloneNullableTime(data.startedAt)
	report.CompletedAt = cloneNullableTime(data.completedAt)
	return report, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
