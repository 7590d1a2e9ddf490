package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
	apperrors "github.com/target/mmk-reports/internal/errors"
	"github.com/target/mmk-reports/internal/observability/metrics"
	"github.com/target/mmk-reports/internal/observability/statsd"
)

// Pagination bounds for List.
const (
	DefaultPage      = 1
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Repo         core.ReportRepository // Required: job store
	Sessions     core.SessionProvider  // Required: broker session accessor
	Cache        *core.ReportCache     // Optional: result cache; reads go straight to the store when nil
	DefaultOwner string                // Optional: owner assigned when a submission has none
	Logger       *slog.Logger          // Optional: structured logger
	Metrics      statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReportService implements the operations exposed to the HTTP layer:
// Submit, GetStatus, List, Delete and Stats.
//
// Jobs are only created and deleted here. Status transitions belong to the consumer loop.
type ReportService struct {
	repo         core.ReportRepository
	sessions     core.SessionProvider
	cache        *core.ReportCache
	defaultOwner string
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) (*ReportService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReportRepository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionProvider is required")
	}

	owner := opts.DefaultOwner
	if owner == "" {
		owner = model.DefaultOwnerID
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReportService{
		repo:         opts.Repo,
		sessions:     opts.Sessions,
		cache:        opts.Cache,
		defaultOwner: owner,
		logger:       logger.With("component", "report_service"),
		metrics:      opts.Metrics,
	}, nil
}

// MustNewReportService constructs a new ReportService and panics on error.
func MustNewReportService(opts ReportServiceOptions) *ReportService {
	svc, err := NewReportService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReportService: %v", err))
	}
	return svc
}

// Submit persists a pending report and publishes it to the queue.
//
// Publishing is best effort: when no session is available or the publish fails the
// error is logged and the report is still returned as pending.
func (s *ReportService) Submit(ctx context.Context, req model.SubmitReportRequest) (*model.Report, error) {
	req.Normalize()
	if strings.TrimSpace(string(req.Type)) == "" {
		return nil, apperrors.InvalidArgument("type", "report type is required")
	}
	if !req.Type.Valid() {
		return nil, apperrors.InvalidArgumentf("type", "unsupported report type %q", req.Type)
	}
	if req.OwnerID == "" {
		req.OwnerID = s.defaultOwner
	}

	report, err := s.repo.Create(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", apperrors.MapDBError(err))
	}

	log := s.logger.With("report_id", report.ID, "report_type", report.Type)
	if err := s.publish(ctx, report); err != nil {
		log.WarnContext(ctx, "report left pending, publish failed", "error", err)
		metrics.EmitPublish(s.metrics, string(report.Type), err)
		return report, nil
	}

	metrics.EmitPublish(s.metrics, string(report.Type), nil)
	log.InfoContext(ctx, "report submitted")
	return report, nil
}

func (s *ReportService) publish(ctx context.Context, report *model.Report) error {
	sess, err := s.sessions.Session()
	if err != nil {
		return err
	}
	body, err := model.NewQueueMessage(report).Encode()
	if err != nil {
		return err
	}
	if err := sess.Publish(ctx, body); err != nil {
		return apperrors.TransientUnavailable(err, "publish report message")
	}
	return nil
}

// GetStatus returns the report with the given id, serving completed reports from the cache when possible.
func (s *ReportService) GetStatus(ctx context.Context, id string) (*model.ReportStatusResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.InvalidArgument("id", "report id must be a UUID")
	}

	if cached := s.cacheGet(ctx, id); cached != nil {
		return &model.ReportStatusResult{Report: cached, FromCache: true}, nil
	}

	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}

	if report.Status == model.ReportStatusCompleted && s.cache != nil {
		if err := s.cache.Put(ctx, report); err != nil {
			s.logger.WarnContext(ctx, "failed to cache completed report", "report_id", id, "error", err)
		}
	}
	return &model.ReportStatusResult{Report: report}, nil
}

// cacheGet returns the cached snapshot or nil. Cache failures are logged and treated as a miss.
func (s *ReportService) cacheGet(ctx context.Context, id string) *model.Report {
	if s.cache == nil {
		return nil
	}
	cached, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "result cache lookup failed, reading store", "report_id", id, "error", err)
		metrics.EmitCacheLookup(s.metrics, metrics.CacheError)
		return nil
	case cached == nil:
		metrics.EmitCacheLookup(s.metrics, metrics.CacheMiss)
		return nil
	default:
		metrics.EmitCacheLookup(s.metrics, metrics.CacheHit)
		return cached
	}
}

// List returns one page of reports, newest first. Page defaults to 1 and limit to 10,
// with limit clamped to 100.
func (s *ReportService) List(ctx context.Context, page, limit int) (*model.ReportPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	switch {
	case limit < 1:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	reports, err := s.repo.List(ctx, model.ReportListOptions{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", apperrors.MapDBError(err))
	}
	stats, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", apperrors.MapDBError(err))
	}
	if reports == nil {
		reports = []*model.Report{}
	}

	return &model.ReportPage{
		Reports: reports,
		Total:   stats.Total,
		Page:    page,
		Limit:   limit,
		Pages:   pageCount(stats.Total, limit),
	}, nil
}

func pageCount(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	l := int64(limit)
	return int((total + l - 1) / l)
}

// Delete removes the report at any status and evicts its cache entry.
func (s *ReportService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.InvalidArgument("id", "report id must be a UUID")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoError(err, id)
	}
	if s.cache != nil {
		if err := s.cache.Evict(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to evict cached report", "report_id", id, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "report deleted", "report_id", id)
	return nil
}

// Stats returns report counts for every status.
func (s *ReportService) Stats(ctx context.Context) (*model.ReportStats, error) {
	stats, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", apperrors.MapDBError(err))
	}
	return stats, nil
}

func (s *ReportService) mapRepoError(err error, id string) error {
	if errors.Is(err, data.ErrReportNotFound) {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeNotFound,
			Message: fmt.Sprintf("report %s not found", id),
			Cause:   err,
		}
	}
	return apperrors.MapDBError(err)
}
