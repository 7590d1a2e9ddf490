// Package jobrunner consumes report messages from the broker and drives each report to a terminal status.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
	apperrors "github.com/target/mmk-reports/internal/errors"
	"github.com/target/mmk-reports/internal/observability/metrics"
	"github.com/target/mmk-reports/internal/observability/statsd"
	"github.com/target/mmk-reports/internal/service"
)

// DefaultSessionWait is how long the runner waits before asking for a session again.
const DefaultSessionWait = time.Second

// Processor generates the artifact for a report.
type Processor interface {
	Process(ctx context.Context, jobID string, typ model.ReportType, params model.Parameters) (*service.ProcessResult, error)
}

// RunnerOptions configures the consumer loop.
type RunnerOptions struct {
	Repo      core.ReportRepository // Required: job store
	Sessions  core.SessionProvider  // Required: broker session accessor
	Processor Processor             // Required: report generation
	Logger    *slog.Logger
	Metrics   statsd.Sink

	TimeProvider data.TimeProvider // defaults to real time
	SessionWait  time.Duration     // wait between session lookups; defaults to DefaultSessionWait
}

// Runner is the single consumer of the report queue in a worker process.
// Deliveries are handled one at a time and each ends with exactly one ack or nack.
type Runner struct {
	repo        core.ReportRepository
	sessions    core.SessionProvider
	processor   Processor
	clock       data.TimeProvider
	logger      *slog.Logger
	metrics     statsd.Sink
	sessionWait time.Duration
}

// NewRunner validates opts and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("report repository is required")
	case opts.Sessions == nil:
		return nil, errors.New("session provider is required")
	case opts.Processor == nil:
		return nil, errors.New("report processor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	wait := opts.SessionWait
	if wait <= 0 {
		wait = DefaultSessionWait
	}

	return &Runner{
		repo:        opts.Repo,
		sessions:    opts.Sessions,
		processor:   opts.Processor,
		clock:       clock,
		logger:      logger.With("component", "report_runner"),
		metrics:     opts.Metrics,
		sessionWait: wait,
	}, nil
}

// Run consumes until ctx is canceled. When the session ends the runner waits for the
// connection manager to install a new one and resumes consuming from it.
// Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting report runner")

	for ctx.Err() == nil {
		sess, err := r.sessions.Session()
		if err != nil {
			r.logger.DebugContext(ctx, "waiting for broker session", "error", err)
			r.wait(ctx)
			continue
		}

		deliveries, err := sess.Consume(ctx)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to start consumer", "error", err)
			r.wait(ctx)
			continue
		}

		r.logger.InfoContext(ctx, "consuming report queue")
		r.drain(ctx, deliveries)

		if ctx.Err() == nil {
			r.logger.WarnContext(ctx, "delivery channel closed, waiting for reconnect")
			r.wait(ctx)
		}
	}

	r.logger.InfoContext(ctx, "report runner stopping", "reason", ctx.Err())
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) wait(ctx context.Context) {
	t := time.NewTimer(r.sessionWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// drain handles deliveries sequentially until the channel closes. Cancellation stops
// receiving but never interrupts the delivery in flight.
func (r *Runner) drain(ctx context.Context, deliveries <-chan core.Delivery) {
	handleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			r.Handle(handleCtx, d)
		}
	}
}

// Handle runs one delivery through the report lifecycle and settles it:
//
//	pending|processing → processing → completed, then ack
//	any processing error → failed, then nack without requeue
//
// A redelivered message for a report that already reached a terminal status is acked
// and dropped. Unknown reports and undecodable bodies are nacked.
func (r *Runner) Handle(ctx context.Context, d core.Delivery) {
	start := r.clock.Now()

	msg, err := model.DecodeQueueMessage(d.Body())
	if err != nil {
		r.logger.ErrorContext(ctx, "dropping undecodable message", "error", err)
		r.emit("", "decode", metrics.ResultError, 0, apperrors.ProcessingFailure(err, "decode message"))
		r.nack(ctx, d, "")
		return
	}

	log := r.logger.With("report_id", msg.JobID, "report_type", msg.Type)
	typ := string(msg.Type)

	if _, err := r.repo.MarkProcessing(ctx, msg.JobID, start); err != nil {
		switch {
		case errors.Is(err, data.ErrInvalidTransition):
			log.InfoContext(ctx, "report already finished, dropping duplicate delivery")
			r.emit(typ, "processing", metrics.ResultNoop, 0, nil)
			r.ack(ctx, d, msg.JobID)
		case errors.Is(err, data.ErrReportNotFound):
			log.WarnContext(ctx, "report not found, rejecting message")
			r.emit(typ, "processing", metrics.ResultError, 0, apperrors.ProcessingFailure(err, "report missing"))
			r.nack(ctx, d, msg.JobID)
		default:
			log.ErrorContext(ctx, "failed to mark report processing", "error", err)
			r.fail(ctx, log, msg, start, fmt.Errorf("mark processing: %w", err))
			r.nack(ctx, d, msg.JobID)
		}
		return
	}
	r.emit(typ, "processing", metrics.ResultSuccess, 0, nil)
	log.InfoContext(ctx, "processing report")

	res, err := r.processor.Process(ctx, msg.JobID, msg.Type, msg.Parameters)
	if err != nil {
		r.fail(ctx, log, msg, start, err)
		r.nack(ctx, d, msg.JobID)
		return
	}

	if _, err := r.repo.Complete(ctx, model.CompleteReportRequest{
		ID:          msg.JobID,
		ArtifactRef: res.ArtifactRef,
		CompletedAt: r.clock.Now(),
	}); err != nil {
		r.fail(ctx, log, msg, start, fmt.Errorf("complete report: %w", err))
		r.nack(ctx, d, msg.JobID)
		return
	}

	elapsed := r.clock.Now().Sub(start)
	r.emit(typ, "completed", metrics.ResultSuccess, elapsed, nil)
	log.InfoContext(ctx, "report completed", "artifact_ref", res.ArtifactRef, "duration", elapsed)
	r.ack(ctx, d, msg.JobID)
}

// fail records cause on the report. A store error here is only logged; the delivery is
// nacked either way and the report may stay in processing.
func (r *Runner) fail(ctx context.Context, log *slog.Logger, msg model.QueueMessage, start time.Time, cause error) {
	perr := apperrors.ProcessingFailure(cause, "report processing failed")
	log.ErrorContext(ctx, "report failed", "error", cause)

	if _, err := r.repo.Fail(ctx, model.FailReportRequest{
		ID:           msg.JobID,
		ErrorMessage: cause.Error(),
		CompletedAt:  r.clock.Now(),
	}); err != nil {
		log.ErrorContext(ctx, "failed to mark report failed", "error", err, "original_error", cause)
	}
	r.emit(string(msg.Type), "failed", metrics.ResultError, r.clock.Now().Sub(start), perr)
}

func (r *Runner) ack(ctx context.Context, d core.Delivery, id string) {
	if err := d.Ack(); err != nil {
		r.logger.ErrorContext(ctx, "ack failed", "report_id", id, "error", err)
	}
}

func (r *Runner) nack(ctx context.Context, d core.Delivery, id string) {
	if err := d.Nack(); err != nil {
		r.logger.ErrorContext(ctx, "nack failed", "report_id", id, "error", err)
	}
}

func (r *Runner) emit(reportType, transition, result string, d time.Duration, err error) {
	metrics.EmitReportLifecycle(r.metrics, metrics.ReportMetric{
		ReportType: reportType,
		Transition: transition,
		Result:     result,
		Duration:   d,
		Err:        err,
	})
}
