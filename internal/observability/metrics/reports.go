// Package metrics emits the report pipeline's standard metrics through a statsd.Sink.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/mmk-reports/internal/observability/errors"
	"github.com/target/mmk-reports/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Metric names.
const (
	NameReportTransition = "report.transition"
	NameReportDuration   = "report.duration"
	NamePublish          = "report.publish"
	NameCacheLookup      = "report.cache.lookup"
	NameBrokerConnect    = "broker.connect"
	NameStaleReports     = "report.stale"
)

// ReportMetric captures a report lifecycle transition.
type ReportMetric struct {
	ReportType string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitReportLifecycle emits a transition counter and, when a duration is set, a timing.
func EmitReportLifecycle(sink statsd.Sink, in ReportMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"report_type": in.ReportType,
		"transition":  in.Transition,
		"result":      in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(NameReportTransition, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameReportDuration, in.Duration, maps.Clone(tags))
	}
}

// EmitPublish counts a queue publish attempt from the submission path.
func EmitPublish(sink statsd.Sink, reportType string, err error) {
	if sink == nil {
		return
	}
	sink.Count(NamePublish, 1, withResult(map[string]string{"report_type": reportType}, err))
}

// CacheOutcome tags a result cache lookup.
type CacheOutcome string

// Cache outcomes.
const (
	CacheHit   CacheOutcome = "hit"
	CacheMiss  CacheOutcome = "miss"
	CacheError CacheOutcome = "error"
)

// EmitCacheLookup counts a result cache lookup.
func EmitCacheLookup(sink statsd.Sink, outcome CacheOutcome) {
	if sink == nil {
		return
	}
	sink.Count(NameCacheLookup, 1, map[string]string{"outcome": string(outcome)})
}

// EmitBrokerConnect counts one connection attempt made by the connection manager.
func EmitBrokerConnect(sink statsd.Sink, attempt int, err error) {
	if sink == nil {
		return
	}
	tags := withResult(map[string]string{}, err)
	if attempt == 1 {
		tags["first_attempt"] = "true"
	}
	sink.Count(NameBrokerConnect, 1, tags)
}

// EmitStaleReports reports the number of reports stuck in status past its threshold.
func EmitStaleReports(sink statsd.Sink, status string, n int64) {
	if sink == nil {
		return
	}
	sink.Gauge(NameStaleReports, float64(n), map[string]string{"status": status})
}

func withResult(tags map[string]string, err error) map[string]string {
	if err == nil {
		tags["result"] = ResultSuccess
		return tags
	}
	tags["result"] = ResultError
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}
