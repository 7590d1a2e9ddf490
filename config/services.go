package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API (submission and read paths).
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the queue consumer that generates reports.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeMonitor runs the stale job monitor.
	ServiceModeMonitor ServiceMode = "monitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeMonitor}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeMonitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker, monitor)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// MonitorConfig contains stale job monitor configuration.
type MonitorConfig struct {
	// Interval is the monitor tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`

	// PendingMaxAge is how long a job may wait in pending before it is reported as stale.
	PendingMaxAge time.Duration `env:"PENDING_MAX_AGE" envDefault:"10m"`

	// ProcessingMaxAge is how long a job may stay in processing before it is reported as stale.
	ProcessingMaxAge time.Duration `env:"PROCESSING_MAX_AGE" envDefault:"15m"`
}

// Sanitize applies guardrails to monitor configuration values.
func (m *MonitorConfig) Sanitize() {
	if m.Interval < time.Second {
		m.Interval = time.Second
	}
	if m.PendingMaxAge < time.Minute {
		m.PendingMaxAge = time.Minute
	}
	if m.ProcessingMaxAge < time.Minute {
		m.ProcessingMaxAge = time.Minute
	}
}
