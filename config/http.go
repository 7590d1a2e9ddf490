package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":3000"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// SubmitRateLimit is the sustained submissions per second accepted per process; 0 disables limiting.
	SubmitRateLimit float64 `env:"HTTP_SUBMIT_RATE_LIMIT" envDefault:"50"`
	// SubmitBurst is the token bucket size for submissions.
	SubmitBurst int `env:"HTTP_SUBMIT_BURST" envDefault:"100"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":3000"
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
	if h.SubmitRateLimit < 0 {
		h.SubmitRateLimit = 0
	}
	if h.SubmitBurst < 1 {
		h.SubmitBurst = 1
	}
}
