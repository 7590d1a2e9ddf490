// Package config defines the env-driven configuration for the report service.
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: job store and cache connections
//   - broker.go: durable queue connection and retry policy
//   - reports.go: artifact storage, cache TTL and simulated latency
//   - http.go: HTTP server configuration
//   - services.go: service mode and stale-job monitor configuration
type AppConfig struct {
	// Store selects the job store backend.
	Store StoreConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Mongo    MongoConfig `envPrefix:"MONGO_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Broker configuration
	Broker BrokerConfig `envPrefix:"BROKER_"`

	// Report generation configuration
	Reports ReportsConfig `envPrefix:"REPORTS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker"`

	// Stale job monitor configuration
	Monitor MonitorConfig `envPrefix:"MONITOR_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Store.Sanitize()
	c.Broker.Sanitize()
	c.Reports.Sanitize()
	c.HTTP.Sanitize()
	c.Monitor.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled reports whether mode is listed in SERVICES. An invalid list enables nothing.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
