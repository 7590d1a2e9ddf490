package config

import (
	"strings"
	"time"
)

// ReportsConfig configures report generation, artifacts and the result cache.
type ReportsConfig struct {
	// Dir is where artifacts are written.
	Dir string `env:"DIR" envDefault:"./reports"`
	// URLPrefix is the public path artifacts are served under.
	URLPrefix string `env:"URL_PREFIX" envDefault:"/reports"`
	// CacheTTL bounds how long a completed report stays in the result cache.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"300s"`
	// DefaultOwner is assigned when a submission carries no owner.
	DefaultOwner string `env:"DEFAULT_OWNER" envDefault:"user-123"`

	// SimulateLatency enables the per-type generation delays below.
	SimulateLatency bool          `env:"SIMULATE_LATENCY" envDefault:"true"`
	SalesDelay      time.Duration `env:"SALES_DELAY"      envDefault:"5s"`
	UsersDelay      time.Duration `env:"USERS_DELAY"      envDefault:"3s"`
	ProductsDelay   time.Duration `env:"PRODUCTS_DELAY"   envDefault:"4s"`
	FinancialDelay  time.Duration `env:"FINANCIAL_DELAY"  envDefault:"6s"`
}

// Sanitize applies guardrails to report configuration values.
func (r *ReportsConfig) Sanitize() {
	if r.Dir = strings.TrimSpace(r.Dir); r.Dir == "" {
		r.Dir = "./reports"
	}
	r.URLPrefix = "/" + strings.Trim(strings.TrimSpace(r.URLPrefix), "/")
	if r.URLPrefix == "/" {
		r.URLPrefix = "/reports"
	}
	if r.CacheTTL <= 0 {
		r.CacheTTL = 300 * time.Second
	}
	if r.DefaultOwner = strings.TrimSpace(r.DefaultOwner); r.DefaultOwner == "" {
		r.DefaultOwner = "user-123"
	}
	for _, d := range []*time.Duration{&r.SalesDelay, &r.UsersDelay, &r.ProductsDelay, &r.FinancialDelay} {
		if *d < 0 {
			*d = 0
		}
	}
}
