package config

import (
	"strings"
	"time"
)

// StoreBackend names a job store implementation.
type StoreBackend string

// Supported job store backends.
const (
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendMongo    StoreBackend = "mongo"
)

// StoreConfig selects where jobs are persisted.
type StoreConfig struct {
	Backend StoreBackend `env:"STORE_BACKEND" envDefault:"postgres"`
}

// Sanitize falls back to Postgres for unknown backends.
func (s *StoreConfig) Sanitize() {
	s.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(string(s.Backend))))
	if s.Backend != StoreBackendMongo {
		s.Backend = StoreBackendPostgres
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"reports"`
	Password string `env:"PASSWORD" envDefault:"reports"`
	Name     string `env:"NAME"     envDefault:"reports"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// MongoConfig contains MongoDB configuration for the document job store.
type MongoConfig struct {
	URI            string        `env:"URI"             envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"DATABASE"        envDefault:"reports"`
	Collection     string        `env:"COLLECTION"      envDefault:"reports"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// RedisConfig contains Redis configuration shared by the result cache and the stream broker.
type RedisConfig struct {
	URI                string        `env:"URI"                  envDefault:"localhost:6379"`
	Password           string        `env:"PASSWORD"             envDefault:""`
	DB                 int           `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string      `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string        `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string        `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool          `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string      `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool          `env:"USE_CLUSTER"          envDefault:"false"`
	CacheOpTimeout     time.Duration `env:"CACHE_OP_TIMEOUT"     envDefault:"500ms"`
}
