package dbpool

import "time"

// Default configuration values.
const (
	DefaultMaxConnections    = 5
	DefaultMaxRetries        = 2
	DefaultAcquireRetries    = 3
	DefaultOperationRetries  = 3
	DefaultRetryDelay        = 1 * time.Second
	DefaultMaxBackoff        = 30 * time.Second
	DefaultConnectionTimeout = 5 * time.Second
	DefaultBusyTimeout       = 3 * time.Second
)

// Config holds every pool sizing and timing knob. All retry delays derive from it.
type Config struct {
	MaxConnections    int           `yaml:"max_connections"`    // fixed pool capacity
	MaxRetries        int           `yaml:"max_retries"`        // connection-creation retries during Initialize
	AcquireRetries    int           `yaml:"acquire_retries"`    // GetConnection polls when the pool is exhausted
	OperationRetries  int           `yaml:"operation_retries"`  // attempts used by Execute
	RetryDelay        time.Duration `yaml:"retry_delay"`        // acquire poll delay and backoff base
	MaxBackoff        time.Duration `yaml:"max_backoff"`        // backoff cap
	BackoffJitter     float64       `yaml:"backoff_jitter"`     // randomization factor in [0, 1), 0 disables jitter
	ConnectionTimeout time.Duration `yaml:"connection_timeout"` // per-attempt deadline
	BusyTimeout       time.Duration `yaml:"busy_timeout"`       // lock wait applied to every connection
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections:    DefaultMaxConnections,
		MaxRetries:        DefaultMaxRetries,
		AcquireRetries:    DefaultAcquireRetries,
		OperationRetries:  DefaultOperationRetries,
		RetryDelay:        DefaultRetryDelay,
		MaxBackoff:        DefaultMaxBackoff,
		ConnectionTimeout: DefaultConnectionTimeout,
		BusyTimeout:       DefaultBusyTimeout,
	}
}

// withDefaults fills zero or out-of-range fields with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.AcquireRetries < 0 {
		c.AcquireRetries = d.AcquireRetries
	}
	if c.OperationRetries <= 0 {
		c.OperationRetries = d.OperationRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		c.BackoffJitter = 0
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = d.ConnectionTimeout
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = d.BusyTimeout
	}
	return c
}
