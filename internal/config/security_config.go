package config

import "time"

type SecurityConfig interface {
	GetMaxSessionAge() time.Duration
	GetAuthFlowTimeout() time.Duration
	GetMaxSessions() int
	GetEnableRateLimiting() bool
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
}

type Security struct {
	MaxSessionAge      time.Duration `env:"PORTAL_SESSION_MAX_AGE" envDefault:"8h"`
	AuthFlowTimeout    time.Duration `env:"PORTAL_AUTH_FLOW_TIMEOUT" envDefault:"10m"`
	MaxSessions        int           `env:"PORTAL_MAX_SESSIONS" envDefault:"10000"`
	EnableRateLimiting bool          `env:"PORTAL_RATE_LIMITING" envDefault:"true"`
	LoginRateLimit     float64       `env:"PORTAL_LOGIN_RATE" envDefault:"1"`
	LoginRateBurst     int           `env:"PORTAL_LOGIN_BURST" envDefault:"5"`
}

var _ SecurityConfig = Security{}

func (s Security) GetMaxSessionAge() time.Duration {
	return s.MaxSessionAge
}

// GetAuthFlowTimeout bounds how long a started login may take to come back
// through the callback.
func (s Security) GetAuthFlowTimeout() time.Duration {
	return s.AuthFlowTimeout
}

func (s Security) GetMaxSessions() int {
	return s.MaxSessions
}

func (s Security) GetEnableRateLimiting() bool {
	return s.EnableRateLimiting
}

func (s Security) GetLoginRateLimit() float64 {
	return s.LoginRateLimit
}

func (s Security) GetLoginRateBurst() int {
	return s.LoginRateBurst
}
