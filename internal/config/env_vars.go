package config

import (
	"strings"
)

type EnvVars struct {
	Port         string `env:"PORT" envDefault:"8080"`
	AppName      string `env:"APP_NAME" envDefault:"IT HelpDesk Portal"`
	Env          string `env:"ENV" envDefault:"DEV"`
	BaseURL      string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	ServicesFile string `env:"PORTAL_SERVICES_FILE"`
	DemoMode     bool   `env:"PORTAL_DEMO_MODE" envDefault:"false"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

// GetBaseURL returns the public base URL of the portal (e.g., "https://helpdesk.example.com")
// This is used for the default redirect and post-logout targets
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetServicesFile returns the optional YAML catalog path. Empty means the
// embedded catalog is used.
func (e EnvVars) GetServicesFile() string {
	return e.ServicesFile
}

func (e EnvVars) GetDemoMode() bool {
	return e.DemoMode
}
