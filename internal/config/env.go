package config

import (
	"os"
	"strconv"
)

const (
	envConfigPath            = "GATEWAYD_CONFIG_PATH"
	envAppName               = "GATEWAYD_APP_NAME"
	envPollPeriodSecOverride = "GATEWAYD_POLL_PERIOD_SECONDS"
)

const (
	defaultConfigPath = "build/config.json"
	defaultAppName    = "go-oauth-redirector"
)

// EnvVars wraps the small set of environment overrides the process reads at
// startup, mirroring the teacher's env_vars.go accessor pattern.
type EnvVars struct{}

// ConfigPath returns the configuration file path, defaulting to
// "build/config.json" per spec.
func (EnvVars) ConfigPath() string {
	if v := os.Getenv(envConfigPath); v != "" {
		return v
	}
	return defaultConfigPath
}

// AppName returns the process name used in the startup banner and logs.
func (EnvVars) AppName() string {
	if v := os.Getenv(envAppName); v != "" {
		return v
	}
	return defaultAppName
}

// PollPeriodSecondsOverride lets an operator force the config poll period
// without editing the deployed config.json, for environments where the
// file is slow to propagate. Absent or non-numeric disables the override,
// leaving the document's own configSamplePeriod in effect.
func (EnvVars) PollPeriodSecondsOverride() (int, bool) {
	v := os.Getenv(envPollPeriodSecOverride)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
