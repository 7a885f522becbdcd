package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Check is one configuration health check result.
type Check struct {
	Name string
	Err  error
}

// Ok reports whether the check passed.
func (c Check) Ok() bool {
	return c.Err == nil
}

// RunChecks verifies the configuration surface without calling any backend:
// the provider is a non-empty string, the kwargs are a valid JSON object,
// and the logs directory is writable. These are the failures that would
// otherwise only surface at run startup.
func RunChecks() []Check {
	_ = godotenv.Load()

	checks := []Check{
		{Name: EnvProvider, Err: checkProvider(os.Getenv(EnvProvider))},
		{Name: EnvKwargsJSON, Err: checkKwargs(os.Getenv(EnvKwargsJSON))},
	}

	runtime, err := loadRuntime(ProjectConfigPath)
	if err != nil {
		checks = append(checks, Check{Name: "runtime config", Err: err})
		return checks
	}
	checks = append(checks, Check{Name: "runtime config", Err: nil})
	checks = append(checks, Check{Name: "logs directory", Err: checkLogsDir(runtime.LogsDir)})
	return checks
}

func checkProvider(provider string) error {
	if strings.TrimSpace(provider) == "" {
		return fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidConfig, EnvProvider)
	}
	return nil
}

func checkKwargs(kwargsJSON string) error {
	_, err := parseKwargs(kwargsJSON)
	return err
}

func checkLogsDir(logsDir string) error {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", logsDir, err)
	}
	probe, err := os.CreateTemp(logsDir, ".datg-doctor-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", logsDir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
