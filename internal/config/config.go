// Package config loads the DATG runner configuration.
//
// The chat-completion backend is selected through two environment variables,
// usually kept in a .env file:
//
//	CHAT_COMPLETION_PROVIDER=openai
//	CHAT_COMPLETION_KWARGS_JSON={"api_key": "sk-...", "model": "gpt-4.1"}
//
// Runtime knobs are layered with priority: DATG_* environment variables >
// project config (.datg/config.yml) > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvProvider names the chat-completion backend (e.g. "openai").
	EnvProvider = "CHAT_COMPLETION_PROVIDER"
	// EnvKwargsJSON holds a JSON object of keyword arguments for the backend client.
	EnvKwargsJSON = "CHAT_COMPLETION_KWARGS_JSON"

	// ProjectConfigPath is the optional project-level runtime config file.
	ProjectConfigPath = ".datg/config.yml"

	envPrefix = "DATG_"
)

// Config is the full runner configuration.
type Config struct {
	// Provider is the chat-completion backend identifier.
	Provider string
	// Kwargs are the keyword arguments for the backend client.
	Kwargs CompletionKwargs
	// Runtime holds orchestration knobs.
	Runtime RuntimeConfig
}

// CompletionKwargs mirrors the recognised keys of CHAT_COMPLETION_KWARGS_JSON.
// Unknown keys in the JSON object are ignored.
type CompletionKwargs struct {
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	BaseURL     string        `json:"base_url"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"-"`
}

// RuntimeConfig holds orchestration knobs, settable via DATG_* environment
// variables or the project config file.
type RuntimeConfig struct {
	// LogsDir is where per-run log files are written.
	LogsDir string `koanf:"logs_dir"`
	// MaxParallel caps concurrent task executions.
	MaxParallel int `koanf:"max_parallel"`
	// MaxDepth bounds recursive task decomposition.
	MaxDepth int `koanf:"max_depth"`
	// TimeoutSeconds bounds a whole run.
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// Timeout returns the run timeout as a duration.
func (r RuntimeConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Load reads .env (if present), the process environment, and the optional
// project config file, and validates the result.
func Load() (*Config, error) {
	// Not finding .env is not fatal; variables may be set through other means.
	_ = godotenv.Load()
	return loadFromEnv(os.Getenv(EnvProvider), os.Getenv(EnvKwargsJSON), ProjectConfigPath)
}

func loadFromEnv(provider, kwargsJSON, projectConfigPath string) (*Config, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidConfig, EnvProvider)
	}

	kwargs, err := parseKwargs(kwargsJSON)
	if err != nil {
		return nil, err
	}

	runtime, err := loadRuntime(projectConfigPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		Provider: provider,
		Kwargs:   kwargs,
		Runtime:  runtime,
	}, nil
}

// parseKwargs parses the CHAT_COMPLETION_KWARGS_JSON object.
func parseKwargs(kwargsJSON string) (CompletionKwargs, error) {
	var kwargs CompletionKwargs

	if strings.TrimSpace(kwargsJSON) == "" {
		return kwargs, fmt.Errorf("%w: %s must be set", ErrInvalidConfig, EnvKwargsJSON)
	}

	raw, err := kjson.Parser().Unmarshal([]byte(kwargsJSON))
	if err != nil {
		return kwargs, fmt.Errorf("%w: %s is not a valid JSON object: %v", ErrInvalidConfig, EnvKwargsJSON, err)
	}

	if kwargs.APIKey, err = kwargString(raw, "api_key"); err != nil {
		return kwargs, err
	}
	if kwargs.Model, err = kwargString(raw, "model"); err != nil {
		return kwargs, err
	}
	if kwargs.BaseURL, err = kwargString(raw, "base_url"); err != nil {
		return kwargs, err
	}
	if kwargs.Temperature, err = kwargFloat(raw, "temperature"); err != nil {
		return kwargs, err
	}
	maxTokens, err := kwargInt(raw, "max_tokens")
	if err != nil {
		return kwargs, err
	}
	kwargs.MaxTokens = maxTokens

	timeoutSeconds, err := kwargInt(raw, "timeout_seconds")
	if err != nil {
		return kwargs, err
	}
	kwargs.Timeout = time.Duration(timeoutSeconds) * time.Second

	return kwargs, nil
}

// kwargString returns the string value for key or "" if the key is absent.
func kwargString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: kwarg %s must be a string, got %T", ErrInvalidConfig, key, v)
	}
	return s, nil
}

// kwargFloat returns the numeric value for key or 0 if the key is absent.
func kwargFloat(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: kwarg %s must be a number, got %T", ErrInvalidConfig, key, v)
	}
	return f, nil
}

// kwargInt returns the integer value for key or 0 if the key is absent.
func kwargInt(raw map[string]any, key string) (int, error) {
	f, err := kwargFloat(raw, key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%w: kwarg %s must be an integer, got %v", ErrInvalidConfig, key, f)
	}
	return int(f), nil
}

// loadRuntime layers runtime knobs: defaults < project config < environment.
func loadRuntime(projectConfigPath string) (RuntimeConfig, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return RuntimeConfig{}, fmt.Errorf("setting default %s: %w", key, err)
		}
	}

	if projectConfigPath != "" && fileExists(projectConfigPath) {
		if err := k.Load(file.Provider(projectConfigPath), kyaml.Parser()); err != nil {
			return RuntimeConfig{}, fmt.Errorf("loading %s: %w", projectConfigPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return RuntimeConfig{}, fmt.Errorf("loading environment config: %w", err)
	}

	var runtime RuntimeConfig
	if err := k.Unmarshal("", &runtime); err != nil {
		return RuntimeConfig{}, fmt.Errorf("unmarshaling runtime config: %w", err)
	}

	if err := validateRuntime(runtime); err != nil {
		return RuntimeConfig{}, err
	}

	return runtime, nil
}

func defaults() map[string]any {
	return map[string]any{
		"logs_dir":        "./logs",
		"max_parallel":    4,
		"max_depth":       3,
		"timeout_seconds": 300,
	}
}

func validateRuntime(r RuntimeConfig) error {
	if r.LogsDir == "" {
		return fmt.Errorf("%w: logs_dir cannot be empty", ErrInvalidConfig)
	}
	if r.MaxParallel < 1 {
		return fmt.Errorf("%w: max_parallel must be at least 1, got %d", ErrInvalidConfig, r.MaxParallel)
	}
	if r.MaxDepth < 1 {
		return fmt.Errorf("%w: max_depth must be at least 1, got %d", ErrInvalidConfig, r.MaxDepth)
	}
	if r.TimeoutSeconds < 1 {
		return fmt.Errorf("%w: timeout_seconds must be at least 1, got %d", ErrInvalidConfig, r.TimeoutSeconds)
	}
	return nil
}

// envTransform converts environment variable names to config keys.
// Example: DATG_MAX_PARALLEL -> max_parallel
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, envPrefix))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
