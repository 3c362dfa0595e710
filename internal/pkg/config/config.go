package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Collector  CollectorConfig  `koanf:"collector"`
	Journal    JournalConfig    `koanf:"journal"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Classifier ClassifierConfig `koanf:"classifier"`
	// Users is the demo identity table: login name -> role.
	Users map[string]string `koanf:"users"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// CollectorConfig points at the remote log collector.
type CollectorConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	// FailureLogInterval is the minimum spacing between delivery failure log lines.
	FailureLogInterval time.Duration `koanf:"failure_log_interval"`
}

// JournalConfig enables the local delivery-failure journal. An empty path disables it.
type JournalConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	ServiceName string `koanf:"service_name"`
	Tracing     bool   `koanf:"tracing"`
	Metrics     bool   `koanf:"metrics"`
}

// ClassifierConfig extends the built-in extension table.
type ClassifierConfig struct {
	Extensions map[string][]string `koanf:"extensions"` // category -> extensions
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile loads path (missing is fine) and then RELAY_ environment overrides.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("RELAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RELAY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.port":                    8080,
		"collector.url":                  "http://logstash:5044",
		"collector.timeout":              "2s",
		"collector.failure_log_interval": "10s",
		"telemetry.service_name":         "access-relay",
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Collector.URL = substituteEnvVars(cfg.Collector.URL)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
