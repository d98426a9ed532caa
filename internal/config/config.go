package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bot.
type Config struct {
	Matrix     MatrixConfig     `yaml:"matrix"`
	Admin      AdminConfig      `yaml:"admin"`
	Store      StoreConfig      `yaml:"store"`
	Index      IndexConfig      `yaml:"index"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	AutoJoin   AutoJoinConfig   `yaml:"autoJoin"`
	Diffusion  DiffusionConfig  `yaml:"diffusion"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Blacklist  []string         `yaml:"blacklist,omitempty"` // senders excluded from quote sampling
	LinkHost   string           `yaml:"linkHost"`            // base URL for message deep links
	LogLevel   string           `yaml:"logLevel"`
}

type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"userId"`
	Password    string `yaml:"password,omitempty"`
	AccessToken string `yaml:"accessToken,omitempty"` // used instead of password when set
	MediaURL    string `yaml:"mediaUrl,omitempty"`    // media download base override ("" = homeserver)
}

// AdminConfig holds the single privileged identity allowed to run
// administrative commands. Passed explicitly into the components that
// check it; nothing reads it from the environment.
type AdminConfig struct {
	RootUserID string `yaml:"rootUserId"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type IndexConfig struct {
	Path string `yaml:"path"`
}

type DispatcherConfig struct {
	MaxConcurrent int `yaml:"maxConcurrent"` // parallel event handlers
	BufferSize    int `yaml:"bufferSize"`    // inbound event buffer
}

type AutoJoinConfig struct {
	Enabled           bool    `yaml:"enabled"`
	PageLimit         int     `yaml:"pageLimit"`
	StartDelaySeconds int     `yaml:"startDelaySeconds"`
	JoinsPerMinute    float64 `yaml:"joinsPerMinute"`
	JoinBurst         int     `yaml:"joinBurst"`
}

// MetricsConfig controls the optional Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // listen address, e.g. 127.0.0.1:9090
}

type DiffusionConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	Steps          int    `yaml:"steps"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
}

func Defaults() *Config {
	return &Config{
		Matrix: MatrixConfig{
			Homeserver: "https://matrix.org",
		},
		Store: StoreConfig{
			Path: "~/.matrixbot/bot.db",
		},
		Index: IndexConfig{
			Path: "~/.matrixbot/index.db",
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrent: 5,
			BufferSize:    100,
		},
		AutoJoin: AutoJoinConfig{
			Enabled:           true,
			PageLimit:         20,
			StartDelaySeconds: 15,
			JoinsPerMinute:    30,
			JoinBurst:         5,
		},
		Diffusion: DiffusionConfig{
			BaseURL:        "http://localhost:7860",
			TimeoutSeconds: 600,
			Steps:          20,
			Width:          1024,
			Height:         1024,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		LinkHost: "https://matrix.to",
		LogLevel: "info",
	}
}

// DefaultConfigDir returns the default config directory (~/.matrixbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matrixbot"
	}
	return filepath.Join(home, ".matrixbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.Path = ExpandPath(cfg.Store.Path)
	cfg.Index.Path = ExpandPath(cfg.Index.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields the bot cannot run without.
func Validate(cfg *Config) error {
	var errs []string
	if cfg.Matrix.Homeserver == "" {
		errs = append(errs, "matrix.homeserver is required")
	}
	if cfg.Matrix.UserID == "" {
		errs = append(errs, "matrix.userId is required")
	}
	if cfg.Matrix.Password == "" && cfg.Matrix.AccessToken == "" {
		errs = append(errs, "one of matrix.password or matrix.accessToken is required")
	}
	if cfg.Dispatcher.MaxConcurrent < 0 {
		errs = append(errs, "dispatcher.maxConcurrent must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
