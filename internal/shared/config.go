package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Destination kinds accepted by [DestinationConfig.Kind].
const (
	DestinationReminders   = "reminders"
	DestinationGoogleTasks = "google"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Calendar    CalendarConfig    `toml:"calendar"`
	Classifier  ClassifierConfig  `toml:"classifier"`
	Sync        SyncConfig        `toml:"sync"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// DatabaseConfig contains database connection settings for the sync record store.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SourceConfig locates the Things database. An empty path triggers discovery.
type SourceConfig struct {
	DatabasePath string `toml:"database_path"`
}

// DestinationConfig selects and tunes the reminders destination.
type DestinationConfig struct {
	Kind            string        `toml:"kind"`
	Timeout         time.Duration `toml:"timeout"`
	WritesPerSecond float64       `toml:"writes_per_second"`
	Google          GoogleConfig  `toml:"google"`
}

// GoogleConfig contains Google Tasks OAuth file locations.
type GoogleConfig struct {
	CredentialsPath string `toml:"credentials_path"`
	TokenPath       string `toml:"token_path"`
}

// CalendarConfig holds the fallback calendar and tag routing rules.
type CalendarConfig struct {
	Default string              `toml:"default"`
	Rules   map[string][]string `toml:"rules"`
}

// ClassifierConfig configures the external command used to pick calendars.
type ClassifierConfig struct {
	Enabled           bool          `toml:"enabled"`
	Command           string        `toml:"command"`
	Args              []string      `toml:"args"`
	Timeout           time.Duration `toml:"timeout"`
	Workers           int           `toml:"workers"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
}

// SyncConfig contains engine tuning values.
type SyncConfig struct {
	BatchSize              int `toml:"batch_size"`
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
}

// ServerConfig contains the local OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
func SaveConfig(config *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Validate checks values the engine cannot run without.
func (c *Config) Validate() error {
	var problems []string

	switch c.Destination.Kind {
	case DestinationReminders, DestinationGoogleTasks:
	default:
		problems = append(problems, fmt.Sprintf("destination.kind must be %q or %q, got %q",
			DestinationReminders, DestinationGoogleTasks, c.Destination.Kind))
	}

	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Sync.BatchSize < 0 {
		problems = append(problems, "sync.batch_size cannot be negative")
	}
	if c.Sync.MaxConsecutiveFailures < 0 {
		problems = append(problems, "sync.max_consecutive_failures cannot be negative")
	}
	if c.Destination.WritesPerSecond < 0 {
		problems = append(problems, "destination.writes_per_second cannot be negative")
	}
	if c.Classifier.Enabled && c.Classifier.Command == "" {
		problems = append(problems, "classifier.command is required when the classifier is enabled")
	}
	if c.Classifier.Workers < 0 {
		problems = append(problems, "classifier.workers cannot be negative")
	}
	if c.Destination.Kind == DestinationGoogleTasks && c.Destination.Google.CredentialsPath == "" {
		problems = append(problems, "destination.google.credentials_path is required for google tasks")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
