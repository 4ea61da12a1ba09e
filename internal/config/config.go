package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName = "agenda"

	// Env overrides applied by ApplyEnv.
	EnvConfig = "AGENDA_CONFIG"
	EnvAPIURL = "AGENDA_API_URL"

	defaultAPIURL  = "http://localhost:3000"
	defaultTimeout = 15 * time.Second
	defaultRefresh = "*/15 * * * *"
)

// Config is the on-disk configuration.
type Config struct {
	// APIURL is the base URL of the agenda backend.
	APIURL string `yaml:"api_url"`

	// DataDir holds the task list and the session. Defaults to
	// ~/.local/share/agenda.
	DataDir string `yaml:"data_dir"`

	// LogFile receives structured logs; defaults to <data_dir>/agenda.log.
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	// Theme is one of classic, neon, mono.
	Theme string `yaml:"theme"`

	// Timeout bounds every HTTP request, e.g. "15s".
	Timeout string `yaml:"timeout"`

	// ExportPath is where `agenda export` writes the iCalendar file.
	ExportPath string `yaml:"export_path"`

	// Refresh is the cron schedule used by `agenda export -watch`.
	Refresh string `yaml:"refresh"`
}

// DefaultPath is $AGENDA_CONFIG or ~/.config/agenda/config.yaml.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".config", appName, "config.yaml"), nil
}

func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing values.
func (c *Config) Normalize() {
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, ".local", "share", appName)
		} else {
			c.DataDir = "." + appName
		}
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, appName+".log")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	switch strings.ToLower(c.Theme) {
	case "classic", "neon", "mono":
		c.Theme = strings.ToLower(c.Theme)
	default:
		c.Theme = "classic"
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
		c.Timeout = defaultTimeout.String()
	}
	if c.ExportPath == "" {
		c.ExportPath = filepath.Join(c.DataDir, appName+".ics")
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
}

// RequestTimeout is Timeout parsed; Normalize guarantees it parses.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

// ApplyEnv lets AGENDA_API_URL override the file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if u := strings.TrimSpace(getenv(EnvAPIURL)); u != "" {
		c.APIURL = strings.TrimRight(u, "/")
	}
}

// Load reads the YAML file at path. On first run (no file) the defaults
// are written there and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".agenda-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
