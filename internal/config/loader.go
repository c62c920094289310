package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".ironbelly-tor"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file. Zero values mean "not set" and
// leave the corresponding Config field untouched. Durations use Go syntax
// ("15s", "500ms").
type File struct {
	DataDir        string   `yaml:"dataDir,omitempty"`
	ProxyPort      int      `yaml:"proxyPort,omitempty"`
	ControlHost    string   `yaml:"controlHost,omitempty"`
	ControlPort    int      `yaml:"controlPort,omitempty"`
	CookieFilePath string   `yaml:"cookieFilePath,omitempty"`
	BinaryPath     string   `yaml:"binaryPath,omitempty"`
	ResourceDir    string   `yaml:"resourceDir,omitempty"`
	Bridges        []string `yaml:"bridges,omitempty"`
	JournalDir     string   `yaml:"journalDir,omitempty"`

	ConnectTimeout time.Duration `yaml:"connectTimeout,omitempty"`
	RetryDelay     time.Duration `yaml:"retryDelay,omitempty"`
	PollInterval   time.Duration `yaml:"pollInterval,omitempty"`
	DialTimeout    time.Duration `yaml:"dialTimeout,omitempty"`
	QueryTimeout   time.Duration `yaml:"queryTimeout,omitempty"`
}

// LoadConfigFile reads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Apply copies every set field of f onto cfg.
func (f *File) Apply(cfg *Config) {
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.ControlHost, f.ControlHost)
	setString(&cfg.CookieFilePath, f.CookieFilePath)
	setString(&cfg.BinaryPath, f.BinaryPath)
	setString(&cfg.ResourceDir, f.ResourceDir)
	setString(&cfg.JournalDir, f.JournalDir)

	if f.ProxyPort != 0 {
		cfg.ProxyPort = f.ProxyPort
	}
	if f.ControlPort != 0 {
		cfg.ControlPort = f.ControlPort
	}
	if len(f.Bridges) > 0 {
		cfg.Bridges = append([]string(nil), f.Bridges...)
	}

	setDuration(&cfg.ConnectTimeout, f.ConnectTimeout)
	setDuration(&cfg.RetryDelay, f.RetryDelay)
	setDuration(&cfg.PollInterval, f.PollInterval)
	setDuration(&cfg.DialTimeout, f.DialTimeout)
	setDuration(&cfg.QueryTimeout, f.QueryTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. .ironbelly-tor in the current directory
// 3. config.yaml in the XDG config directory
// 4. .ironbelly-tor in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
