package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the agent's runtime configuration.
type Config struct {
	Listen      string `yaml:"listen"`
	Interpreter string `yaml:"interpreter"`
	Shell       string `yaml:"shell"`
	LogLevel    string `yaml:"log_level"`
	LogEcho     bool   `yaml:"log_echo"`
	EnforcePin  bool   `yaml:"enforce_pin"`
	Journal     string `yaml:"journal"`
	EnvFile     string `yaml:"env_file"`
	Telemetry   bool   `yaml:"telemetry"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() Config {
	interp := "python3"
	if runtime.GOOS == "windows" {
		interp = "python"
	}
	return Config{
		Listen:      "0.0.0.0:63554",
		Interpreter: interp,
		LogLevel:    "info",
		Telemetry:   true,
	}
}

// LoadConfig reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/panda-agent/config.yaml or ~/.config/panda-agent/config.yaml,
// and a missing file there just yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "panda-agent", "config.yaml")
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("open config: %w", err)
	}

	if v := os.Getenv("PANDA_AGENT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PANDA_AGENT_INTERPRETER"); v != "" {
		cfg.Interpreter = v
	}
	return cfg, nil
}
