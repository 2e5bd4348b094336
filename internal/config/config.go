package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Upload   UploadConfig `yaml:"upload"`
	Account  string       `yaml:"account"`
	Version  string       `yaml:"version"`
	LogLevel string       `yaml:"log_level"`
}

type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type UploadConfig struct {
	URL string `yaml:"url"`

	// InlineImageThreshold is the size in bytes under which images are
	// embedded in the message instead of uploaded.
	InlineImageThreshold int64 `yaml:"inline_image_threshold"`
}

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "xuanxuan")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("config is missing server.url")
	}
	if cfg.Upload.InlineImageThreshold <= 0 {
		cfg.Upload.InlineImageThreshold = 10 * 1024
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}
