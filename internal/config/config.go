package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the lspup configuration for the managed language server.
type Config struct {
	Version  int            `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	Download DownloadConfig `yaml:"download"`
}

// ServerConfig describes which server to manage and how to launch it.
type ServerConfig struct {
	// Repo is the GitHub "owner/name" the binary is released from.
	Repo string `yaml:"repo"`
	// Asset is the exact release asset name to download. Empty selects a
	// platform default for the configured repo.
	Asset string `yaml:"asset"`
	// Exec is an absolute path to a user-supplied server binary. When set,
	// the managed download is bypassed entirely.
	Exec string `yaml:"exec"`
	// Subcommand is the fixed first argument passed to the server.
	Subcommand string `yaml:"subcommand"`
	// Args are extra command-line arguments appended after the subcommand.
	Args []string `yaml:"args"`
	// StopTimeoutSec bounds the graceful shutdown of the server process
	// before it is forcefully killed.
	StopTimeoutSec int `yaml:"stop_timeout_s"`
}

// DownloadConfig tunes network behaviour for release lookups and downloads.
type DownloadConfig struct {
	TimeoutSec int `yaml:"timeout_s"`
}

// Default returns the baseline configuration, managing marksman.
func Default() Config {
	return Config{
		Version: 1,
		Server: ServerConfig{
			Repo:           "artempyanykh/marksman",
			Asset:          defaultAssetName(),
			Subcommand:     "server",
			StopTimeoutSec: 3,
		},
		Download: DownloadConfig{
			TimeoutSec: 120,
		},
	}
}

func defaultAssetName() string {
	switch runtime.GOOS {
	case "darwin":
		return "marksman-macos"
	case "windows":
		return "marksman.exe"
	default:
		if runtime.GOARCH == "arm64" {
			return "marksman-linux-arm64"
		}
		return "marksman-linux-x64"
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise
// returns the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.Server.Repo) == "" {
		c.Server.Repo = def.Server.Repo
	}
	if strings.TrimSpace(c.Server.Asset) == "" {
		c.Server.Asset = def.Server.Asset
	}
	if strings.TrimSpace(c.Server.Subcommand) == "" {
		c.Server.Subcommand = def.Server.Subcommand
	}
	if c.Server.StopTimeoutSec <= 0 {
		c.Server.StopTimeoutSec = def.Server.StopTimeoutSec
	}
	if c.Download.TimeoutSec <= 0 {
		c.Download.TimeoutSec = def.Download.TimeoutSec
	}
}

func (c Config) validate() error {
	if !strings.Contains(c.Server.Repo, "/") {
		return fmt.Errorf("server.repo %q must be of the form owner/name", c.Server.Repo)
	}
	return nil
}

// ManagedDownload reports whether lspup manages the server binary itself,
// as opposed to running a user-supplied executable.
func (c Config) ManagedDownload() bool {
	return strings.TrimSpace(c.Server.Exec) == ""
}
