package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	ConfigFileName = ".walletd.json"
	DataDirName    = ".walletd"
	// EnvPrefix prefixes the environment overrides, e.g. WALLETD_RPC_URL.
	EnvPrefix = "walletd"
)

// NetworkConfig registers a network that is missing from the built-in table.
type NetworkConfig struct {
	ChainID     string `json:"chain_id"`
	Name        string `json:"name"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

// Config holds application-wide settings.
type Config struct {
	RPCURL                   string          `json:"rpc_url" envconfig:"RPC_URL"`
	DataDir                  string          `json:"data_dir,omitempty" envconfig:"DATA_DIR"`
	Port                     int             `json:"port" envconfig:"PORT"`
	ReconcileIntervalSeconds int             `json:"reconcile_interval_seconds" envconfig:"RECONCILE_INTERVAL_SECONDS"`
	RefreshDelaySeconds      int             `json:"refresh_delay_seconds" envconfig:"REFRESH_DELAY_SECONDS"`
	EventPollIntervalSeconds int             `json:"event_poll_interval_seconds" envconfig:"EVENT_POLL_INTERVAL_SECONDS"`
	Networks                 []NetworkConfig `json:"networks,omitempty" ignored:"true"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		RPCURL:                   "http://127.0.0.1:8545",
		Port:                     8080,
		ReconcileIntervalSeconds: 30,
		RefreshDelaySeconds:      5,
		EventPollIntervalSeconds: 2,
	}
}

func (c Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

func (c Config) RefreshDelay() time.Duration {
	return time.Duration(c.RefreshDelaySeconds) * time.Second
}

func (c Config) EventPollInterval() time.Duration {
	return time.Duration(c.EventPollIntervalSeconds) * time.Second
}

// ResolveDataDir returns DataDir, defaulting to ~/.walletd.
func (c Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DataDirName), nil
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

func LoadConfig(r io.Reader) (Config, error) {
	var raw struct {
		RPCURL                   *string         `json:"rpc_url"`
		DataDir                  string          `json:"data_dir"`
		Port                     *int            `json:"port"`
		ReconcileIntervalSeconds *int            `json:"reconcile_interval_seconds"`
		RefreshDelaySeconds      *int            `json:"refresh_delay_seconds"`
		EventPollIntervalSeconds *int            `json:"event_poll_interval_seconds"`
		Networks                 []NetworkConfig `json:"networks"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	cfg.DataDir = raw.DataDir
	cfg.Networks = raw.Networks
	if raw.RPCURL != nil {
		cfg.RPCURL = *raw.RPCURL
	}
	if raw.Port != nil {
		cfg.Port = *raw.Port
	}
	if raw.ReconcileIntervalSeconds != nil {
		cfg.ReconcileIntervalSeconds = *raw.ReconcileIntervalSeconds
	}
	if raw.RefreshDelaySeconds != nil {
		cfg.RefreshDelaySeconds = *raw.RefreshDelaySeconds
	}
	if raw.EventPollIntervalSeconds != nil {
		cfg.EventPollIntervalSeconds = *raw.EventPollIntervalSeconds
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any WALLETD_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("validation failed: port %d out of range", c.Port)
	}
	if c.ReconcileIntervalSeconds <= 0 {
		return fmt.Errorf("validation failed: reconcile_interval_seconds must be positive")
	}
	if c.RefreshDelaySeconds < 0 {
		return fmt.Errorf("validation failed: refresh_delay_seconds must not be negative")
	}
	if c.EventPollIntervalSeconds <= 0 {
		return fmt.Errorf("validation failed: event_poll_interval_seconds must be positive")
	}
	for i, n := range c.Networks {
		if !strings.HasPrefix(strings.ToLower(n.ChainID), "0x") {
			return fmt.Errorf("validation failed: network at index %d has chain id %q, want hex", i, n.ChainID)
		}
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("validation failed: network %s has no name", n.ChainID)
		}
	}
	return nil
}

func SaveConfig(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
