package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Malformed(t *testing.T) {
	reader := strings.NewReader(`{ "networks": [`)
	_, err := LoadConfig(reader)
	if err == nil {
		t.Error("Expected error loading malformed config, got nil")
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.RPCURL != Default().RPCURL || cfg.Port != 8080 {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_save_config_*.json")
	if err != nil {
		t.Fatal(err)
	}
	tmpPath := tmpfile.Name()
	_ = tmpfile.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	cfg := Default()
	cfg.RPCURL = "http://localhost:9545"
	cfg.ReconcileIntervalSeconds = 10
	cfg.Networks = []NetworkConfig{{ChainID: "0x7a69", Name: "Hardhat", ExplorerURL: "http://localhost:4000"}}

	if err := SaveConfig(cfg, tmpPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfigFromFile(tmpPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.RPCURL != "http://localhost:9545" {
		t.Errorf("RPC URL mismatch")
	}
	if loaded.ReconcileInterval() != 10*time.Second {
		t.Errorf("Reconcile interval mismatch")
	}
	if len(loaded.Networks) != 1 || loaded.Networks[0].Name != "Hardhat" {
		t.Errorf("Network mismatch")
	}
}

func TestSaveConfig_BackupAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := Default()
	first.Port = 9000
	if err := SaveConfig(first, path); err != nil {
		t.Fatal(err)
	}
	second := Default()
	second.Port = 9100
	if err := SaveConfig(second, path); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(path + ".*.bak")
	if len(matches) != 1 {
		t.Fatalf("Expected 1 backup, got %d", len(matches))
	}

	if err := RestoreLastBackup(path); err != nil {
		t.Fatalf("RestoreLastBackup failed: %v", err)
	}
	restored, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Port != 9000 {
		t.Errorf("Expected restored port 9000, got %d", restored.Port)
	}
}

func TestRestoreLastBackup_None(t *testing.T) {
	if err := RestoreLastBackup(filepath.Join(t.TempDir(), "config.json")); err == nil {
		t.Error("Expected error without backups, got nil")
	}
}

func TestLoadConfig_TableDriven(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		jsonContent string
		expectError bool
		validate    func(*testing.T, Config)
	}{
		{
			name: "Full Config",
			jsonContent: `{
				"rpc_url": "http://node:8545",
				"data_dir": "/var/lib/walletd",
				"port": 9090,
				"reconcile_interval_seconds": 15,
				"refresh_delay_seconds": 3,
				"event_poll_interval_seconds": 1,
				"networks": [{"chain_id": "0x7a69", "name": "Hardhat"}]
			}`,
			validate: func(t *testing.T, c Config) {
				if c.RPCURL != "http://node:8545" || c.DataDir != "/var/lib/walletd" {
					t.Errorf("String fields mismatch: %+v", c)
				}
				if c.Port != 9090 || c.ReconcileIntervalSeconds != 15 || c.RefreshDelaySeconds != 3 || c.EventPollIntervalSeconds != 1 {
					t.Errorf("Numeric fields mismatch: %+v", c)
				}
				if len(c.Networks) != 1 || c.Networks[0].ChainID != "0x7a69" {
					t.Errorf("Networks mismatch")
				}
			},
		},
		{
			name:        "Partial Config (Defaults)",
			jsonContent: `{"rpc_url": "http://node:8545"}`,
			validate: func(t *testing.T, c Config) {
				if c.Port != 8080 {
					t.Errorf("Expected default port 8080, got %d", c.Port)
				}
				if c.ReconcileIntervalSeconds != 30 {
					t.Errorf("Expected default reconcile interval 30, got %d", c.ReconcileIntervalSeconds)
				}
				if c.RefreshDelay() != 5*time.Second {
					t.Errorf("Expected default refresh delay 5s, got %s", c.RefreshDelay())
				}
			},
		},
		{
			name:        "Explicit Empty RPC URL",
			jsonContent: `{"rpc_url": ""}`,
			validate: func(t *testing.T, c Config) {
				if c.RPCURL != "" {
					t.Errorf("Expected empty RPC URL to be kept, got %q", c.RPCURL)
				}
			},
		},
		{
			name:        "Malformed JSON",
			jsonContent: `{ "port": [ unclosed_array`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := LoadConfig(strings.NewReader(tt.jsonContent))

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				if tt.validate != nil {
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WALLETD_RPC_URL", "http://env-node:8545")
	t.Setenv("WALLETD_PORT", "7000")

	cfg := Default()
	cfg.RefreshDelaySeconds = 9
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.RPCURL != "http://env-node:8545" {
		t.Errorf("Expected RPC URL from env, got %q", cfg.RPCURL)
	}
	if cfg.Port != 7000 {
		t.Errorf("Expected port from env, got %d", cfg.Port)
	}
	if cfg.RefreshDelaySeconds != 9 {
		t.Errorf("Unset variables must not override, got %d", cfg.RefreshDelaySeconds)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("WALLETD_PORT", "not-a-number")
	cfg := Default()
	if err := ApplyEnv(&cfg); err == nil {
		t.Error("Expected error for malformed port, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"reconcile interval", func(c *Config) { c.ReconcileIntervalSeconds = 0 }},
		{"negative refresh delay", func(c *Config) { c.RefreshDelaySeconds = -1 }},
		{"poll interval", func(c *Config) { c.EventPollIntervalSeconds = 0 }},
		{"decimal chain id", func(c *Config) { c.Networks = []NetworkConfig{{ChainID: "31337", Name: "Hardhat"}} }},
		{"unnamed network", func(c *Config) { c.Networks = []NetworkConfig{{ChainID: "0x7a69"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config must be valid: %v", err)
	}
}

func TestSaveConfig_PermissionError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	tmpDir, err := os.MkdirTemp("", "readonly_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	if err := os.Chmod(tmpDir, 0500); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chmod(tmpDir, 0700) }()

	configPath := filepath.Join(tmpDir, "config.json")

	err = SaveConfig(Default(), configPath)
	if err == nil {
		t.Error("Expected permission error, got nil")
	}
}
