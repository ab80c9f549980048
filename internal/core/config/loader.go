package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Sync.MaxBlocksPerPass < 0 {
		return fmt.Errorf("sync.max_blocks_per_pass must not be negative")
	}
	if cfg.Sync.ImportBudget >= cfg.Sync.PassTimeout {
		return fmt.Errorf("sync.import_budget (%s) must be shorter than sync.pass_timeout (%s)",
			cfg.Sync.ImportBudget, cfg.Sync.PassTimeout)
	}
	if cfg.Redis.LockTTL < 3*time.Second {
		return fmt.Errorf("redis.lock_ttl (%s) must be at least 3s", cfg.Redis.LockTTL)
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = 5 * time.Second
	}
	if cfg.Sync.PassTimeout == 0 {
		cfg.Sync.PassTimeout = 2 * time.Minute
	}
	if cfg.Sync.NetspaceWindow == 0 {
		cfg.Sync.NetspaceWindow = 24 * time.Hour
	}
	if cfg.Sync.MaxBlocksPerPass == 0 {
		cfg.Sync.MaxBlocksPerPass = 1000
	}
	if cfg.Sync.ImportBudget == 0 {
		cfg.Sync.ImportBudget = cfg.Sync.PassTimeout * 3 / 4
	}

	if cfg.Node.Port == 0 {
		cfg.Node.Port = 8555
	}
	if cfg.Node.Timeout == 0 {
		cfg.Node.Timeout = 30 * time.Second
	}
	if cfg.Node.RetryAttempts == 0 {
		cfg.Node.RetryAttempts = 3
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}
	if cfg.Database.Migrate == nil {
		migrate := true
		cfg.Database.Migrate = &migrate
	}

	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "bpxfeeder:writer"
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "chainstate"
	}
}
