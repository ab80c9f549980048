package config

import (
	"time"

	"github.com/vietddude/bpxfeeder/internal/infra/node"
	redisclient "github.com/vietddude/bpxfeeder/internal/infra/redis"
	"github.com/vietddude/bpxfeeder/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Node     node.Config        `yaml:"node"`
	Sync     SyncConfig         `yaml:"sync"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // -1 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SyncConfig controls the synchronization passes.
type SyncConfig struct {
	Interval       time.Duration `yaml:"interval"`
	PassTimeout    time.Duration `yaml:"pass_timeout"`
	PruneOrphans   *bool         `yaml:"prune_orphans"`
	NetspaceWindow time.Duration `yaml:"netspace_window"`
	// MaxBlocksPerPass caps the forward import of one pass.
	MaxBlocksPerPass int `yaml:"max_blocks_per_pass"`
	// ImportBudget bounds the forward import inside pass_timeout.
	ImportBudget time.Duration `yaml:"import_budget"`
}

// PruneOrphansEnabled reports whether rows above a fork point are deleted.
func (c SyncConfig) PruneOrphansEnabled() bool {
	return c.PruneOrphans == nil || *c.PruneOrphans
}
