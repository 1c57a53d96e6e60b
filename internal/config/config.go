// Package config provides configuration management for newsd. Adapted
// from the teacher's internal/config/config.go: a nested struct tree
// per concern, package-level protocol constants, and defaults baked in
// as Go literals rather than loaded lazily.
package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// NNTP protocol constants, mirroring the teacher's package-level block.
const (
	DOT  = "."
	CR   = "\r"
	LF   = "\n"
	CRLF = CR + LF

	DefaultIdleTimeout    = 5 * time.Minute
	DefaultMaxArticleSize = 1024 * 1024 // 1 MiB global default
	DefaultQueueCapacity  = 1024
	DefaultWorkerCount    = 8
)

var AppVersion = "-unset-"

// Config is the full process configuration. Config values are read
// through Cell.Snapshot (see Cell below): callers clone the pointer they
// need and release the lock before any suspension point, per spec.md §9.
type Config struct {
	Hostname           string        `yaml:"hostname"`
	SiteName           string        `yaml:"site_name"`
	AllowPostingInsecure bool        `yaml:"allow_posting_insecure"`
	AllowAuthInsecure  bool          `yaml:"allow_auth_insecure"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`

	Listen ListenConfig `yaml:"listen"`
	DB     DBConfig     `yaml:"database"`
	Queue  QueueConfig  `yaml:"queue"`
	Limits LimitsConfig `yaml:"limits"`

	Groups  GroupRules     `yaml:"groups"`
	Filters FiltersConfig  `yaml:"filters"`
	Peers   []PeerConfig   `yaml:"peers"`
	KeyServers []string    `yaml:"key_servers"`
}

// ListenConfig holds the plain/TLS listener addresses.
type ListenConfig struct {
	Addr    string `yaml:"addr"`
	TLSAddr string `yaml:"tls_addr"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// DBConfig holds storage connection settings.
type DBConfig struct {
	DriverName string `yaml:"driver"` // always "sqlite3" today
	DSN        string `yaml:"dsn"`
}

// QueueConfig sizes the bounded ingestion queue (spec.md §4.H).
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
	Workers  int `yaml:"workers"`
}

// LimitsConfig holds the process-wide default per-user limits
// (spec.md §3 UserLimits) used when no per-user override exists.
type LimitsConfig struct {
	DefaultMaxConnections int   `yaml:"default_max_connections"` // 0 means unlimited
	DefaultBandwidthBytes int64 `yaml:"default_bandwidth_bytes"` // 0 means unlimited
	DefaultBandwidthWindowSeconds int `yaml:"default_bandwidth_window_seconds"` // 0 means lifetime
	DefaultPostingAllowed bool  `yaml:"default_posting_allowed"`
}

// GroupPattern is a (pattern, value) pair used for longest-match
// resolution of per-group settings (max size, retention window).
type GroupPattern struct {
	Pattern string `yaml:"pattern"`
	Value   int64  `yaml:"value"`
}

// GroupRules holds per-group and pattern-matched overrides for size
// and retention, resolved explicit -> longest pattern -> global default.
type GroupRules struct {
	MaxBytesByGroup    map[string]int64 `yaml:"max_bytes_by_group"`
	MaxBytesByPattern  []GroupPattern   `yaml:"max_bytes_by_pattern"`
	DefaultMaxBytes    int64            `yaml:"default_max_bytes"`

	RetentionByGroup   map[string]int64 `yaml:"retention_seconds_by_group"`
	RetentionByPattern []GroupPattern   `yaml:"retention_seconds_by_pattern"`
	DefaultRetention   int64            `yaml:"default_retention_seconds"` // 0 disables
}

// FiltersConfig controls the optional/tunable parts of the filter
// chain (spec.md §4.F, and the Open Question on cross-post moderation).
type FiltersConfig struct {
	StrictCrossPostModeration bool           `yaml:"strict_cross_post_moderation"`
	Milter                    *MilterConfig  `yaml:"milter"`
}

// MilterConfig configures the optional milter predicate.
type MilterConfig struct {
	Network string        `yaml:"network"` // "tcp", "tcp4", "tcp6", "unix"
	Addr    string         `yaml:"addr"`
	TLS     bool           `yaml:"tls"`
	Timeout time.Duration `yaml:"timeout"`
}

// PeerConfig configures one federation peer (spec.md §4.J).
type PeerConfig struct {
	SiteName        string   `yaml:"sitename"`
	Addr            string   `yaml:"addr"`
	Schedule        string   `yaml:"schedule"` // duration string, e.g. "5m"
	Streaming       bool     `yaml:"streaming"`
	Patterns        []string `yaml:"patterns"`
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify"`
}

// Default returns a Config with the teacher-style sane defaults.
func Default() *Config {
	return &Config{
		Hostname:    "localhost",
		SiteName:    "newsd",
		IdleTimeout: DefaultIdleTimeout,
		Listen:      ListenConfig{Addr: ":119"},
		DB:          DBConfig{DriverName: "sqlite3", DSN: "newsd.db"},
		Queue:       QueueConfig{Capacity: DefaultQueueCapacity, Workers: DefaultWorkerCount},
		Limits: LimitsConfig{
			DefaultMaxConnections: 5,
			DefaultPostingAllowed: true,
		},
		Groups: GroupRules{
			DefaultMaxBytes:  DefaultMaxArticleSize,
			DefaultRetention: 0,
		},
	}
}

// Load reads and parses a YAML config file, filling any unset fields
// from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Cell is a reader/writer cell over a Config snapshot: readers clone
// the pointer they need (the Config itself is treated as immutable
// once published) and release before awaiting, per spec.md §9.
type Cell struct {
	v atomic.Value
}

// NewCell creates a Cell holding the given initial config.
func NewCell(cfg *Config) *Cell {
	c := &Cell{}
	c.v.Store(cfg)
	return c
}

// Snapshot returns the currently published Config pointer.
func (c *Cell) Snapshot() *Config {
	return c.v.Load().(*Config)
}

// Store hot-swaps the published Config, e.g. after a reload.
func (c *Cell) Store(cfg *Config) {
	c.v.Store(cfg)
}
