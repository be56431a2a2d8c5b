// Package config loads engine configuration from a JSON file and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/rcliao/dsam/internal/model"
)

// Config holds every tunable of the memory engine.
type Config struct {
	Enabled              bool         `json:"enabled" yaml:"enabled" env:"DSAM_ENABLED"`
	CompressionLevel     int          `json:"compression_level" yaml:"compression_level" env:"DSAM_COMPRESSION_LEVEL"`
	MemoryWindowDays     int          `json:"memory_window_days" yaml:"memory_window_days" env:"DSAM_MEMORY_WINDOW_DAYS"`
	SummaryDetail        model.Detail `json:"summary_detail" yaml:"summary_detail" env:"DSAM_SUMMARY_DETAIL"`
	AssociationThreshold float64      `json:"association_threshold" yaml:"association_threshold" env:"DSAM_ASSOCIATION_THRESHOLD"`
	MaxAssociations      int          `json:"max_associations" yaml:"max_associations" env:"DSAM_MAX_ASSOCIATIONS"`
	CleanupIntervalHours int          `json:"cleanup_interval_hours" yaml:"cleanup_interval_hours" env:"DSAM_CLEANUP_INTERVAL_HOURS"`
	CleanupSchedule      string       `json:"cleanup_schedule,omitempty" yaml:"cleanup_schedule,omitempty" env:"DSAM_CLEANUP_SCHEDULE"` // cron expression, overrides the interval
	ExpandCacheMB        int          `json:"expand_cache_mb" yaml:"expand_cache_mb" env:"DSAM_EXPAND_CACHE_MB"`
	BusBuffer            int          `json:"bus_buffer" yaml:"bus_buffer" env:"DSAM_BUS_BUFFER"`
	DBPath               string       `json:"db_path" yaml:"db_path" env:"DSAM_DB"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:              true,
		CompressionLevel:     5,
		MemoryWindowDays:     7,
		SummaryDetail:        model.DetailBalanced,
		AssociationThreshold: 0.3,
		MaxAssociations:      10,
		CleanupIntervalHours: 24,
		ExpandCacheMB:        16,
		BusBuffer:            100,
	}
}

// LoadConfig reads path (a missing file yields defaults) and applies env
// overrides. Files ending in .yaml or .yml are parsed as YAML, anything else
// as JSON.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Normalize clamps out-of-range values back to usable ones.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.CompressionLevel < 1 {
		c.CompressionLevel = 1
	}
	if c.CompressionLevel > 10 {
		c.CompressionLevel = 10
	}
	if c.MemoryWindowDays <= 0 {
		c.MemoryWindowDays = d.MemoryWindowDays
	}
	if c.SummaryDetail == "" {
		c.SummaryDetail = d.SummaryDetail
	}
	if c.MaxAssociations <= 0 {
		c.MaxAssociations = d.MaxAssociations
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = d.CleanupIntervalHours
	}
	if c.ExpandCacheMB <= 0 {
		c.ExpandCacheMB = d.ExpandCacheMB
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = d.BusBuffer
	}
}

// Validate rejects values that cannot be clamped.
func (c *Config) Validate() error {
	if !model.ValidDetails[c.SummaryDetail] {
		return fmt.Errorf("invalid summary_detail %q (valid: minimal, balanced, detailed)", c.SummaryDetail)
	}
	if c.CleanupSchedule != "" && !gronx.New().IsValid(c.CleanupSchedule) {
		return fmt.Errorf("invalid cleanup_schedule %q", c.CleanupSchedule)
	}
	return nil
}

// MemoryWindow is the age after which low-value memories become evictable.
func (c *Config) MemoryWindow() time.Duration {
	return time.Duration(c.MemoryWindowDays) * 24 * time.Hour
}

// CleanupInterval is the fixed retention period used when no schedule is set.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// ResolveDBPath returns the configured database path or ~/.dsam/memory.db.
func (c *Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dsam", "memory.db")
}
