package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all waypoint host configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath        string        `json:"db_path"`
	LogLevel      string        `json:"log_level"`
	PoolSize      int           `json:"pool_size"`
	SchedulerTick time.Duration `json:"scheduler_tick"`
	QueueTick     time.Duration `json:"queue_tick"`
	QueueTTL      time.Duration `json:"queue_ttl"`
}

// settingsFile is the on-disk form of Config. Durations are written as
// strings ("30s") so the file stays editable by hand.
type settingsFile struct {
	DBPath        string `json:"db_path,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`
	PoolSize      int    `json:"pool_size,omitempty"`
	SchedulerTick string `json:"scheduler_tick,omitempty"`
	QueueTick     string `json:"queue_tick,omitempty"`
	QueueTTL      string `json:"queue_ttl,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(waypointDir(), "waypoint.db"),
		LogLevel:      "info",
		PoolSize:      8,
		SchedulerTick: time.Second,
		QueueTick:     5 * time.Second,
		QueueTTL:      24 * time.Hour,
	}
}

func waypointDir() string {
	if v := os.Getenv("WAYPOINT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".waypoint"
	}
	return filepath.Join(home, ".waypoint")
}

func settingsPath() string {
	return filepath.Join(waypointDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		var f settingsFile
		if json.Unmarshal(data, &f) == nil {
			cfg.apply(f)
		}
	}

	// Layer 3: env vars override.
	cfg.apply(settingsFile{
		DBPath:        os.Getenv("WAYPOINT_DB_PATH"),
		LogLevel:      os.Getenv("WAYPOINT_LOG_LEVEL"),
		SchedulerTick: os.Getenv("WAYPOINT_SCHEDULER_TICK"),
		QueueTick:     os.Getenv("WAYPOINT_QUEUE_TICK"),
		QueueTTL:      os.Getenv("WAYPOINT_QUEUE_TTL"),
	})
	if v := os.Getenv("WAYPOINT_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}

	return cfg
}

// apply overrides every field set in f. Unparseable durations are ignored.
func (c *Config) apply(f settingsFile) {
	if f.DBPath != "" {
		c.DBPath = f.DBPath
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.PoolSize > 0 {
		c.PoolSize = f.PoolSize
	}
	setDuration(&c.SchedulerTick, f.SchedulerTick)
	setDuration(&c.QueueTick, f.QueueTick)
	setDuration(&c.QueueTTL, f.QueueTTL)
}

func setDuration(dst *time.Duration, s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		*dst = d
	}
}

// registerFlags binds the layer 4 overrides. Defaults are the values loaded
// from the lower layers, so unset flags change nothing.
func (c *Config) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "database path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.IntVar(&c.PoolSize, "pool-size", c.PoolSize, "worker pool size")
	fs.DurationVar(&c.SchedulerTick, "scheduler-tick", c.SchedulerTick, "timer scheduler polling interval")
	fs.DurationVar(&c.QueueTick, "queue-tick", c.QueueTick, "bookmark queue sweep interval")
	fs.DurationVar(&c.QueueTTL, "queue-ttl", c.QueueTTL, "age after which unmatched queue items are purged (0 keeps them)")
}

func (c Config) settings() settingsFile {
	return settingsFile{
		DBPath:        c.DBPath,
		LogLevel:      c.LogLevel,
		PoolSize:      c.PoolSize,
		SchedulerTick: c.SchedulerTick.String(),
		QueueTick:     c.QueueTick.String(),
		QueueTTL:      c.QueueTTL.String(),
	}
}
