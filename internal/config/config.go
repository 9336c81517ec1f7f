package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/magiclantern/cubetest/internal/core/system"
)

type Config struct {
	Title     TitleConfig     `toml:"title"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Loop      LoopConfig      `toml:"loop"`
	Logging   LoggingConfig   `toml:"logging"`
	Scripting ScriptingConfig `toml:"scripting"`
	Workprint WorkprintConfig `toml:"workprint"`
	Database  DatabaseConfig  `toml:"database"`
}

// TitleConfig is the platform data handed to the session.
type TitleConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type SchedulerConfig struct {
	Phases []string `toml:"phases"` // capacity is len(Phases)
}

type LoopConfig struct {
	FrameInterval time.Duration `toml:"frame_interval"` // 0 = unpaced
	LogEvery      uint64        `toml:"log_every"`      // frames between surface logs
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ScriptingConfig struct {
	Dir         string        `toml:"dir"` // "" = built-in scripts only
	Watch       bool          `toml:"watch"`
	CallTimeout time.Duration `toml:"call_timeout"` // per behaviour call; 0 = unbounded
}

type WorkprintConfig struct {
	Path string `toml:"path"` // "" = embedded default group
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // "" disables snapshots
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	Restore         bool          `toml:"restore"`
}

// Load reads path over the defaults. A missing file is an error; callers that
// accept a missing default path use LoadOrDefault.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns the built-in configuration.
func Default() *Config { return defaults() }

// Validate checks the scheduler phase list: non-empty, unique, and holding
// the canonical phases in canonical relative order. Extra phases may sit
// between them.
func (c *Config) Validate() error {
	phases := c.Scheduler.Phases
	if len(phases) == 0 {
		return fmt.Errorf("%w: no scheduler phases", system.ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(phases))
	for _, p := range phases {
		if p == "" {
			return fmt.Errorf("%w: empty phase name", system.ErrConfiguration)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate phase %q", system.ErrConfiguration, p)
		}
		seen[p] = struct{}{}
	}
	last := -1
	for _, want := range system.CanonicalPhases() {
		i := slices.Index(phases, want)
		if i < 0 {
			return fmt.Errorf("%w: missing phase %q", system.ErrConfiguration, want)
		}
		if i < last {
			return fmt.Errorf("%w: phase %q out of order", system.ErrConfiguration, want)
		}
		last = i
	}
	if c.Title.Width == 0 || c.Title.Height == 0 {
		return fmt.Errorf("%w: title size %dx%d", system.ErrConfiguration, c.Title.Width, c.Title.Height)
	}
	if c.Loop.FrameInterval < 0 {
		return fmt.Errorf("%w: negative frame interval", system.ErrConfiguration)
	}
	if c.Scripting.CallTimeout < 0 {
		return fmt.Errorf("%w: negative script call timeout", system.ErrConfiguration)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Title: TitleConfig{
			Name:   "CubeTest",
			Width:  320,
			Height: 480,
		},
		Scheduler: SchedulerConfig{
			Phases: system.CanonicalPhases(),
		},
		Loop: LoopConfig{
			FrameInterval: 16 * time.Millisecond,
			LogEvery:      60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Scripting: ScriptingConfig{
			CallTimeout: 100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
	}
}
