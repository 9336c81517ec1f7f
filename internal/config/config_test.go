package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/magiclantern/cubetest/internal/core/system"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "title.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[title]
name = "spinner"
width = 640

[loop]
frame_interval = "8ms"

[database]
dsn = "postgres://localhost/cubetest"
restore = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Title.Name != "spinner" || cfg.Title.Width != 640 {
		t.Errorf("title = %+v", cfg.Title)
	}
	if cfg.Title.Height != 480 {
		t.Errorf("height = %d, expected default 480", cfg.Title.Height)
	}
	if cfg.Loop.FrameInterval != 8*time.Millisecond {
		t.Errorf("frame_interval = %v, expected 8ms", cfg.Loop.FrameInterval)
	}
	if !cfg.Database.Restore || cfg.Database.ConnMaxLifetime != 30*time.Minute {
		t.Errorf("database = %+v", cfg.Database)
	}
	if len(cfg.Scheduler.Phases) != 6 {
		t.Errorf("phases = %v, expected canonical six", cfg.Scheduler.Phases)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() failed: %v", err)
	}
	if cfg.Title.Name != "CubeTest" {
		t.Errorf("name = %q, expected default", cfg.Title.Name)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, expected ErrNotExist", err)
	}
}

func TestValidatePhases(t *testing.T) {
	canon := system.CanonicalPhases()
	withExtra := append([]string{}, canon[:2]...)
	withExtra = append(withExtra, "Physics Phase")
	withExtra = append(withExtra, canon[2:]...)
	swapped := append([]string{}, canon...)
	swapped[0], swapped[1] = swapped[1], swapped[0]

	tests := []struct {
		name    string
		phases  []string
		wantErr bool
	}{
		{"canonical", canon, false},
		{"extra phase interleaved", withExtra, false},
		{"empty", nil, true},
		{"duplicate", append(append([]string{}, canon...), system.PhaseActor), true},
		{"missing stage", canon[:5], true},
		{"out of order", swapped, true},
		{"blank name", append(append([]string{}, canon...), ""), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Scheduler.Phases = tc.phases
			err := cfg.Validate()
			if tc.wantErr {
				if !errors.Is(err, system.ErrConfiguration) {
					t.Errorf("Validate() = %v, expected ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() failed: %v", err)
			}
		})
	}
}

func TestLoadRejectsBadPhases(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
phases = ["Stage Phase", "Actor Phase"]
`)
	if _, err := Load(path); !errors.Is(err, system.ErrConfiguration) {
		t.Errorf("Load() = %v, expected ErrConfiguration", err)
	}
}
