package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Window.Width != 1280 {
		t.Errorf("expected width 1280, got %d", cfg.Window.Width)
	}
	if cfg.Window.Height != 800 {
		t.Errorf("expected height 800, got %d", cfg.Window.Height)
	}

	if cfg.Viewer.FOVDegrees != 30 {
		t.Errorf("expected fov 30, got %g", cfg.Viewer.FOVDegrees)
	}
	if cfg.Viewer.AvatarHeight != 1.6 {
		t.Errorf("expected avatar height 1.6, got %g", cfg.Viewer.AvatarHeight)
	}
	if cfg.Viewer.AutoLoad != "" {
		t.Errorf("expected no auto-load model, got %s", cfg.Viewer.AutoLoad)
	}

	if !cfg.Devices.WatchHotplug {
		t.Error("expected hotplug monitoring to be enabled by default")
	}

	if cfg.Recording.FPS != 30 {
		t.Errorf("expected recording fps 30, got %d", cfg.Recording.FPS)
	}
	if cfg.Recording.Directory == "" {
		t.Error("expected a default recording directory")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
window:
  width: 1920
  height: 1080

viewer:
  fov_degrees: 45
  camera_position: [0, 1.5, 3]
  avatar_height: 0
  auto_load: "/models/alicia.vrm"

devices:
  watch_hotplug: false
  camera: "/dev/video2"

recording:
  directory: "/tmp/recs"
  fps: 24

logging:
  level: "debug"
  log_file: "studio.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Window.Width != 1920 || cfg.Window.Height != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", cfg.Window.Width, cfg.Window.Height)
	}
	if cfg.Window.Title != "Avatar Studio" {
		t.Errorf("expected default title to survive merge, got %q", cfg.Window.Title)
	}
	if cfg.Viewer.FOVDegrees != 45 {
		t.Errorf("expected fov 45, got %g", cfg.Viewer.FOVDegrees)
	}
	if cfg.Viewer.CameraPosition != [3]float32{0, 1.5, 3} {
		t.Errorf("unexpected camera position %v", cfg.Viewer.CameraPosition)
	}
	if cfg.Viewer.AvatarHeight != 0 {
		t.Errorf("expected avatar height 0, got %g", cfg.Viewer.AvatarHeight)
	}
	if cfg.Viewer.AutoLoad != "/models/alicia.vrm" {
		t.Errorf("unexpected auto-load %q", cfg.Viewer.AutoLoad)
	}
	if cfg.Devices.WatchHotplug {
		t.Error("expected hotplug monitoring disabled")
	}
	if cfg.Devices.Camera != "/dev/video2" {
		t.Errorf("unexpected camera %q", cfg.Devices.Camera)
	}
	if cfg.Recording.Directory != "/tmp/recs" || cfg.Recording.FPS != 24 {
		t.Errorf("unexpected recording config %+v", cfg.Recording)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.LogFile != "studio.log" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
window:
  width: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }, "window size"},
		{"fov too wide", func(c *Config) { c.Viewer.FOVDegrees = 180 }, "fov_degrees"},
		{"near behind far", func(c *Config) { c.Viewer.Near = 30 }, "clip planes"},
		{"negative height", func(c *Config) { c.Viewer.AvatarHeight = -1 }, "avatar_height"},
		{"zero fps", func(c *Config) { c.Recording.FPS = 0 }, "recording.fps"},
		{"zero queue", func(c *Config) { c.Recording.PendingFrames = 0 }, "pending_frames"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("window:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "model flag",
			setup: func() { *flagModel = "avatar.vrm" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Viewer.AutoLoad != "avatar.vrm" {
					t.Errorf("expected auto-load avatar.vrm, got %s", cfg.Viewer.AutoLoad)
				}
			},
			teardown: func() { *flagModel = "" },
		},
		{
			name:  "recordings flag",
			setup: func() { *flagRecordings = "/data/recs" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Recording.Directory != "/data/recs" {
					t.Errorf("expected /data/recs, got %s", cfg.Recording.Directory)
				}
			},
			teardown: func() { *flagRecordings = "" },
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Window.Width != 2560 || cfg.Window.Height != 1440 {
					t.Errorf("expected 2560x1440, got %dx%d", cfg.Window.Width, cfg.Window.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
		{
			name:  "no-hotplug flag",
			setup: func() { *flagNoHotplug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Devices.WatchHotplug {
					t.Error("expected hotplug disabled")
				}
			},
			teardown: func() { *flagNoHotplug = false },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
window:
  width: 1600
  height: 900
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Width from flag, height from file
	if cfg.Window.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Window.Width)
	}
	if cfg.Window.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Window.Height)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("recording:\n  fps: -5\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadFrom(configPath, false); err == nil {
		t.Error("expected invalid config to be rejected")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Viewer.AutoLoad = "saved.vrm"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFrom(path, false)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Viewer.AutoLoad != "saved.vrm" {
		t.Errorf("expected saved.vrm, got %q", loaded.Viewer.AutoLoad)
	}
}
