// Package config handles application configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// Config holds all application settings.
type Config struct {
	Window    WindowConfig    `yaml:"window"`
	Viewer    ViewerConfig    `yaml:"viewer"`
	Devices   DevicesConfig   `yaml:"devices"`
	Recording RecordingConfig `yaml:"recording"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WindowConfig holds main window settings.
type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// ViewerConfig holds viewport camera, lighting and avatar placement settings.
type ViewerConfig struct {
	FOVDegrees     float32    `yaml:"fov_degrees"`
	Near           float32    `yaml:"near"`
	Far            float32    `yaml:"far"`
	CameraPosition [3]float32 `yaml:"camera_position"`
	CameraTarget   [3]float32 `yaml:"camera_target"`
	Background     [4]float32 `yaml:"background"`

	AmbientColor     [3]float32 `yaml:"ambient_color"`
	AmbientIntensity float32    `yaml:"ambient_intensity"`
	LightColor       [3]float32 `yaml:"light_color"`
	LightIntensity   float32    `yaml:"light_intensity"`
	LightDirection   [3]float32 `yaml:"light_direction"`

	AvatarHeight float32 `yaml:"avatar_height"` // 0 keeps the model's own scale
	AutoLoad     string  `yaml:"auto_load"`     // Model loaded at startup
}

// DevicesConfig holds capture device settings.
type DevicesConfig struct {
	WatchHotplug bool   `yaml:"watch_hotplug"`
	Camera       string `yaml:"camera"`     // Preferred camera id
	Microphone   string `yaml:"microphone"` // Preferred microphone id
}

// RecordingConfig holds capture session settings.
type RecordingConfig struct {
	Directory     string `yaml:"directory"`
	FPS           int    `yaml:"fps"`
	PendingFrames int    `yaml:"pending_frames"` // Encoder queue depth before frames are dropped
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Avatar Studio",
			Width:  1280,
			Height: 800,
		},
		Viewer: ViewerConfig{
			FOVDegrees:       30,
			Near:             0.1,
			Far:              20,
			CameraPosition:   [3]float32{0, 1.2, 4.5},
			CameraTarget:     [3]float32{0, 0.9, 0},
			Background:       [4]float32{0.15, 0.15, 0.2, 1},
			AmbientColor:     [3]float32{1, 1, 1},
			AmbientIntensity: 0.4,
			LightColor:       [3]float32{1, 1, 1},
			LightIntensity:   0.8,
			LightDirection:   [3]float32{-1, -1, -1},
			AvatarHeight:     1.6,
		},
		Devices: DevicesConfig{
			WatchHotplug: true,
		},
		Recording: RecordingConfig{
			Directory:     defaultRecordingDir(),
			FPS:           30,
			PendingFrames: 64,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings that would break the viewer or recorder.
func (c *Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Viewer.FOVDegrees <= 0 || c.Viewer.FOVDegrees >= 180 {
		errs = append(errs, fmt.Errorf("viewer.fov_degrees must be in (0, 180), got %g", c.Viewer.FOVDegrees))
	}
	if c.Viewer.Near <= 0 || c.Viewer.Far <= c.Viewer.Near {
		errs = append(errs, fmt.Errorf("viewer clip planes must satisfy 0 < near < far, got %g/%g", c.Viewer.Near, c.Viewer.Far))
	}
	if c.Viewer.AvatarHeight < 0 {
		errs = append(errs, fmt.Errorf("viewer.avatar_height must not be negative, got %g", c.Viewer.AvatarHeight))
	}
	if c.Recording.FPS <= 0 {
		errs = append(errs, fmt.Errorf("recording.fps must be positive, got %d", c.Recording.FPS))
	}
	if c.Recording.PendingFrames <= 0 {
		errs = append(errs, fmt.Errorf("recording.pending_frames must be positive, got %d", c.Recording.PendingFrames))
	}
	return errors.Join(errs...)
}
