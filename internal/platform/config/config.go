package config

import (
	"time"
)

// Config is the root client configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Log      LogConfig      `yaml:"log"`
	Upload   UploadConfig   `yaml:"upload"`
	Playback PlaybackConfig `yaml:"playback"`
	Capture  CaptureConfig  `yaml:"capture"`
	Storage  StorageConfig  `yaml:"storage"`
	Stub     StubConfig     `yaml:"stub"`
}

// BackendConfig describes the document analysis backend.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// UploadConfig bounds the normalized image sent to start_session.
type UploadConfig struct {
	MaxWidth    int     `yaml:"max_width"`
	MaxHeight   int     `yaml:"max_height"`
	JPEGQuality float64 `yaml:"jpeg_quality"`
	// GuardCooldown re-arms the one-shot start_session guard.
	GuardCooldown time.Duration `yaml:"guard_cooldown"`
}

type PlaybackConfig struct {
	Player string `yaml:"player"` // external player binary, default ffplay
	// AutoPlayCooldown suppresses duplicate summary auto-play.
	AutoPlayCooldown time.Duration `yaml:"autoplay_cooldown"`
}

type CaptureConfig struct {
	FFmpeg      string        `yaml:"ffmpeg"`
	InputFormat string        `yaml:"input_format"` // pulse/alsa/avfoundation
	InputDevice string        `yaml:"input_device"`
	SampleRate  int           `yaml:"sample_rate"`
	Channels    int           `yaml:"channels"`
	MaxDuration time.Duration `yaml:"max_duration"`
	// LevelInterval paces waveform level frames for the recording UI.
	LevelInterval time.Duration `yaml:"level_interval"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// StubConfig configures the development backend.
type StubConfig struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
	DataDir   string `yaml:"data_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:8900",
			RequestTimeout: 30 * time.Second,
			UploadTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "client.log",
		},
		Upload: UploadConfig{
			MaxWidth:      1920,
			MaxHeight:     1920,
			JPEGQuality:   0.85,
			GuardCooldown: time.Second,
		},
		Playback: PlaybackConfig{
			Player:           "ffplay",
			AutoPlayCooldown: time.Second,
		},
		Capture: CaptureConfig{
			FFmpeg:        "ffmpeg",
			InputFormat:   "pulse",
			InputDevice:   "default",
			SampleRate:    16000,
			Channels:      1,
			MaxDuration:   2 * time.Minute,
			LevelInterval: 550 * time.Millisecond,
		},
		Storage: StorageConfig{
			Dir: "./data",
		},
		Stub: StubConfig{
			IP:      "0.0.0.0",
			Port:    8900,
			DataDir: "./data/stub",
		},
	}
}
