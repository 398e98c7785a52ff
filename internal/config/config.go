// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration.
//
// Precedence is environment over file over defaults. The YAML file is parsed
// strictly: unknown keys are an error.
package config

import "time"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Library      LibraryConfig      `yaml:"library"`
	Streaming    StreamingConfig    `yaml:"streaming"`
	Hardware     HardwareConfig     `yaml:"hardware"`
	FFmpeg       FFmpegConfig       `yaml:"ffmpeg"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	RateLimitRPS      int           `yaml:"rateLimitRPS"` // per client IP; 0 disables
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// LibraryConfig lists the directories whose media files are served.
type LibraryConfig struct {
	Dirs       []string `yaml:"dirs"`
	Extensions []string `yaml:"extensions"`
	Watch      bool     `yaml:"watch"`
}

// StreamingConfig tunes sessions and segment production.
type StreamingConfig struct {
	DataDir              string        `yaml:"dataDir"`
	SegmentDuration      time.Duration `yaml:"segmentDuration"`
	PrefetchSegments     int           `yaml:"prefetchSegments"`
	SessionTTL           time.Duration `yaml:"sessionTTL"`
	SweepInterval        time.Duration `yaml:"sweepInterval"`
	SegmentRetention     time.Duration `yaml:"segmentRetention"`
	PreferFragmented     bool          `yaml:"preferFragmented"`
	MaxConcurrentEncodes int           `yaml:"maxConcurrentEncodes"`
	PollInterval         time.Duration `yaml:"pollInterval"`
	PollTimeout          time.Duration `yaml:"pollTimeout"`
}

// HardwareConfig controls accelerator detection.
type HardwareConfig struct {
	Override     string        `yaml:"override"` // backend name; empty means auto
	VAAPIDevice  string        `yaml:"vaapiDevice"`
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
}

// FFmpegConfig locates the ffmpeg binaries.
type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	ProbeBin     string        `yaml:"probeBin"`
	StallTimeout time.Duration `yaml:"stallTimeout"`
}

// CapabilitiesConfig configures the capability registry store.
type CapabilitiesConfig struct {
	RedisAddr     string        `yaml:"redisAddr"` // empty keeps capabilities in memory
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	TTL           time.Duration `yaml:"ttl"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Listen:            ":8096",
			RateLimitRPS:      50,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Library: LibraryConfig{Watch: true},
		Streaming: StreamingConfig{
			DataDir:              "/var/lib/loki",
			SegmentDuration:      6 * time.Second,
			PrefetchSegments:     3,
			SessionTTL:           5 * time.Minute,
			SweepInterval:        30 * time.Second,
			MaxConcurrentEncodes: 4,
			PollInterval:         250 * time.Millisecond,
			PollTimeout:          20 * time.Second,
		},
		Hardware: HardwareConfig{
			VAAPIDevice:  "/dev/dri/renderD128",
			ProbeTimeout: 5 * time.Second,
		},
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			ProbeBin:     "ffprobe",
			StallTimeout: 30 * time.Second,
		},
		Capabilities: CapabilitiesConfig{TTL: 30 * 24 * time.Hour},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		Log: LogConfig{Level: "info"},
	}
}
