package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/masterweb/internal/dsp"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. MASTERWEB_SERVER_PORT.
const EnvPrefix = "MASTERWEB"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Mastering MasteringConfig `mapstructure:"mastering" yaml:"mastering"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port" yaml:"port"`
	Workers     int    `mapstructure:"workers" yaml:"workers"`             // concurrent mastering jobs
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"` // multipart limit
}

type StorageConfig struct {
	UploadDirectory string `mapstructure:"upload_directory" yaml:"upload_directory"`
	OutputDirectory string `mapstructure:"output_directory" yaml:"output_directory"`
	Database        string `mapstructure:"database" yaml:"database"` // SQLite file for reviews
}

type AudioConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	FFmpeg            string   `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	FFprobe           string   `mapstructure:"ffprobe" yaml:"ffprobe"`
}

type MasteringConfig struct {
	Limiter string `mapstructure:"limiter" yaml:"limiter"` // "static" (default), "envelope"
}

type PlaybackConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Players []string `mapstructure:"players" yaml:"players"` // tried in order
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "5000",
			Workers:     2,
			MaxUploadMB: 64,
		},
		Storage: StorageConfig{
			UploadDirectory: "uploads",
			OutputDirectory: "output",
			Database:        "reviews.db",
		},
		Audio: AudioConfig{
			AllowedExtensions: []string{"mp3", "wav"},
			FFmpeg:            "ffmpeg",
			FFprobe:           "ffprobe",
		},
		Mastering: MasteringConfig{
			Limiter: string(dsp.LimiterStatic),
		},
		Playback: PlaybackConfig{
			Enabled: true,
			Players: []string{"ffplay", "mpv", "aplay"},
		},
	}
}

// DefaultPath returns the config file used when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/masterweb.yaml")
}

// Load reads configFile on top of the defaults. A missing file is not an
// error: the defaults (plus environment overrides) are used instead.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Storage.UploadDirectory = expandPath(cfg.Storage.UploadDirectory)
	cfg.Storage.OutputDirectory = expandPath(cfg.Storage.OutputDirectory)
	cfg.Storage.Database = expandPath(cfg.Storage.Database)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("storage.upload_directory", d.Storage.UploadDirectory)
	v.SetDefault("storage.output_directory", d.Storage.OutputDirectory)
	v.SetDefault("storage.database", d.Storage.Database)
	v.SetDefault("audio.allowed_extensions", d.Audio.AllowedExtensions)
	v.SetDefault("audio.ffmpeg", d.Audio.FFmpeg)
	v.SetDefault("audio.ffprobe", d.Audio.FFprobe)
	v.SetDefault("mastering.limiter", d.Mastering.Limiter)
	v.SetDefault("playback.enabled", d.Playback.Enabled)
	v.SetDefault("playback.players", d.Playback.Players)
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be a number between 1 and 65535, got: %s", c.Server.Port)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be >= 1, got: %d", c.Server.Workers)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be >= 1, got: %d", c.Server.MaxUploadMB)
	}

	if c.Storage.UploadDirectory == "" {
		return fmt.Errorf("storage.upload_directory is required")
	}
	if c.Storage.OutputDirectory == "" {
		return fmt.Errorf("storage.output_directory is required")
	}
	if c.Storage.Database == "" {
		return fmt.Errorf("storage.database is required")
	}

	if len(c.Audio.AllowedExtensions) == 0 {
		return fmt.Errorf("audio.allowed_extensions cannot be empty")
	}
	for i, ext := range c.Audio.AllowedExtensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" || strings.ContainsAny(ext, "./\\") {
			return fmt.Errorf("audio.allowed_extensions[%d] is not a valid extension: %q", i, c.Audio.AllowedExtensions[i])
		}
		c.Audio.AllowedExtensions[i] = strings.ToLower(ext)
	}

	if _, err := dsp.NewLimiter(dsp.LimiterMode(c.Mastering.Limiter)); err != nil {
		return fmt.Errorf("mastering.limiter must be 'static' or 'envelope', got: %s", c.Mastering.Limiter)
	}

	if c.Playback.Enabled && len(c.Playback.Players) == 0 {
		return fmt.Errorf("playback.players cannot be empty when playback is enabled")
	}

	return nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the built-in configuration to path. An existing file
// is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := Default().Marshal()
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file %s: %w", path, err)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
