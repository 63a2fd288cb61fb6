package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigFileName is the file looked up in the application directory
// when no explicit config path is given.
const DefaultConfigFileName = "config.json"

// Config holds the configuration for the recording server
type Config struct {
	ListenAddr         string `json:"listen_addr"`
	Port               int    `json:"port"`
	PortSearchAttempts int    `json:"port_search_attempts"`

	StorageRoot  string `json:"storage_root"`
	PublicPrefix string `json:"public_prefix"`
	DatabasePath string `json:"database_path"`
	LogPath      string `json:"log_path"`
	LogLevel     string `json:"log_level"`

	FFmpegPath           string         `json:"ffmpeg_path"`
	RecognizedExtensions []string       `json:"recognized_extensions"`
	SpeedMultipliers     []int          `json:"speed_multipliers"`
	TempoLimit           float64        `json:"tempo_limit"`
	DiscriminatorWidth   int            `json:"discriminator_width"`
	EncodeTimeoutSeconds int            `json:"encode_timeout_seconds"`
	VariantWorkers       int            `json:"variant_workers"`
	ValidateFastPath     bool           `json:"validate_fast_path"`
	Reencode             ReencodeConfig `json:"reencode"`

	ValidateUploads    bool     `json:"validate_uploads"`
	MaxUploadMegabytes int      `json:"max_upload_megabytes"`
	TrustedProxies     []string `json:"trusted_proxies,omitempty"`
}

// ReencodeConfig is the uniform output profile used when stream copy is not possible
type ReencodeConfig struct {
	VideoCodec   string `json:"video_codec"`
	Preset       string `json:"preset"`
	CRF          int    `json:"crf"`
	PixelFormat  string `json:"pix_fmt"`
	AudioCodec   string `json:"audio_codec"`
	AudioBitrate string `json:"audio_bitrate"`
}

// AppDir returns the directory holding the default config, database and uploads
func AppDir() string {
	appDir := "."

	homeDir, err := os.UserHomeDir()
	if err == nil && homeDir != "" {
		appDir = filepath.Join(homeDir, "scramer")
	}

	return appDir
}

// DefaultConfigPath returns the config path used when none is given
func DefaultConfigPath() string {
	return filepath.Join(AppDir(), DefaultConfigFileName)
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	appDir := AppDir()

	return &Config{
		ListenAddr:         "0.0.0.0",
		Port:               8080,
		PortSearchAttempts: 10,

		StorageRoot:  filepath.Join(appDir, "uploads"),
		PublicPrefix: "/uploads",
		DatabasePath: filepath.Join(appDir, "scramer.db"),
		LogPath:      "",
		LogLevel:     "info",

		FFmpegPath:           "ffmpeg",
		RecognizedExtensions: []string{".webm", ".mp4", ".mkv"},
		SpeedMultipliers:     []int{2, 5, 10},
		TempoLimit:           2.0,
		DiscriminatorWidth:   13,
		EncodeTimeoutSeconds: 1800,
		VariantWorkers:       1,
		ValidateFastPath:     true,
		Reencode:             DefaultReencodeConfig(),

		ValidateUploads:    false,
		MaxUploadMegabytes: 512,
	}
}

// DefaultReencodeConfig returns the H.264/AAC profile used by the fallback path
func DefaultReencodeConfig() ReencodeConfig {
	return ReencodeConfig{
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          23,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}

// LoadConfig loads the configuration from a JSON file. Keys missing from the
// file keep their default values. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	config := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file doesn't exist, we can proceed with the default config
			return config, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.normalize()
	return config, nil
}

// normalize fills zero values a partial config file may leave behind
func (c *Config) normalize() {
	defaults := DefaultConfig()

	if c.PortSearchAttempts <= 0 {
		c.PortSearchAttempts = 1
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = defaults.PublicPrefix
	}
	c.PublicPrefix = "/" + strings.Trim(c.PublicPrefix, "/")
	if c.FFmpegPath == "" {
		c.FFmpegPath = defaults.FFmpegPath
	}
	if c.VariantWorkers <= 0 {
		c.VariantWorkers = 1
	}
	for i, ext := range c.RecognizedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.RecognizedExtensions[i] = ext
	}

	r := &c.Reencode
	d := defaults.Reencode
	if r.VideoCodec == "" {
		r.VideoCodec = d.VideoCodec
	}
	if r.Preset == "" {
		r.Preset = d.Preset
	}
	if r.CRF == 0 {
		r.CRF = d.CRF
	}
	if r.PixelFormat == "" {
		r.PixelFormat = d.PixelFormat
	}
	if r.AudioCodec == "" {
		r.AudioCodec = d.AudioCodec
	}
	if r.AudioBitrate == "" {
		r.AudioBitrate = d.AudioBitrate
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if strings.Trim(c.PublicPrefix, "/") == "" {
		return fmt.Errorf("public_prefix must name a path below the server root")
	}
	if len(c.RecognizedExtensions) == 0 {
		return fmt.Errorf("recognized_extensions must not be empty")
	}
	for _, ext := range c.RecognizedExtensions {
		if len(ext) < 2 {
			return fmt.Errorf("invalid recognized extension: %q", ext)
		}
	}
	for _, m := range c.SpeedMultipliers {
		if m < 2 {
			return fmt.Errorf("invalid speed multiplier %d: must be at least 2", m)
		}
	}
	if c.TempoLimit < 0.5 || c.TempoLimit > 100 {
		return fmt.Errorf("invalid tempo_limit %.2f: ffmpeg atempo accepts 0.5 to 100", c.TempoLimit)
	}
	if c.DiscriminatorWidth < 0 || c.DiscriminatorWidth > 64 {
		return fmt.Errorf("invalid discriminator_width: %d", c.DiscriminatorWidth)
	}
	if c.EncodeTimeoutSeconds < 0 {
		return fmt.Errorf("invalid encode_timeout_seconds: %d", c.EncodeTimeoutSeconds)
	}
	if c.MaxUploadMegabytes < 0 {
		return fmt.Errorf("invalid max_upload_megabytes: %d", c.MaxUploadMegabytes)
	}
	if c.Reencode.CRF < 0 || c.Reencode.CRF > 51 {
		return fmt.Errorf("invalid reencode crf: %d", c.Reencode.CRF)
	}
	return nil
}

// EncodeTimeout returns the per-invocation encoder bound; zero disables it
func (c *Config) EncodeTimeout() time.Duration {
	return time.Duration(c.EncodeTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes; zero means unlimited
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMegabytes) * 1024 * 1024
}

// SaveConfig saves the configuration to a JSON file
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}

	return nil
}

// ConfigOverrides holds potential override values for configuration
type ConfigOverrides struct {
	ListenAddr   *string
	Port         *int
	StorageRoot  *string
	DatabasePath *string
	LogLevel     *string
	FFmpegPath   *string
}

// Override allows overriding specific configuration values using ConfigOverrides struct
func (c *Config) Override(overrides ConfigOverrides) {
	if overrides.ListenAddr != nil && *overrides.ListenAddr != "" {
		c.ListenAddr = *overrides.ListenAddr
	}
	if overrides.Port != nil && *overrides.Port != 0 {
		c.Port = *overrides.Port
	}
	if overrides.StorageRoot != nil && *overrides.StorageRoot != "" {
		c.StorageRoot = *overrides.StorageRoot
	}
	if overrides.DatabasePath != nil && *overrides.DatabasePath != "" {
		c.DatabasePath = *overrides.DatabasePath
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		c.LogLevel = *overrides.LogLevel
	}
	if overrides.FFmpegPath != nil && *overrides.FFmpegPath != "" {
		c.FFmpegPath = *overrides.FFmpegPath
	}
}
