package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Detector DetectorConfig `json:"detector"`
	Crop     CropConfig     `json:"crop"`
	Output   OutputConfig   `json:"output"`
	Display  DisplayConfig  `json:"display"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
}

// DetectorConfig selects and tunes the face detector
type DetectorConfig struct {
	Backend string `json:"backend"` // pigo, ollama or llamacpp

	CascadePath  string  `json:"cascade_path"`
	MinFaceSize  int     `json:"min_face_size"`
	MaxFaceSize  int     `json:"max_face_size"`
	ShiftFactor  float64 `json:"shift_factor"`
	ScaleFactor  float64 `json:"scale_factor"`
	IoUThreshold float64 `json:"iou_threshold"`
	MinQuality   float64 `json:"min_quality"`

	URL           string  `json:"url"`
	Model         string  `json:"model"`
	MaxDim        int     `json:"max_dim"`
	MinConfidence float64 `json:"min_confidence"`
	Timeout       string  `json:"timeout"`
}

// CropConfig holds the framing around the detected face
type CropConfig struct {
	Shoulder   float64 `json:"shoulder"`
	Headroom   float64 `json:"headroom"`
	Chest      float64 `json:"chest"`
	MinSize    float64 `json:"min_size"`
	LockAspect bool    `json:"lock_aspect"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	PreviewSize   int    `json:"preview_size"`
	Shape         string `json:"shape"`
	DefaultFormat string `json:"default_format"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
}

// DisplayConfig holds the editor display settings
type DisplayConfig struct {
	MaxWidth float64 `json:"max_width"`
}

// ServerConfig holds the HTTP editor settings
type ServerConfig struct {
	Addr           string   `json:"addr"`
	MaxUploadMB    int      `json:"max_upload_mb"`
	UploadsPerSec  float64  `json:"uploads_per_sec"`
	UploadBurst    int      `json:"upload_burst"`
	SessionTTL     string   `json:"session_ttl"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // text or json
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			Backend:       "pigo",
			CascadePath:   "./cascade/facefinder",
			MinFaceSize:   20,
			ShiftFactor:   0.1,
			ScaleFactor:   1.1,
			IoUThreshold:  0.2,
			MinQuality:    5.0,
			URL:           "http://localhost:11434",
			Model:         "qwen2.5vl:7b",
			MaxDim:        1024,
			MinConfidence: 0.3,
			Timeout:       "5m",
		},
		Crop: CropConfig{
			Shoulder: 0.3,
			Headroom: 0.75,
			Chest:    1.5,
			MinSize:  50,
		},
		Output: OutputConfig{
			Width:         413,
			Height:        531,
			PreviewSize:   300,
			Shape:         "rect",
			DefaultFormat: "png",
			Quality:       95,
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_cropped",
		},
		Display: DisplayConfig{
			MaxWidth: 500,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   20,
			UploadsPerSec: 2,
			UploadBurst:   5,
			SessionTTL:    "30m",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename when it exists and returns the defaults otherwise.
func Load(filename string) (*Config, error) {
	config, err := LoadFromFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.Detector.Backend) {
	case "pigo":
		if c.Detector.CascadePath == "" {
			return fmt.Errorf("detector.cascade_path is required for the pigo backend")
		}
		if c.Detector.ScaleFactor <= 1 {
			return fmt.Errorf("detector.scale_factor must be greater than 1")
		}
		if c.Detector.ShiftFactor <= 0 || c.Detector.ShiftFactor > 1 {
			return fmt.Errorf("detector.shift_factor must be between 0 and 1")
		}
	case "ollama", "llamacpp":
		if c.Detector.URL == "" {
			return fmt.Errorf("detector.url is required for the %s backend", c.Detector.Backend)
		}
		if c.Detector.Model == "" && c.Detector.Backend == "ollama" {
			return fmt.Errorf("detector.model is required for the ollama backend")
		}
	default:
		return fmt.Errorf("detector.backend must be one of pigo, ollama, llamacpp (got %q)", c.Detector.Backend)
	}

	if c.Detector.Timeout != "" {
		if _, err := time.ParseDuration(c.Detector.Timeout); err != nil {
			return fmt.Errorf("detector.timeout: %w", err)
		}
	}

	if c.Crop.Shoulder < 0 || c.Crop.Headroom < 0 || c.Crop.Chest < 0 {
		return fmt.Errorf("crop framing factors must not be negative")
	}

	if c.Crop.MinSize < 1 {
		return fmt.Errorf("crop.min_size must be positive")
	}

	if c.Output.Width < 1 || c.Output.Height < 1 {
		return fmt.Errorf("output.width and output.height must be positive")
	}

	if c.Output.PreviewSize < 1 {
		return fmt.Errorf("output.preview_size must be positive")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.DefaultFormat) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.default_format must be png, jpg or webp")
	}

	switch strings.ToLower(c.Output.Shape) {
	case "", "rect", "circle":
	default:
		return fmt.Errorf("output.shape must be rect or circle")
	}

	if c.Display.MaxWidth < 0 {
		return fmt.Errorf("display.max_width must not be negative")
	}

	if c.Server.SessionTTL != "" {
		if _, err := time.ParseDuration(c.Server.SessionTTL); err != nil {
			return fmt.Errorf("server.session_ttl: %w", err)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// DetectorTimeout returns the parsed detector timeout, or zero.
func (c *Config) DetectorTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Detector.Timeout)
	return d
}

// SessionTTL returns the parsed session lifetime, or zero.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Server.SessionTTL)
	return d
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "headshot", "config.json")
}
