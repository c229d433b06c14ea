// Package config holds the process-wide settings snapshot. Values come
// from defaults overridden by environment variables (and an optional
// config.yaml next to the binary).
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Settings struct {
	AppName string `mapstructure:"app_name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	MaxUploadSize       int64  `mapstructure:"max_upload_size"`
	MaxArchiveSize      int64  `mapstructure:"max_archive_size"`
	MaxImagesPerRequest int    `mapstructure:"max_images_per_request"`
	TempDir             string `mapstructure:"temp_dir"`

	// OCRLanguages is a JSON array string, e.g. `["en","de"]`.
	OCRLanguages        string  `mapstructure:"ocr_languages"`
	OCRGPUEnabled       bool    `mapstructure:"ocr_gpu_enabled"`
	OCRTimeoutSeconds   int     `mapstructure:"ocr_timeout_seconds"`
	MaxConcurrentOCR    int     `mapstructure:"max_concurrent_ocr"`
	OCRParagraphMode    bool    `mapstructure:"ocr_paragraph_mode"`
	OCRMinConfidence    float64 `mapstructure:"ocr_min_confidence"`
	OCRStripWhitespace  bool    `mapstructure:"ocr_strip_whitespace"`
	OCRRemoveEmptyLines bool    `mapstructure:"ocr_remove_empty_lines"`

	// OCRMaxImageSize caps image width in pixels before recognition;
	// zero disables resizing.
	OCRMaxImageSize int `mapstructure:"ocr_max_image_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "OCR Image Processing API")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("debug", false)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("max_upload_size", 100*1024*1024)
	v.SetDefault("max_archive_size", 500*1024*1024)
	v.SetDefault("max_images_per_request", 50)
	v.SetDefault("temp_dir", "./temp")
	v.SetDefault("ocr_languages", `["en"]`)
	v.SetDefault("ocr_gpu_enabled", false)
	v.SetDefault("ocr_timeout_seconds", 30)
	v.SetDefault("max_concurrent_ocr", 4)
	v.SetDefault("ocr_paragraph_mode", false)
	v.SetDefault("ocr_min_confidence", 0.0)
	v.SetDefault("ocr_strip_whitespace", true)
	v.SetDefault("ocr_remove_empty_lines", false)
	v.SetDefault("ocr_max_image_size", 1920)
}

// Load builds a Settings snapshot from defaults, an optional
// config.yaml in the working directory, and environment overrides
// (OCR_LANGUAGES, MAX_CONCURRENT_OCR, ...).
func Load() (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &s, nil
}

// Languages parses the OCRLanguages JSON array, falling back to
// ["en"] on malformed input.
func (s *Settings) Languages() []string {
	var langs []string
	if err := json.Unmarshal([]byte(s.OCRLanguages), &langs); err != nil || len(langs) == 0 {
		return []string{"en"}
	}
	return langs
}

// Addr returns the host:port listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
