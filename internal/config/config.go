// Package config loads process configuration from environment variables
// and an optional config file via viper, without fsnotify hot-reload:
// nothing in this pipeline needs a live config swap mid-job, so config is
// loaded once at startup.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "VPPE"

// Config is the full set of process configuration, unmarshaled once from
// viper at startup.
type Config struct {
	OllamaBaseURL string `mapstructure:"ollama_base_url"`
	OllamaModel   string `mapstructure:"ollama_model"`

	OCRTimeoutSeconds int `mapstructure:"ocr_timeout"`
	OCRRetries        int `mapstructure:"ocr_retries"`

	RenderDPI     int `mapstructure:"render_dpi"`
	JPEGQuality   int `mapstructure:"jpeg_quality"`
	RenderWorkers int `mapstructure:"render_workers"`

	OCRWorkers      int `mapstructure:"ocr_workers"`
	RenderQueueSize int `mapstructure:"render_queue_size"`
	PagesPerChapter int `mapstructure:"pages_per_chapter"`

	DataDir string `mapstructure:"data_dir"`

	JobTTLHours int `mapstructure:"job_ttl_hours"`
	PDFTTLHours int `mapstructure:"pdf_ttl_hours"`

	SSERingBufferSize int `mapstructure:"sse_ring_buffer_size"`

	DefaultOCRPrompt string `mapstructure:"default_ocr_prompt"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
	LogLevel               string `mapstructure:"log_level"`
}

// Load reads configuration from VPPE_*-prefixed environment variables (and
// cfgFile, if non-empty) applying defaults for anything unset.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("ollama_base_url", "http://localhost:11434")
	v.SetDefault("ollama_model", "qwen2.5-vl:7b")
	v.SetDefault("ocr_timeout", 120)
	v.SetDefault("ocr_retries", 3)
	v.SetDefault("render_dpi", 300)
	v.SetDefault("jpeg_quality", 85)
	v.SetDefault("render_workers", 0) // 0 means runtime.NumCPU() at the call site
	v.SetDefault("ocr_workers", 2)
	v.SetDefault("render_queue_size", 4)
	v.SetDefault("pages_per_chapter", 20)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("job_ttl_hours", 24)
	v.SetDefault("pdf_ttl_hours", 1)
	v.SetDefault("sse_ring_buffer_size", 200)
	v.SetDefault("default_ocr_prompt", "Extract all text from this scanned book page. Preserve paragraph structure. Output only the extracted text, nothing else.")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8080)
	v.SetDefault("cleanup_interval_minutes", 10)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// OCRTimeout returns OCRTimeoutSeconds as a time.Duration.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSeconds) * time.Second
}

// JobTTL returns JobTTLHours as a time.Duration.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// PDFTTL returns PDFTTLHours as a time.Duration.
func (c *Config) PDFTTL() time.Duration {
	return time.Duration(c.PDFTTLHours) * time.Hour
}

// CleanupInterval returns CleanupIntervalMinutes as a time.Duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}
