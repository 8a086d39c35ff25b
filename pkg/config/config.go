// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// ⏱️ Duration wraps time.Duration so config files can say "500ms" or "30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Errorf("parsing duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// 🗄️ DatabaseConfig describes the source catalog database
type DatabaseConfig struct {
	DSN     string   `yaml:"dsn"`
	Prefix  string   `yaml:"prefix,omitempty"`
	LangID  int      `yaml:"lang_id,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// 📡 FTPConfig describes the remote image store
type FTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	BasePath string   `yaml:"base_path,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// 📦 SourceConfig groups everything read from the legacy shop
type SourceConfig struct {
	Database DatabaseConfig `yaml:"database"`
	FTP      FTPConfig      `yaml:"ftp"`
}

// 🌐 APIConfig describes the destination REST endpoint
type APIConfig struct {
	BaseURL        string   `yaml:"base_url"`
	ConsumerKey    string   `yaml:"consumer_key,omitempty"`
	ConsumerSecret string   `yaml:"consumer_secret,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
}

// 🎯 DestinationConfig groups the destination platform settings
type DestinationConfig struct {
	API APIConfig `yaml:"api"`
}

// 📁 StagingConfig controls the local image staging area
type StagingConfig struct {
	Dir  string `yaml:"dir,omitempty"`
	Keep bool   `yaml:"keep,omitempty"`
}

// 🚚 MigrateConfig tunes the upload pipeline
type MigrateConfig struct {
	BatchSize      int      `yaml:"batch_size,omitempty"`
	Concurrency    int      `yaml:"concurrency,omitempty"`
	Skip           []string `yaml:"skip,omitempty"`
	DiscoverImages bool     `yaml:"discover_images,omitempty"`
	ImagePatterns  []string `yaml:"image_patterns,omitempty"`
}

// 🔁 RetryConfig tunes the shared retry executor
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts,omitempty"`
	BaseDelay   Duration `yaml:"base_delay,omitempty"`
	Multiplier  float64  `yaml:"multiplier,omitempty"`
	MaxDelay    Duration `yaml:"max_delay,omitempty"`
}

// 📊 ReportConfig controls where run reports land
type ReportConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// 📚 Config represents the complete migration configuration
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Destination DestinationConfig `yaml:"destination"`
	Staging     StagingConfig     `yaml:"staging,omitempty"`
	Migrate     MigrateConfig     `yaml:"migrate,omitempty"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
	Report      ReportConfig      `yaml:"report,omitempty"`

	location string
}

// 📍 Location returns the path the config was loaded from
func (cfg *Config) Location() string {
	return cfg.location
}

// 🎯 Load loads the configuration from a file. Secrets left empty in the
// file fall back to MIGRC_* environment variables so credentials never
// have to live on disk.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}
	cfg.location = path

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnv fills empty secrets from the environment
func (cfg *Config) applyEnv() {
	if cfg.Source.Database.DSN == "" {
		cfg.Source.Database.DSN = os.Getenv("MIGRC_DB_DSN")
	}
	if cfg.Source.FTP.Password == "" {
		cfg.Source.FTP.Password = os.Getenv("MIGRC_FTP_PASSWORD")
	}
	if cfg.Destination.API.ConsumerKey == "" {
		cfg.Destination.API.ConsumerKey = os.Getenv("MIGRC_CONSUMER_KEY")
	}
	if cfg.Destination.API.ConsumerSecret == "" {
		cfg.Destination.API.ConsumerSecret = os.Getenv("MIGRC_CONSUMER_SECRET")
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Source.Database.Prefix == "" {
		cfg.Source.Database.Prefix = "ps_"
	}
	if cfg.Source.Database.LangID == 0 {
		cfg.Source.Database.LangID = 1
	}
	if cfg.Source.Database.Timeout.Duration == 0 {
		cfg.Source.Database.Timeout.Duration = 10 * time.Second
	}
	if cfg.Source.FTP.Port == 0 {
		cfg.Source.FTP.Port = 21
	}
	if cfg.Source.FTP.BasePath == "" {
		cfg.Source.FTP.BasePath = "/img/p"
	}
	if cfg.Source.FTP.Timeout.Duration == 0 {
		cfg.Source.FTP.Timeout.Duration = 30 * time.Second
	}
	if cfg.Destination.API.Timeout.Duration == 0 {
		cfg.Destination.API.Timeout.Duration = 30 * time.Second
	}
	if cfg.Staging.Dir == "" {
		cfg.Staging.Dir = ".migrc-staging"
	}
	if cfg.Migrate.BatchSize == 0 {
		cfg.Migrate.BatchSize = 5
	}
	if cfg.Migrate.Concurrency == 0 {
		cfg.Migrate.Concurrency = 4
	}
	if len(cfg.Migrate.ImagePatterns) == 0 {
		cfg.Migrate.ImagePatterns = []string{"*.jpg", "*.jpeg", "*.png"}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay.Duration == 0 {
		cfg.Retry.BaseDelay.Duration = 500 * time.Millisecond
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2.0
	}
	if cfg.Retry.MaxDelay.Duration == 0 {
		cfg.Retry.MaxDelay.Duration = 10 * time.Second
	}
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = "reports"
	}
}

// 🔍 Validate checks if the configuration is valid
func (cfg *Config) Validate() error {
	if cfg.Source.Database.DSN == "" {
		return errors.Errorf("source.database.dsn is required")
	}
	if cfg.Source.FTP.Host == "" {
		return errors.Errorf("source.ftp.host is required")
	}
	if cfg.Destination.API.BaseURL == "" {
		return errors.Errorf("destination.api.base_url is required")
	}
	if cfg.Destination.API.ConsumerKey == "" || cfg.Destination.API.ConsumerSecret == "" {
		return errors.Errorf("destination.api credentials are required")
	}
	if cfg.Migrate.BatchSize < 1 {
		return errors.Errorf("migrate.batch_size must be at least 1")
	}
	if cfg.Migrate.Concurrency < 1 {
		return errors.Errorf("migrate.concurrency must be at least 1")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// 📝 String returns a redacted one-line summary of the config
func (cfg *Config) String() string {
	return fmt.Sprintf("%s -> %s (batch %d, concurrency %d)",
		cfg.Source.FTP.Host, cfg.Destination.API.BaseURL,
		cfg.Migrate.BatchSize, cfg.Migrate.Concurrency)
}
