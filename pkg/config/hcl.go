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
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

// 📝 Parse parses the config from HCL
func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	// Define HCL schema; durations are strings ("30s") parsed below
	type hclDatabase struct {
		DSN     string `hcl:"dsn,optional"`
		Prefix  string `hcl:"prefix,optional"`
		LangID  int    `hcl:"lang_id,optional"`
		Timeout string `hcl:"timeout,optional"`
	}
	type hclFTP struct {
		Host     string `hcl:"host,optional"`
		Port     int    `hcl:"port,optional"`
		Username string `hcl:"username,optional"`
		Password string `hcl:"password,optional"`
		BasePath string `hcl:"base_path,optional"`
		Timeout  string `hcl:"timeout,optional"`
	}
	type hclAPI struct {
		BaseURL        string `hcl:"base_url,optional"`
		ConsumerKey    string `hcl:"consumer_key,optional"`
		ConsumerSecret string `hcl:"consumer_secret,optional"`
		Timeout        string `hcl:"timeout,optional"`
	}
	type hclConfig struct {
		Source *struct {
			Database *hclDatabase `hcl:"database,block"`
			FTP      *hclFTP      `hcl:"ftp,block"`
		} `hcl:"source,block"`
		Destination *struct {
			API *hclAPI `hcl:"api,block"`
		} `hcl:"destination,block"`
		Staging *struct {
			Dir  string `hcl:"dir,optional"`
			Keep bool   `hcl:"keep,optional"`
		} `hcl:"staging,block"`
		Migrate *struct {
			BatchSize      int      `hcl:"batch_size,optional"`
			Concurrency    int      `hcl:"concurrency,optional"`
			Skip           []string `hcl:"skip,optional"`
			DiscoverImages bool     `hcl:"discover_images,optional"`
			ImagePatterns  []string `hcl:"image_patterns,optional"`
		} `hcl:"migrate,block"`
		Retry *struct {
			MaxAttempts int     `hcl:"max_attempts,optional"`
			BaseDelay   string  `hcl:"base_delay,optional"`
			Multiplier  float64 `hcl:"multiplier,optional"`
			MaxDelay    string  `hcl:"max_delay,optional"`
		} `hcl:"retry,block"`
		Report *struct {
			Dir string `hcl:"dir,optional"`
		} `hcl:"report,block"`
	}

	var hclCfg hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hclCfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	// Convert to model
	var cfg Config
	if hclCfg.Source != nil {
		if db := hclCfg.Source.Database; db != nil {
			cfg.Source.Database = DatabaseConfig{DSN: db.DSN, Prefix: db.Prefix, LangID: db.LangID}
			if err := parseHCLDuration(db.Timeout, &cfg.Source.Database.Timeout); err != nil {
				return nil, err
			}
		}
		if ftp := hclCfg.Source.FTP; ftp != nil {
			cfg.Source.FTP = FTPConfig{
				Host:     ftp.Host,
				Port:     ftp.Port,
				Username: ftp.Username,
				Password: ftp.Password,
				BasePath: ftp.BasePath,
			}
			if err := parseHCLDuration(ftp.Timeout, &cfg.Source.FTP.Timeout); err != nil {
				return nil, err
			}
		}
	}
	if hclCfg.Destination != nil && hclCfg.Destination.API != nil {
		api := hclCfg.Destination.API
		cfg.Destination.API = APIConfig{
			BaseURL:        api.BaseURL,
			ConsumerKey:    api.ConsumerKey,
			ConsumerSecret: api.ConsumerSecret,
		}
		if err := parseHCLDuration(api.Timeout, &cfg.Destination.API.Timeout); err != nil {
			return nil, err
		}
	}
	if hclCfg.Staging != nil {
		cfg.Staging = StagingConfig{Dir: hclCfg.Staging.Dir, Keep: hclCfg.Staging.Keep}
	}
	if hclCfg.Migrate != nil {
		cfg.Migrate = MigrateConfig{
			BatchSize:      hclCfg.Migrate.BatchSize,
			Concurrency:    hclCfg.Migrate.Concurrency,
			Skip:           hclCfg.Migrate.Skip,
			DiscoverImages: hclCfg.Migrate.DiscoverImages,
			ImagePatterns:  hclCfg.Migrate.ImagePatterns,
		}
	}
	if hclCfg.Retry != nil {
		cfg.Retry = RetryConfig{
			MaxAttempts: hclCfg.Retry.MaxAttempts,
			Multiplier:  hclCfg.Retry.Multiplier,
		}
		if err := parseHCLDuration(hclCfg.Retry.BaseDelay, &cfg.Retry.BaseDelay); err != nil {
			return nil, err
		}
		if err := parseHCLDuration(hclCfg.Retry.MaxDelay, &cfg.Retry.MaxDelay); err != nil {
			return nil, err
		}
	}
	if hclCfg.Report != nil {
		cfg.Report = ReportConfig{Dir: hclCfg.Report.Dir}
	}

	return &cfg, nil
}

func parseHCLDuration(raw string, out *Duration) error {
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Errorf("parsing duration %q: %w", raw, err)
	}
	out.Duration = parsed
	return nil
}
