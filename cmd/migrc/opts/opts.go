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

// Package opts wires the concrete database, FTP and REST collaborators
// into an operation.Operator from the loaded configuration.
package opts

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/config"
	"github.com/walteh/migrc/pkg/operation"
	"github.com/walteh/migrc/pkg/resolve"
	"github.com/walteh/migrc/pkg/retry"
	"github.com/walteh/migrc/pkg/stage"
	"github.com/walteh/migrc/pkg/transfer"
	"github.com/walteh/migrc/pkg/upload"
	"github.com/walteh/migrc/pkg/woo"
	"gitlab.com/tozd/go/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 🔧 RootOpts carries the flag values shared by every command
type RootOpts struct {
	ConfigFile string
	Debug      bool
	Async      bool
	Yes        bool
	KeepStaged bool
}

// 📚 LoadConfig loads and validates the configuration file, applying the
// command-line overrides that have config equivalents
func (o *RootOpts) LoadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, o.ConfigFile)
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}
	if o.KeepStaged {
		cfg.Staging.Keep = true
	}
	return cfg, nil
}

// 🏗️ BuildOperator connects the source database, the FTP image store and
// the destination API into a ready-to-run operator. The returned closer
// releases every connection and must run after the operation finishes.
func (o *RootOpts) BuildOperator(ctx context.Context, cfg *config.Config) (operation.Operator, func(), error) {
	logger := zerolog.Ctx(ctx)

	db, err := gorm.Open(mysql.Open(cfg.Source.Database.DSN), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, nil, errors.Errorf("opening source database: %w", err)
	}

	store, err := transfer.NewFTPStore(transfer.FTPConfig{
		Host:     cfg.Source.FTP.Host,
		Port:     cfg.Source.FTP.Port,
		Username: cfg.Source.FTP.Username,
		Password: cfg.Source.FTP.Password,
		BasePath: cfg.Source.FTP.BasePath,
		Timeout:  cfg.Source.FTP.Timeout.Duration,
		MaxConns: cfg.Migrate.Concurrency,
	})
	if err != nil {
		return nil, nil, errors.Errorf("creating ftp store: %w", err)
	}

	client, err := woo.NewClient(woo.Config{
		BaseURL:        cfg.Destination.API.BaseURL,
		ConsumerKey:    cfg.Destination.API.ConsumerKey,
		ConsumerSecret: cfg.Destination.API.ConsumerSecret,
		Timeout:        cfg.Destination.API.Timeout.Duration,
	})
	if err != nil {
		store.Close()
		return nil, nil, errors.Errorf("creating destination client: %w", err)
	}

	reader := catalog.NewReader(db, catalog.ReaderConfig{
		Prefix:        cfg.Source.Database.Prefix,
		LangID:        cfg.Source.Database.LangID,
		ImageBasePath: cfg.Source.FTP.BasePath,
	})

	stager := stage.NewStager(store, stage.Config{
		BaseDir:     cfg.Staging.Dir,
		Concurrency: cfg.Migrate.Concurrency,
		Retry:       retryConfig(cfg, transfer.IsRetryable),
	})

	resolver := resolve.NewResolver(client, retryConfig(cfg, woo.IsRetryable))

	uploader := upload.NewUploader(client, upload.Config{
		BatchSize: cfg.Migrate.BatchSize,
		Retry:     retryConfig(cfg, woo.IsRetryable),
	})

	operator, err := operation.New(operation.Options{
		Config:    cfg,
		Reader:    reader,
		Stager:    stager,
		Resolver:  resolver,
		Uploader:  uploader,
		Confirmer: &operation.CLIConfirmer{Auto: o.Yes},
		Store:     store,
	})
	if err != nil {
		store.Close()
		return nil, nil, errors.Errorf("creating operator: %w", err)
	}

	closer := func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing ftp store")
		}
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing source database")
			}
		}
	}

	return operator, closer, nil
}

// retryConfig translates the config retry block into an executor config
func retryConfig(cfg *config.Config, shouldRetry func(error) bool) retry.Config {
	return retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Duration,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    cfg.Retry.MaxDelay.Duration,
		ShouldRetry: shouldRetry,
	}
}
