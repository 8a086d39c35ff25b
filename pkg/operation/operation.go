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

// Package operation orchestrates the migration phases: catalog extraction,
// image staging, the operator confirmation gate and the batched upload.
package operation

import (
	"context"
	"time"

	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/config"
	"github.com/walteh/migrc/pkg/report"
	"github.com/walteh/migrc/pkg/resolve"
	"github.com/walteh/migrc/pkg/stage"
	"github.com/walteh/migrc/pkg/transfer"
	"github.com/walteh/migrc/pkg/upload"
	"gitlab.com/tozd/go/errors"
)

// 🎯 Operator defines the main interface for migrc operations
type Operator interface {
	// Extract runs phases 1–2: read the catalog and stage images locally,
	// then write the reconciliation snapshot.
	Extract(ctx context.Context) (report.Document, error)
	// Migrate runs the full pipeline: phases 1–2, the confirmation gate,
	// then phase 3 uploads and the final report.
	Migrate(ctx context.Context) (report.Document, error)
}

// 📖 CatalogReader reads products from the source store
type CatalogReader interface {
	Extract(ctx context.Context) ([]catalog.Product, error)
}

// 📥 ImageStager downloads and verifies a product's images
type ImageStager interface {
	Stage(ctx context.Context, product catalog.Product) ([]stage.StagedImage, []stage.Failure, error)
	Clean() error
}

// 🔎 ProductResolver maps a source product to its destination identity
type ProductResolver interface {
	Resolve(ctx context.Context, product catalog.Product) (resolve.ProductRef, error)
}

// 📤 BatchUploader pushes staged images to the destination
type BatchUploader interface {
	UploadProduct(ctx context.Context, ref resolve.ProductRef, staged []stage.StagedImage) []upload.Outcome
}

// 🙋 Confirmer is the single gate between staging and any destination
// write. Declining must leave phase 3 entirely unexecuted.
type Confirmer interface {
	Confirm(ctx context.Context, doc report.Document) (bool, error)
}

// 🔧 Options contains the collaborators for the operator
type Options struct {
	// Config is the migrc configuration
	Config *config.Config
	// Reader extracts products from the source database
	Reader CatalogReader
	// Stager downloads images into the staging area
	Stager ImageStager
	// Resolver maps products to destination ids
	Resolver ProductResolver
	// Uploader performs the batched destination uploads
	Uploader BatchUploader
	// Confirmer gates phase 3
	Confirmer Confirmer
	// Store is the remote file store, used only when image discovery
	// is enabled
	Store transfer.FileStore
}

// 🏭 New creates a new operator with the given options
func New(opts Options) (Operator, error) {
	if opts.Config == nil {
		return nil, errors.Errorf("config is required")
	}
	if opts.Reader == nil {
		return nil, errors.Errorf("catalog reader is required")
	}
	if opts.Stager == nil {
		return nil, errors.Errorf("image stager is required")
	}
	if opts.Resolver == nil {
		return nil, errors.Errorf("product resolver is required")
	}
	if opts.Uploader == nil {
		return nil, errors.Errorf("batch uploader is required")
	}
	if opts.Confirmer == nil {
		return nil, errors.Errorf("confirmer is required")
	}
	if opts.Config.Migrate.DiscoverImages && opts.Store == nil {
		return nil, errors.Errorf("file store is required when image discovery is enabled")
	}
	return &operator{
		cfg:       opts.Config,
		reader:    opts.Reader,
		stager:    opts.Stager,
		resolver:  opts.Resolver,
		uploader:  opts.Uploader,
		confirmer: opts.Confirmer,
		store:     opts.Store,
		now:       time.Now,
	}, nil
}

// 🎮 operator implements the Operator interface
type operator struct {
	cfg       *config.Config
	reader    CatalogReader
	stager    ImageStager
	resolver  ProductResolver
	uploader  BatchUploader
	confirmer Confirmer
	store     transfer.FileStore
	now       func() time.Time
}
