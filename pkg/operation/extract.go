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

package operation

import (
	"context"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/catalog"
	"github.com/walteh/migrc/pkg/report"
	"github.com/walteh/migrc/pkg/stage"
	"github.com/walteh/migrc/pkg/transfer"
	"github.com/walteh/migrc/pkg/upload"
	"gitlab.com/tozd/go/errors"
)

// 📦 stagedProduct carries one product through phases 2 and 3
type stagedProduct struct {
	product catalog.Product
	staged  []stage.StagedImage
}

// Extract implements Operator.Extract
func (o *operator) Extract(ctx context.Context) (report.Document, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Msg("starting extraction")

	rep := report.New()
	if _, err := o.extractAndStage(ctx, rep); err != nil {
		return report.Document{}, err
	}

	if !o.cfg.Staging.Keep {
		defer func() {
			if err := o.stager.Clean(); err != nil {
				logger.Warn().Err(err).Msg("cleaning staging directory")
			}
		}()
	}

	doc := rep.Snapshot()
	if err := o.writeReport(doc); err != nil {
		return report.Document{}, err
	}

	logger.Info().
		Int("products", doc.Summary.TotalProducts).
		Int("images", doc.Summary.TotalImages).
		Msg("extraction complete")

	return doc, nil
}

// extractAndStage runs phase 1 (catalog read) and phase 2 (image staging).
// Per-product failures are recorded in the report and never stop the run;
// only a source-store failure is fatal.
func (o *operator) extractAndStage(ctx context.Context, rep *report.Report) ([]stagedProduct, error) {
	logger := zerolog.Ctx(ctx)

	products, err := o.reader.Extract(ctx)
	if err != nil {
		return nil, errors.Errorf("extracting catalog: %w", err)
	}

	var out []stagedProduct
	skipped := 0
	for _, product := range products {
		if o.skipProduct(product.Slug) {
			skipped++
			logger.Debug().Str("product", product.Slug).Msg("product skipped by pattern")
			continue
		}

		if o.cfg.Migrate.DiscoverImages {
			refs, derr := o.discoverRefs(ctx, product)
			if derr != nil {
				logger.Warn().
					Str("product", product.Slug).
					Err(derr).
					Msg("image discovery failed, trusting catalog rows")
			} else {
				product.Images = refs
			}
		}

		rep.AddProduct(product.Slug, report.Entry{
			SourceID: product.SourceID,
			SKU:      product.SKU,
			Images:   len(product.Images),
			Stock:    product.Stock,
			Folder:   filepath.Join(o.cfg.Staging.Dir, product.Slug),
		})

		staged, failures, serr := o.stager.Stage(ctx, product)
		if serr != nil {
			// The whole product could not stage (e.g. directory creation);
			// account for every image and move on.
			logger.Error().Str("product", product.Slug).Err(serr).Msg("staging failed")
			for i, ref := range product.Images {
				rep.RecordOutcome(product.Slug, failureOutcome(product.Slug, ref, i+1, serr))
			}
			continue
		}
		for _, failure := range failures {
			rep.RecordOutcome(product.Slug, failureOutcome(product.Slug, failure.Ref, failure.Seq, failure.Err))
		}

		out = append(out, stagedProduct{product: product, staged: staged})
	}

	logger.Info().
		Int("products", len(out)).
		Int("skipped", skipped).
		Msg("catalog staged")

	return out, nil
}

// skipProduct matches the product slug against the configured skip patterns
func (o *operator) skipProduct(slug string) bool {
	for _, pattern := range o.cfg.Migrate.Skip {
		if ok, err := doublestar.Match(pattern, slug); err == nil && ok {
			return true
		}
	}
	return false
}

// discoverRefs lists the remote directories behind a product's image
// references and rebuilds the reference list from what is actually there,
// keeping catalog checksums for paths both sides agree on.
func (o *operator) discoverRefs(ctx context.Context, product catalog.Product) ([]catalog.ImageRef, error) {
	known := make(map[string]string, len(product.Images)) // remote path -> checksum
	var dirs []string
	seen := map[string]bool{}
	for _, ref := range product.Images {
		known[ref.RemotePath] = ref.Checksum
		dir := path.Dir(ref.RemotePath)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	var refs []catalog.ImageRef
	for _, dir := range dirs {
		entries, err := transfer.Discover(ctx, o.store, dir, o.cfg.Migrate.ImagePatterns)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			remote := path.Join(dir, entry.Name)
			refs = append(refs, catalog.ImageRef{
				RemotePath: remote,
				Checksum:   known[remote],
			})
		}
	}

	if len(refs) == 0 {
		return nil, errors.Errorf("no images discovered for %s", product.Slug)
	}
	return refs, nil
}

// failureOutcome converts a staging failure into a report outcome so every
// image reference stays accounted for
func failureOutcome(slug string, ref catalog.ImageRef, seq int, err error) upload.Outcome {
	ext := strings.TrimPrefix(path.Ext(ref.RemotePath), ".")
	if ext == "" {
		ext = "jpg"
	}
	return upload.Outcome{
		Slug:      slug,
		Seq:       seq,
		Filename:  slug + "-" + strconv.Itoa(seq) + "." + ext,
		Status:    upload.StatusFailed,
		ErrorKind: stageErrorKind(err),
	}
}

// stageErrorKind maps staging errors to the report's error_kind vocabulary
func stageErrorKind(err error) string {
	var ierr *stage.IntegrityError
	if errors.As(err, &ierr) {
		return "integrity"
	}
	var terr *transfer.Error
	if errors.As(err, &terr) {
		return terr.Kind.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "staging"
}

// writeReport persists a document under the configured report directory
func (o *operator) writeReport(doc report.Document) error {
	target := filepath.Join(o.cfg.Report.Dir, report.Filename(o.now()))
	if err := report.WriteFile(doc, target); err != nil {
		return errors.Errorf("writing report: %w", err)
	}
	return nil
}
