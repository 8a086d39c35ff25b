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

	"github.com/rs/zerolog"
	"github.com/walteh/migrc/pkg/report"
	"github.com/walteh/migrc/pkg/upload"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Migrate implements Operator.Migrate
func (o *operator) Migrate(ctx context.Context) (report.Document, error) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Msg("starting migration")

	// Staging space is reclaimed on every exit path unless the operator
	// asked to keep it for debugging.
	if !o.cfg.Staging.Keep {
		defer func() {
			if err := o.stager.Clean(); err != nil {
				logger.Warn().Err(err).Msg("cleaning staging directory")
			}
		}()
	}

	rep := report.New()
	stagedProducts, err := o.extractAndStage(ctx, rep)
	if err != nil {
		return report.Document{}, err
	}

	snapshot := rep.Snapshot()
	confirmed, err := o.confirmer.Confirm(ctx, snapshot)
	if err != nil {
		return report.Document{}, errors.Errorf("confirmation gate: %w", err)
	}
	if !confirmed {
		// Declined: phase 3 never starts, no destination call is made.
		logger.Warn().Msg("migration declined at confirmation gate")
		doc := rep.Finalize()
		if werr := o.writeReport(doc); werr != nil {
			return report.Document{}, werr
		}
		return doc, nil
	}

	if err := o.uploadAll(ctx, rep, stagedProducts); err != nil {
		return report.Document{}, err
	}

	doc := rep.Finalize()
	if err := o.writeReport(doc); err != nil {
		return report.Document{}, err
	}

	logger.Info().
		Int("products", doc.Summary.TotalProducts).
		Int("successful", doc.Summary.SuccessfulMigrations).
		Int("failed", doc.Summary.FailedMigrations).
		Msg("migration complete")

	return doc, nil
}

// uploadAll runs phase 3: products resolve and upload in parallel, bounded
// by the configured concurrency. A product that cannot resolve fails alone;
// only context cancellation stops the group.
func (o *operator) uploadAll(ctx context.Context, rep *report.Report, stagedProducts []stagedProduct) error {
	logger := zerolog.Ctx(ctx)

	var g errgroup.Group
	g.SetLimit(o.cfg.Migrate.Concurrency)

	for _, sp := range stagedProducts {
		sp := sp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			ref, err := o.resolver.Resolve(ctx, sp.product)
			if err != nil {
				logger.Error().
					Str("product", sp.product.Slug).
					Err(err).
					Msg("product resolution failed")
				for _, img := range sp.staged {
					rep.RecordOutcome(sp.product.Slug, upload.Outcome{
						Slug:      img.ProductSlug,
						Seq:       img.Seq,
						Filename:  img.Filename(),
						Status:    upload.StatusFailed,
						ErrorKind: "resolve",
					})
				}
				return nil
			}

			for _, outcome := range o.uploader.UploadProduct(ctx, ref, sp.staged) {
				rep.RecordOutcome(sp.product.Slug, outcome)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Errorf("uploading products: %w", err)
	}
	return nil
}
