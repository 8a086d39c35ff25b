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

package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/migrc/cmd/migrc/opts"
	"github.com/walteh/migrc/pkg/log"
	"github.com/walteh/migrc/pkg/operation"
	"github.com/walteh/migrc/pkg/report"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd(rootOpts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the full migration: extract, stage, confirm, upload",
		Long: `Migrate runs every phase of the pipeline:
1. Read products and image references from the source database
2. Stage images locally with checksum verification
3. Ask for confirmation (skip with --yes)
4. Upload staged images to the destination in deduplicating batches
5. Write the final reconciliation report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := zerolog.Ctx(ctx)

			cfg, err := rootOpts.LoadConfig(ctx)
			if err != nil {
				return err
			}

			operator, closer, err := rootOpts.BuildOperator(ctx, cfg)
			if err != nil {
				return err
			}
			defer closer()

			console := log.New(os.Stdout, logger.GetLevel())
			console.Header("migrating catalog images")

			runner := operation.NewRunner(logger, rootOpts.Async)
			doc, err := runner.Run(ctx, &operation.MigrateOperation{Operator: operator})
			if err != nil {
				return err
			}

			printResults(ctx, console, doc)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&rootOpts.Yes, "yes", "y", false, "skip the confirmation gate")
	cmd.Flags().BoolVar(&rootOpts.KeepStaged, "keep-staged", false, "keep the staging directory for debugging")

	return cmd
}

// printResults renders the per-product results and the run summary
func printResults(ctx context.Context, console *log.Logger, doc report.Document) {
	slugs := make([]string, 0, len(doc.Products))
	for slug := range doc.Products {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	for _, slug := range slugs {
		product := doc.Products[slug]
		console.StartProductOperation(ctx, log.ProductOperation{
			Slug:     slug,
			SourceID: product.ID,
			Images:   product.Images,
		})
		for _, outcome := range product.Outcomes {
			detail := outcome.ErrorKind
			if outcome.MediaID != 0 {
				detail = fmt.Sprintf("media %d", outcome.MediaID)
			}
			console.LogImageOperation(ctx, log.ImageOperation{
				Filename: outcome.Filename,
				Status:   outcome.Status,
				Attempts: outcome.Attempts,
				Detail:   detail,
			})
		}
		console.EndProductOperation(ctx)
	}

	console.LogNewline()
	if doc.Summary.FailedMigrations > 0 {
		console.Warningf("%d of %d products migrated, %d failed (report %s)",
			doc.Summary.SuccessfulMigrations, doc.Summary.TotalProducts,
			doc.Summary.FailedMigrations, doc.RunID)
		return
	}
	console.Successf("%d products migrated (report %s)",
		doc.Summary.SuccessfulMigrations, doc.RunID)
}
