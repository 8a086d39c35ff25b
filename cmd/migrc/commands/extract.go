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
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/migrc/cmd/migrc/opts"
	"github.com/walteh/migrc/pkg/log"
	"github.com/walteh/migrc/pkg/operation"
)

// NewExtractCmd creates the extract command
func NewExtractCmd(rootOpts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the catalog and stage images without uploading",
		Long: `Extract runs phases 1 and 2 only: it reads products from the
source database, stages their images locally with checksum verification
and writes the reconciliation snapshot. Nothing touches the destination.`,
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
			console.Header("extracting catalog")

			runner := operation.NewRunner(logger, rootOpts.Async)
			doc, err := runner.Run(ctx, &operation.ExtractOperation{Operator: operator})
			if err != nil {
				return err
			}

			console.Successf("%d products extracted, %d images staged (report %s)",
				doc.Summary.TotalProducts, doc.Summary.TotalImages, doc.RunID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rootOpts.KeepStaged, "keep-staged", false, "keep the staging directory for inspection")

	return cmd
}
