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

package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/migrc/cmd/migrc/commands"
	"github.com/walteh/migrc/cmd/migrc/opts"
)

// newRootCmd creates the migrc root command
func newRootCmd() *cobra.Command {
	rootOpts := &opts.RootOpts{}

	rootCmd := &cobra.Command{
		Use:   "migrc",
		Short: "Migrate catalog images from a legacy shop to its replacement platform",
		Long: `migrc extracts the product catalog from a legacy shop database,
stages the product images from the shop's FTP file store with checksum
verification, and uploads them to the destination platform's REST API
in deduplicating batches. Every run produces an auditable JSON report.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Flags are parsed by now; attach the leveled logger to the
			// command context so every component logs through it.
			level := zerolog.InfoLevel
			if rootOpts.Debug {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().
				Timestamp().
				Logger()
			cmd.SetContext(logger.WithContext(cmd.Context()))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&rootOpts.ConfigFile, "config", "c", ".migrc.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.Debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&rootOpts.Async, "async", false, "run operations asynchronously")

	rootCmd.AddCommand(
		commands.NewExtractCmd(rootOpts),
		commands.NewMigrateCmd(rootOpts),
		commands.NewVersionCmd(),
	)

	return rootCmd
}
