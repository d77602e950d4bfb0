/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tomoncle/coredb/database"
	"github.com/tomoncle/coredb/migration"
	"github.com/tomoncle/coredb/utils"
)

type options struct {
	roots     []string
	pattern   string
	config    string
	env       string
	logFormat string
	verbose   bool
	fs        afero.Fs
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(afero.NewOsFs())
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("migrate: %v", err))
		os.Exit(1)
	}
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	opts := &options{fs: fs}
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Discover SQL migrations across packages and run them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.logFormat != "" {
				utils.ConfigureConsoleLogFormat(opts.logFormat)
			}
			if opts.verbose {
				utils.ConfigureLogLevel("debug")
			}
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringSliceVar(&opts.roots, "root", []string{"packages"}, "Directories holding one sub directory per package")
	flags.StringVar(&opts.pattern, "pattern", migration.DefaultPattern, "Glob of migration files below each root")
	flags.StringVar(&opts.config, "config", "", "YAML file with development, test and production sections")
	flags.StringVar(&opts.env, "env", "", "Environment section to use (default APP_ENV or development)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (default CONSOLE_LOG_FORMAT)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newUpCommand(opts))
	cmd.AddCommand(newDownCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered migrations by package without touching the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descs, err := migration.Discover(opts.fs, opts.roots, opts.pattern)
			if err != nil {
				return err
			}
			printDiscovery(cmd.OutOrStdout(), descs)
			return nil
		},
	}
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), opts, cmd.OutOrStdout(), func(ctx context.Context, mm *database.MigrationManager) error {
				results, err := mm.Up(ctx)
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), results)
				return nil
			})
		},
	}
}

func newDownCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), opts, cmd.OutOrStdout(), func(ctx context.Context, mm *database.MigrationManager) error {
				result, err := mm.Down(ctx)
				if err != nil {
					return err
				}
				if result == nil {
					printResults(cmd.OutOrStdout(), nil)
					return nil
				}
				printResults(cmd.OutOrStdout(), []database.MigrationResult{*result})
				return nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrations(cmd.Context(), opts, cmd.OutOrStdout(), func(ctx context.Context, mm *database.MigrationManager) error {
				statuses, err := mm.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
}

// withMigrations prints the discovery report, connects and runs fn. Nothing
// connects when no migration file is found.
func withMigrations(ctx context.Context, opts *options, out io.Writer, fn func(context.Context, *database.MigrationManager) error) error {
	descs, err := migration.Discover(opts.fs, opts.roots, opts.pattern)
	if err != nil {
		return err
	}
	printDiscovery(out, descs)
	if len(descs) == 0 {
		return nil
	}

	cfg, err := database.LoadConfig(opts.config, opts.env)
	if err != nil {
		return err
	}
	manager := database.NewManager(cfg, database.GetLogger())
	if err := manager.Connect(ctx); err != nil {
		return database.TranslateError(err)
	}
	defer func() { _ = manager.Disconnect() }()

	mm := database.NewMigrationManager(manager, database.MigrationSource{
		Fs:      opts.fs,
		Roots:   opts.roots,
		Pattern: opts.pattern,
	}, database.GetLogger())
	return fn(ctx, mm)
}
