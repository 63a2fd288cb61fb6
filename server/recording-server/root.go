package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/config"
	"github.com/legendsaurav/scramer/server/core/merging"
	"github.com/legendsaurav/scramer/server/core/segments"
	"github.com/spf13/cobra"
)

// commandContext carries the persistent flags shared by every subcommand
type commandContext struct {
	configPath string

	listenAddr   string
	port         int
	storageRoot  string
	databasePath string
	logLevel     string
	ffmpegPath   string
}

// loadConfig reads the config file and applies flag overrides
func (c *commandContext) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(strings.TrimSpace(c.configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Override(config.ConfigOverrides{
		ListenAddr:   &c.listenAddr,
		Port:         &c.port,
		StorageRoot:  &c.storageRoot,
		DatabasePath: &c.databasePath,
		LogLevel:     &c.logLevel,
		FFmpegPath:   &c.ffmpegPath,
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openApplication loads the config and wires the components
func (c *commandContext) openApplication() (*application, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, serviceName)
	return newApplication(cfg, logger)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Receives recording segments, merges them and serves speed variants",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.listenAddr, "listen", "", "Address to listen on")
	flags.IntVar(&ctx.port, "port", 0, "First port to try")
	flags.StringVar(&ctx.storageRoot, "storage", "", "Root directory for uploaded segments")
	flags.StringVar(&ctx.databasePath, "db", "", "Path of the merge history database")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&ctx.ffmpegPath, "ffmpeg", "", "Path of the ffmpeg binary")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMergeCommand(ctx))
	rootCmd.AddCommand(newSessionsCommand(ctx))
	rootCmd.AddCommand(newMergesCommand(ctx))

	return rootCmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx)
		},
	}
}

func runServe(cmd *cobra.Command, ctx *commandContext) error {
	app, err := ctx.openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	// Save the config in case it was not found or updated
	if err := app.cfg.SaveConfig(ctx.configPath); err != nil {
		app.logger.Warn("Failed to save configuration", "error", err)
	}

	app.logger.Info("Starting recording server", "port", app.cfg.Port, "storage", app.cfg.StorageRoot)

	signalCtx, stop := signal.NotifyContext(commandContextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(signalCtx, app)
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var project, tool, date string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the segments of one bucket and print the produced renditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := segments.LookupBucket(project, tool, date)
			if !bucket.IsComplete() {
				return fmt.Errorf("--project, --tool and --date are required")
			}

			app, err := ctx.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.merger.Merge(commandContextOf(cmd), bucket)
			if result != nil {
				if werr := writeJSON(cmd, result); werr != nil {
					return werr
				}
			}
			if err != nil && merging.IsVariantsFailedError(err) {
				return fmt.Errorf("merge finished with failed variants: %w", err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project identifier")
	cmd.Flags().StringVar(&tool, "tool", "", "Tool identifier")
	cmd.Flags().StringVar(&date, "date", "", "Bucket date (YYYY-MM-DD)")
	return cmd
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the finished renditions of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("--project is required")
			}

			app, err := ctx.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.lister.List(project)
			if err != nil {
				return err
			}
			return writeJSON(cmd, list)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project identifier")
	return cmd
}

func newMergesCommand(ctx *commandContext) *cobra.Command {
	var project string
	var limit int

	cmd := &cobra.Command{
		Use:   "merges",
		Short: "Show the merge history of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(project) == "" {
				return fmt.Errorf("--project is required")
			}

			app, err := ctx.openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			runs, err := app.merger.History(commandContextOf(cmd), project, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd, runs)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project identifier")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func commandContextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
