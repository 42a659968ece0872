// Command hookctl loads, inspects, runs and watches directories of Lua hook
// files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/hookline/internal/app"
	"github.com/dshills/hookline/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
}

func rootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:   "hookctl",
		Short: "Run pre/main/post hook pipelines from Lua files",
		Long: `hookctl loads a directory of Lua hook files and runs them through the
pre → main → post pipeline.

Hook files are named <name>[-<phase>][-<priority>].lua and return a function,
an array of functions, or a table with pre/main/post keys.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "path to hookline.toml or hookline.yaml")
	root.PersistentFlags().StringVar(&gf.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&gf.logFile, "log-file", "", "also write JSON logs to this rotated file")

	root.AddCommand(listCmd(&gf))
	root.AddCommand(runCmd(&gf))
	root.AddCommand(watchCmd(&gf))
	return root
}

// setup resolves configuration, applies the hook directory and flag
// overrides, and builds the application.
func setup(cmd *cobra.Command, gf *globalFlags, dir string, override func(*config.Config)) (*app.Application, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, err
	}
	if dir != "" {
		cfg.Hooks.Dir = dir
	}
	if gf.logLevel != "" {
		cfg.Log.Level = gf.logLevel
	}
	if gf.logFile != "" {
		cfg.Log.File = gf.logFile
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := app.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}
