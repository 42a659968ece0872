package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/hookline/internal/config"
	"github.com/dshills/hookline/internal/hook"
)

// ─── list ─────────────────────────────────────────────────────────────────────

func listCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <dir>",
		Short: "Load a hook directory and print its handlers by phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, gf, args[0], nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.LoadHooks(cmd.Context()); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PHASE\tHOOK\tPRIORITY\tSOURCE")
			for _, name := range a.Registry().Names() {
				for _, p := range hook.Phases {
					for _, rec := range a.Registry().Lookup(name, p) {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p, rec.Name, rec.Priority, rec.Source)
					}
				}
			}
			return tw.Flush()
		},
	}
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd(gf *globalFlags) *cobra.Command {
	var (
		phase      string
		timeout    time.Duration
		contextArg string
	)

	cmd := &cobra.Command{
		Use:   "run <dir> <hook> [args...]",
		Short: "Load a hook directory and execute one hook",
		Long: `Run executes <hook> and prints its result as JSON.

Each argument is decoded as JSON when it parses (42, true, {"a":1}) and is
passed as a plain string otherwise.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, gf, args[0], func(cfg *config.Config) {
				if cmd.Flags().Changed("timeout") {
					cfg.Hooks.RunTimeout = config.Duration(timeout)
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.LoadHooks(cmd.Context()); err != nil {
				return err
			}

			var recv any
			if contextArg != "" {
				if err := json.Unmarshal([]byte(contextArg), &recv); err != nil {
					return fmt.Errorf("--context: %w", err)
				}
			}

			hookArgs := make([]any, 0, len(args)-2)
			for _, s := range args[2:] {
				hookArgs = append(hookArgs, parseArg(s))
			}

			result, err := a.Run(cmd.Context(), args[1], hookArgs, recv, phase)
			if err != nil {
				return fmt.Errorf("hook %s: %w", args[1], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "run a single phase: pre, main or post")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting for the result after this long")
	cmd.Flags().StringVar(&contextArg, "context", "", "JSON value passed to every handler as ctx")
	return cmd
}

// parseArg decodes s as JSON, falling back to the raw string.
func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// ─── watch ────────────────────────────────────────────────────────────────────

func watchCmd(gf *globalFlags) *cobra.Command {
	var adminAddr string

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Load a hook directory and reload files as they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, gf, args[0], func(cfg *config.Config) {
				cfg.Hooks.Watch = true
				if cmd.Flags().Changed("admin-addr") {
					cfg.Admin.Addr = adminAddr
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			group, err := a.LoadHooks(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (%d files loaded)\n", args[0], group.Count())
			return a.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "serve /metrics, /hooks and /healthz on this address")
	return cmd
}
