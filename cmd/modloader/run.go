package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

var (
	runScripts []string
	runSync    bool
	runTimeout time.Duration
	runReport  bool

	runCmd = &cobra.Command{
		Use:   "run [module...]",
		Short: "Load modules and print their exports",
		Long: `Evaluate the given scripts, then load each module and print its export
as JSON. Modules are loaded asynchronously unless --sync is set.`,
		RunE: runModules,
	}
)

func init() {
	runCmd.Flags().StringArrayVarP(&runScripts, "script", "s", nil, "script file to evaluate first (repeatable)")
	runCmd.Flags().BoolVar(&runSync, "sync", false, "load modules synchronously")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "time limit for asynchronous loads")
	runCmd.Flags().BoolVar(&runReport, "report", false, "print the module registry when done")
}

func runModules(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(runScripts) == 0 {
		return fmt.Errorf("nothing to run: pass a module or --script")
	}
	cfg := loadConfig(cmd)
	logger := stderrLogger(cfg)

	rt, err := newRuntime(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, path := range runScripts {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		if err := rt.RunScript(path, string(src)); err != nil {
			return fmt.Errorf("script %s: %w", path, err)
		}
	}

	exports := make(map[string]any, len(args))
	if runSync {
		for _, id := range args {
			v, err := rt.RequireSync(id)
			if err != nil {
				return err
			}
			exports[id] = printable(v)
		}
	} else if len(args) > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
		defer cancel()
		values, err := rt.Require(ctx, args...)
		if err != nil {
			return err
		}
		for i, id := range args {
			exports[id] = printable(values[i])
		}
	}

	out := cmd.OutOrStdout()
	if len(exports) > 0 {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(exports); err != nil {
			return fmt.Errorf("encode exports: %w", err)
		}
	}
	if runReport {
		return loader.WriteReport(out, rt.Dump(model.StatePreloaded))
	}
	return nil
}

// printable replaces exports JSON cannot encode, such as functions, with a
// description of their type.
func printable(v any) any {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	return v
}
