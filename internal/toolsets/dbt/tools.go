package dbt

import (
	"context"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// Category is the registry category for this toolset.
const Category = "dbt"

// selectionParams are shared by every command that accepts node selection.
var selectionParams = []registry.Param{
	{Name: "select", Type: registry.TypeString,
		Description: "dbt node selection, e.g. \"tag:staging\" or \"+orders\"."},
	{Name: "exclude", Type: registry.TypeString, Description: "Nodes to exclude from the selection."},
}

// Capabilities returns the dbt toolset bound to a runner.
func Capabilities(r Runner) []registry.Capability {
	t := &toolset{runner: r}
	return []registry.Capability{
		{
			Category: Category, Name: "run",
			Description: "Run dbt models, optionally restricted by a selection.",
			Params: append(selectionParams, registry.Param{
				Name: "full_refresh", Type: registry.TypeBool,
				Description: "Rebuild incremental models from scratch."}),
			Run: t.command("run", withSelection, withFullRefresh),
		},
		{
			Category: Category, Name: "test",
			Description: "Run dbt tests, optionally restricted by a selection.",
			Params:      selectionParams,
			Run:         t.command("test", withSelection),
		},
		{
			Category: Category, Name: "build",
			Description: "dbt build: run models, tests, seeds, and snapshots in DAG order.",
			Params: append(selectionParams, registry.Param{
				Name: "full_refresh", Type: registry.TypeBool,
				Description: "Rebuild incremental models from scratch."}),
			Run: t.command("build", withSelection, withFullRefresh),
		},
		{
			Category: Category, Name: "compile",
			Description: "Compile dbt models to SQL without executing them.",
			Params:      selectionParams,
			Run:         t.command("compile", withSelection),
		},
		{
			Category: Category, Name: "seed",
			Description: "Load seed CSV files into the warehouse.",
			Params:      selectionParams,
			Run:         t.command("seed", withSelection),
		},
		{
			Category: Category, Name: "snapshot",
			Description: "Execute dbt snapshots.",
			Params:      selectionParams,
			Run:         t.command("snapshot", withSelection),
		},
		{
			Category: Category, Name: "ls",
			Description: "List the resources a selection matches, without running anything.",
			Params:      selectionParams,
			Run:         t.command("ls", withSelection),
		},
		{
			Category: Category, Name: "debug",
			Description: "Check the dbt project, profile, and warehouse connection.",
			Run:         t.command("debug"),
		},
		{
			Category: Category, Name: "deps",
			Description: "Install dbt package dependencies.",
			Run:         t.command("deps"),
		},
		{
			Category: Category, Name: "parse",
			Description: "Parse the project and report parsing errors without running.",
			Run:         t.command("parse"),
		},
		{
			Category: Category, Name: "docs_generate",
			Description: "Generate the dbt documentation site artifacts.",
			Run:         t.command("docs", staticArg("generate")),
		},
		{
			Category: Category, Name: "source_freshness",
			Description: "Check declared source freshness thresholds.",
			Params: []registry.Param{
				{Name: "select", Type: registry.TypeString, Description: "Sources to check, e.g. \"source:raw\"."},
			},
			Run: t.command("source", staticArg("freshness"), withSelection),
		},
	}
}

type toolset struct {
	runner Runner
}

// argBuilder appends command arguments derived from the call's inputs.
type argBuilder func(args map[string]any, cmd []string) []string

func withSelection(args map[string]any, cmd []string) []string {
	if sel := registry.OptionalString(args, "select", ""); sel != "" {
		cmd = append(cmd, "--select", sel)
	}
	if excl := registry.OptionalString(args, "exclude", ""); excl != "" {
		cmd = append(cmd, "--exclude", excl)
	}
	return cmd
}

func withFullRefresh(args map[string]any, cmd []string) []string {
	if registry.OptionalBool(args, "full_refresh", false) {
		cmd = append(cmd, "--full-refresh")
	}
	return cmd
}

func staticArg(arg string) argBuilder {
	return func(_ map[string]any, cmd []string) []string {
		return append(cmd, arg)
	}
}

// command builds a RunFunc that assembles the dbt argument list and executes
// it. A nonzero dbt exit is reported as a payload (the output is the answer),
// not as a Go error, so the agent can read the failure details.
func (t *toolset) command(name string, builders ...argBuilder) registry.RunFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		cmd := []string{name}
		for _, b := range builders {
			cmd = b(args, cmd)
		}
		result, err := t.runner.Run(ctx, cmd)
		payload := map[string]any{
			"command":   result.Command,
			"output":    result.Output,
			"exit_code": result.ExitCode,
			"success":   err == nil,
		}
		if err != nil && result.Output == "" {
			// Nothing captured means dbt never ran (missing binary, bad
			// project dir); that is a real error, not a failed build.
			return nil, err
		}
		return payload, nil
	}
}
