package dataform

import (
	"context"
	"fmt"
	"strings"

	"github.com/datacue-labs/decopilot/internal/pipeline"
	"github.com/datacue-labs/decopilot/internal/registry"
)

// Category is the registry category for this toolset.
const Category = "dataform"

// Capabilities returns the Dataform toolset bound to a client.
func Capabilities(c Client, settings Settings) []registry.Capability {
	t := &toolset{client: c, settings: settings}
	return []registry.Capability{
		{
			Category: Category, Name: "compile",
			Description: "Compile the Dataform repository and report compilation errors, if any.",
			Run:         t.compile,
		},
		{
			Category: Category, Name: "execute_workflow",
			Description: "Compile the repository and execute the full workflow (every action).",
			Run:         t.executeWorkflow,
		},
		{
			Category: Category, Name: "execute_by_tags",
			Description: "Execute only the pipeline actions carrying ALL of the given tags (AND logic). " +
				"With compile_only, report the selected actions without executing them.",
			Params: []registry.Param{
				{Name: "tags", Type: registry.TypeStringSlice, Required: true,
					Description: "Tags an action must all carry to be selected, e.g. [\"pltv\", \"staging\"]."},
				{Name: "compile_only", Type: registry.TypeBool,
					Description: "If true, only report the matching actions without executing."},
			},
			Run: t.executeByTags,
		},
		{
			Category: Category, Name: "workflow_status",
			Description: "Get the state of a workflow invocation by its resource name.",
			Params: []registry.Param{
				{Name: "invocation", Type: registry.TypeString, Required: true,
					Description: "Workflow invocation resource name."},
			},
			Run: t.workflowStatus,
		},
		{
			Category: Category, Name: "execution_logs",
			Description: "List the per-action outcomes of a workflow invocation, including failure reasons.",
			Params: []registry.Param{
				{Name: "invocation", Type: registry.TypeString, Required: true,
					Description: "Workflow invocation resource name."},
			},
			Run: t.executionLogs,
		},
		{
			Category: Category, Name: "read_file",
			Description: "Read a file from the Dataform workspace.",
			Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true,
					Description: "Workspace-relative file path, e.g. definitions/staging/orders.sqlx."},
			},
			Run: t.readFile,
		},
		{
			Category: Category, Name: "write_file",
			Description: "Write (create or overwrite) a file in the Dataform workspace.",
			Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true, Description: "Workspace-relative file path."},
				{Name: "contents", Type: registry.TypeString, Required: true, Description: "Full file contents."},
			},
			Run: t.writeFile,
		},
		{
			Category: Category, Name: "delete_file",
			Description: "Delete a file from the Dataform workspace.",
			Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true, Description: "Workspace-relative file path."},
			},
			Run: t.deleteFile,
		},
		{
			Category: Category, Name: "search_files",
			Description: "Search workspace files by name.",
			Params: []registry.Param{
				{Name: "query", Type: registry.TypeString, Required: true, Description: "Filename substring to search for."},
			},
			Run: t.searchFiles,
		},
		{
			Category: Category, Name: "repo_link",
			Description: "Get the Cloud Console link for the configured Dataform repository.",
			Run:         t.repoLink,
		},
	}
}

type toolset struct {
	client   Client
	settings Settings
}

func (t *toolset) compile(ctx context.Context, args map[string]any) (any, error) {
	result, err := t.client.Compile(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return map[string]any{
			"status":             "error",
			"compilation_errors": result.Errors,
		}, nil
	}
	return map[string]any{
		"status":             "success",
		"compilation_result": result.Name,
	}, nil
}

func (t *toolset) executeWorkflow(ctx context.Context, args map[string]any) (any, error) {
	result, err := t.compileClean(ctx)
	if err != nil {
		return nil, err
	}
	invocation, err := t.client.InvokeWorkflow(ctx, result.Name, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":              "success",
		"workflow_invocation": invocation,
	}, nil
}

// executeByTags compiles the repository, selects the actions whose tag set
// contains every requested tag, and either reports the selection
// (compile_only) or starts a workflow invocation restricted to it.
func (t *toolset) executeByTags(ctx context.Context, args map[string]any) (any, error) {
	tags, err := registry.StringSliceArg(args, "tags")
	if err != nil {
		return nil, err
	}
	compileOnly := registry.OptionalBool(args, "compile_only", false)

	result, err := t.compileClean(ctx)
	if err != nil {
		return nil, err
	}

	actions, err := t.client.CompilationActions(ctx, result.Name)
	if err != nil {
		return nil, err
	}

	selected := pipeline.FilterByTags(actions, tags)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no actions found with all tags %v; available tags: %s",
			tags, strings.Join(pipeline.AvailableTags(actions), ", "))
	}

	ids := make([]string, len(selected))
	targets := make([]pipeline.Target, len(selected))
	for i, a := range selected {
		ids[i] = a.ID
		targets[i] = a.Target
	}

	if compileOnly {
		return map[string]any{
			"status":        "success",
			"mode":          "compile_only",
			"tags":          tags,
			"actions":       ids,
			"actions_count": len(ids),
		}, nil
	}

	invocation, err := t.client.InvokeWorkflow(ctx, result.Name, targets)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":              "success",
		"workflow_invocation": invocation,
		"tags":                tags,
		"actions_count":       len(ids),
	}, nil
}

func (t *toolset) workflowStatus(ctx context.Context, args map[string]any) (any, error) {
	invocation, err := registry.StringArg(args, "invocation")
	if err != nil {
		return nil, err
	}
	status, err := t.client.InvocationStatus(ctx, invocation)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (t *toolset) executionLogs(ctx context.Context, args map[string]any) (any, error) {
	invocation, err := registry.StringArg(args, "invocation")
	if err != nil {
		return nil, err
	}
	logs, err := t.client.InvocationLogs(ctx, invocation)
	if err != nil {
		return nil, err
	}
	return map[string]any{"invocation": invocation, "actions": logs}, nil
}

func (t *toolset) readFile(ctx context.Context, args map[string]any) (any, error) {
	path, err := registry.StringArg(args, "path")
	if err != nil {
		return nil, err
	}
	contents, err := t.client.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "contents": contents}, nil
}

func (t *toolset) writeFile(ctx context.Context, args map[string]any) (any, error) {
	path, err := registry.StringArg(args, "path")
	if err != nil {
		return nil, err
	}
	contents, err := registry.StringArg(args, "contents")
	if err != nil {
		return nil, err
	}
	if err := t.client.WriteFile(ctx, path, contents); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "path": path}, nil
}

func (t *toolset) deleteFile(ctx context.Context, args map[string]any) (any, error) {
	path, err := registry.StringArg(args, "path")
	if err != nil {
		return nil, err
	}
	if err := t.client.DeleteFile(ctx, path); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "path": path}, nil
}

func (t *toolset) searchFiles(ctx context.Context, args map[string]any) (any, error) {
	query, err := registry.StringArg(args, "query")
	if err != nil {
		return nil, err
	}
	paths, err := t.client.SearchFiles(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"query": query, "files": paths}, nil
}

func (t *toolset) repoLink(ctx context.Context, args map[string]any) (any, error) {
	link := fmt.Sprintf(
		"https://console.cloud.google.com/bigquery/dataform/locations/%s/repositories/%s?project=%s",
		t.settings.Location, t.settings.Repository, t.settings.ProjectID)
	return map[string]any{"link": link}, nil
}

// compileClean compiles and turns compilation errors into a Go error, for
// the callers that cannot proceed past a broken compilation.
func (t *toolset) compileClean(ctx context.Context) (CompilationResult, error) {
	result, err := t.client.Compile(ctx)
	if err != nil {
		return CompilationResult{}, err
	}
	if len(result.Errors) > 0 {
		return CompilationResult{}, fmt.Errorf("compilation errors: %s", strings.Join(result.Errors, "; "))
	}
	return result, nil
}
