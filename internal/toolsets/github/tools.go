package github

import (
	"context"
	"fmt"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// Category is the registry category for this toolset.
const Category = "github"

// Capabilities returns the GitHub toolset bound to a client.
func Capabilities(c Client, settings Settings) []registry.Capability {
	t := &toolset{client: c, settings: settings}
	return []registry.Capability{
		{
			Category: Category, Name: "read_file",
			Description: "Read a file from the configured repository.",
			Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true,
					Description: "Repository-relative file path."},
				{Name: "ref", Type: registry.TypeString,
					Description: "Branch, tag, or commit to read from. Defaults to the base branch."},
			},
			Run: t.readFile,
		},
		{
			Category: Category, Name: "write_file",
			Description: "Create or update a file on a branch with a commit message.",
			Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true, Description: "Repository-relative file path."},
				{Name: "contents", Type: registry.TypeString, Required: true, Description: "Full file contents."},
				{Name: "message", Type: registry.TypeString, Required: true, Description: "Commit message."},
				{Name: "branch", Type: registry.TypeString,
					Description: "Branch to commit to. Defaults to the base branch."},
			},
			Run: t.writeFile,
		},
		{
			Category: Category, Name: "list_files",
			Description: "List files and directories under a repository path.",
			Params: []registry.Param{
				{Name: "dir", Type: registry.TypeString,
					Description: "Directory to list. Defaults to the repository root."},
				{Name: "ref", Type: registry.TypeString,
					Description: "Branch, tag, or commit. Defaults to the base branch."},
			},
			Run: t.listFiles,
		},
		{
			Category: Category, Name: "file_history",
			Description: "List the most recent commits that touched a file.",
			Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true, Description: "Repository-relative file path."},
				{Name: "limit", Type: registry.TypeInt, Description: "Maximum commits to return (default 10)."},
			},
			Run: t.fileHistory,
		},
		{
			Category: Category, Name: "create_branch",
			Description: "Create a branch from the base branch (or another named branch).",
			Params: []registry.Param{
				{Name: "name", Type: registry.TypeString, Required: true, Description: "New branch name."},
				{Name: "from", Type: registry.TypeString,
					Description: "Branch to fork from. Defaults to the base branch."},
			},
			Run: t.createBranch,
		},
		{
			Category: Category, Name: "delete_branch",
			Description: "Delete a branch. The base branch cannot be deleted.",
			Params: []registry.Param{
				{Name: "name", Type: registry.TypeString, Required: true, Description: "Branch name to delete."},
			},
			Run: t.deleteBranch,
		},
		{
			Category: Category, Name: "create_pull_request",
			Description: "Open a pull request from a head branch into the base branch.",
			Params: []registry.Param{
				{Name: "title", Type: registry.TypeString, Required: true, Description: "Pull request title."},
				{Name: "head", Type: registry.TypeString, Required: true, Description: "Branch holding the changes."},
				{Name: "body", Type: registry.TypeString, Description: "Pull request description."},
				{Name: "base", Type: registry.TypeString,
					Description: "Branch to merge into. Defaults to the base branch."},
			},
			Run: t.createPullRequest,
		},
		{
			Category: Category, Name: "merged_pull_requests",
			Description: "List recently merged pull requests.",
			Params: []registry.Param{
				{Name: "limit", Type: registry.TypeInt, Description: "Maximum pull requests to return (default 10)."},
			},
			Run: t.mergedPullRequests,
		},
		{
			Category: Category, Name: "cleanup_merged_branches",
			Description: "Delete the head branches of recently merged pull requests. " +
				"By default only reports what would be deleted.",
			Params: []registry.Param{
				{Name: "dry_run", Type: registry.TypeBool,
					Description: "If true (the default), report without deleting."},
				{Name: "limit", Type: registry.TypeInt,
					Description: "Maximum merged pull requests to scan (default 50)."},
			},
			Run: t.cleanupMergedBranches,
		},
	}
}

type toolset struct {
	client   Client
	settings Settings
}

func (t *toolset) baseBranch() string {
	if t.settings.BaseBranch != "" {
		return t.settings.BaseBranch
	}
	return "main"
}

func (t *toolset) readFile(ctx context.Context, args map[string]any) (any, error) {
	path, err := registry.StringArg(args, "path")
	if err != nil {
		return nil, err
	}
	ref := registry.OptionalString(args, "ref", t.baseBranch())
	contents, err := t.client.ReadFile(ctx, path, ref)
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "ref": ref, "contents": contents}, nil
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
	message, err := registry.StringArg(args, "message")
	if err != nil {
		return nil, err
	}
	branch := registry.OptionalString(args, "branch", t.baseBranch())
	if err := t.client.WriteFile(ctx, path, contents, message, branch); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "path": path, "branch": branch}, nil
}

func (t *toolset) listFiles(ctx context.Context, args map[string]any) (any, error) {
	dir := registry.OptionalString(args, "dir", "")
	ref := registry.OptionalString(args, "ref", t.baseBranch())
	entries, err := t.client.ListFiles(ctx, dir, ref)
	if err != nil {
		return nil, err
	}
	return map[string]any{"dir": dir, "ref": ref, "entries": entries}, nil
}

func (t *toolset) fileHistory(ctx context.Context, args map[string]any) (any, error) {
	path, err := registry.StringArg(args, "path")
	if err != nil {
		return nil, err
	}
	limit := registry.OptionalInt(args, "limit", 10)
	commits, err := t.client.FileHistory(ctx, path, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "commits": commits}, nil
}

func (t *toolset) createBranch(ctx context.Context, args map[string]any) (any, error) {
	name, err := registry.StringArg(args, "name")
	if err != nil {
		return nil, err
	}
	from := registry.OptionalString(args, "from", t.baseBranch())
	if err := t.client.CreateBranch(ctx, name, from); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "branch": name, "from": from}, nil
}

func (t *toolset) deleteBranch(ctx context.Context, args map[string]any) (any, error) {
	name, err := registry.StringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if name == t.baseBranch() {
		return nil, fmt.Errorf("refusing to delete base branch %q", name)
	}
	if err := t.client.DeleteBranch(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "deleted": name}, nil
}

func (t *toolset) createPullRequest(ctx context.Context, args map[string]any) (any, error) {
	title, err := registry.StringArg(args, "title")
	if err != nil {
		return nil, err
	}
	head, err := registry.StringArg(args, "head")
	if err != nil {
		return nil, err
	}
	body := registry.OptionalString(args, "body", "")
	base := registry.OptionalString(args, "base", t.baseBranch())
	pr, err := t.client.CreatePullRequest(ctx, title, body, head, base)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

func (t *toolset) mergedPullRequests(ctx context.Context, args map[string]any) (any, error) {
	limit := registry.OptionalInt(args, "limit", 10)
	prs, err := t.client.MergedPullRequests(ctx, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(prs), "pull_requests": prs}, nil
}

func (t *toolset) cleanupMergedBranches(ctx context.Context, args map[string]any) (any, error) {
	dryRun := registry.OptionalBool(args, "dry_run", true)
	limit := registry.OptionalInt(args, "limit", 50)

	prs, err := t.client.MergedPullRequests(ctx, limit)
	if err != nil {
		return nil, err
	}

	// Several merged pull requests can share a head branch.
	seen := make(map[string]bool)
	var branches []string
	for _, pr := range prs {
		name := pr.Branch
		if name == "" || name == t.baseBranch() || seen[name] {
			continue
		}
		seen[name] = true
		branches = append(branches, name)
	}

	if dryRun {
		return map[string]any{
			"status":   "success",
			"mode":     "dry_run",
			"count":    len(branches),
			"branches": branches,
		}, nil
	}

	var deleted []string
	failed := map[string]string{}
	for _, name := range branches {
		if err := t.client.DeleteBranch(ctx, name); err != nil {
			failed[name] = err.Error()
			continue
		}
		deleted = append(deleted, name)
	}
	return map[string]any{
		"status":  "success",
		"mode":    "delete",
		"deleted": deleted,
		"failed":  failed,
	}, nil
}
