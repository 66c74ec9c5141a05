// Package dataform wraps the Dataform API as copilot capabilities:
// workspace file operations, compilation, and workflow execution,
// including execution of the subset of actions selected by a tag query.
package dataform

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/datacue-labs/decopilot/internal/pipeline"
	"github.com/datacue-labs/decopilot/internal/toolsets/rest"
)

// Settings identifies the repository and workspace every call targets.
type Settings struct {
	ProjectID  string
	Location   string
	Repository string
	Workspace  string
}

func (s Settings) repositoryPath() string {
	return fmt.Sprintf("projects/%s/locations/%s/repositories/%s",
		s.ProjectID, s.Location, s.Repository)
}

func (s Settings) workspacePath() string {
	return s.repositoryPath() + "/workspaces/" + s.Workspace
}

// CompilationResult is the outcome of compiling the repository.
type CompilationResult struct {
	Name   string
	Errors []string
}

// InvocationStatus reports one workflow invocation's state.
type InvocationStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// ActionLog is the per-action outcome of a workflow invocation.
type ActionLog struct {
	ActionID      string `json:"action_id"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Client is the narrow Dataform surface the toolset needs. The production
// implementation speaks the public REST API; tests substitute a fake.
type Client interface {
	Compile(ctx context.Context) (CompilationResult, error)
	CompilationActions(ctx context.Context, compilationName string) ([]pipeline.Action, error)
	InvokeWorkflow(ctx context.Context, compilationName string, included []pipeline.Target) (string, error)
	InvocationStatus(ctx context.Context, invocationName string) (InvocationStatus, error)
	InvocationLogs(ctx context.Context, invocationName string) ([]ActionLog, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, contents string) error
	DeleteFile(ctx context.Context, path string) error
	SearchFiles(ctx context.Context, query string) ([]string, error)
}

// restClient implements Client over the Dataform v1beta1 REST API.
type restClient struct {
	api      *rest.Client
	settings Settings
}

// NewClient creates a REST-backed client. token is an OAuth2 bearer token
// (typically minted from application default credentials by the deployer).
func NewClient(settings Settings, token string) Client {
	return &restClient{
		api:      rest.New("https://dataform.googleapis.com/v1beta1", token),
		settings: settings,
	}
}

func (c *restClient) Compile(ctx context.Context) (CompilationResult, error) {
	var resp struct {
		Name              string `json:"name"`
		CompilationErrors []struct {
			Message string `json:"message"`
			Path    string `json:"path"`
		} `json:"compilationErrors"`
	}
	body := map[string]any{"workspace": c.settings.workspacePath()}
	path := "/" + c.settings.repositoryPath() + "/compilationResults"
	if err := c.api.PostJSON(ctx, path, body, &resp); err != nil {
		return CompilationResult{}, fmt.Errorf("creating compilation result: %w", err)
	}

	result := CompilationResult{Name: resp.Name}
	for _, e := range resp.CompilationErrors {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return result, nil
}

func (c *restClient) CompilationActions(ctx context.Context, compilationName string) ([]pipeline.Action, error) {
	var resp struct {
		CompilationResultActions []struct {
			Target struct {
				Database string `json:"database"`
				Schema   string `json:"schema"`
				Name     string `json:"name"`
			} `json:"target"`
			Relation *struct {
				RelationType string   `json:"relationType"`
				Tags         []string `json:"tags"`
			} `json:"relation"`
			Assertion *struct {
				Tags []string `json:"tags"`
			} `json:"assertion"`
			Operations *struct {
				Tags []string `json:"tags"`
			} `json:"operations"`
			Declaration *struct{} `json:"declaration"`
		} `json:"compilationResultActions"`
	}
	if err := c.api.GetJSON(ctx, "/"+compilationName+":query", &resp); err != nil {
		return nil, fmt.Errorf("querying compilation actions: %w", err)
	}

	actions := make([]pipeline.Action, 0, len(resp.CompilationResultActions))
	for _, raw := range resp.CompilationResultActions {
		action := pipeline.Action{
			ID: fmt.Sprintf("%s.%s.%s", raw.Target.Database, raw.Target.Schema, raw.Target.Name),
			Target: pipeline.Target{
				Database: raw.Target.Database,
				Schema:   raw.Target.Schema,
				Name:     raw.Target.Name,
			},
		}
		switch {
		case raw.Relation != nil:
			action.Tags = raw.Relation.Tags
			switch raw.Relation.RelationType {
			case "VIEW":
				action.Type = pipeline.TypeView
			case "INCREMENTAL_TABLE":
				action.Type = pipeline.TypeIncremental
			default:
				action.Type = pipeline.TypeTable
			}
		case raw.Assertion != nil:
			action.Type = pipeline.TypeAssertion
			action.Tags = raw.Assertion.Tags
		case raw.Operations != nil:
			action.Type = pipeline.TypeOperation
			action.Tags = raw.Operations.Tags
		case raw.Declaration != nil:
			action.Type = pipeline.TypeDeclaration
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (c *restClient) InvokeWorkflow(ctx context.Context, compilationName string, included []pipeline.Target) (string, error) {
	body := map[string]any{"compilationResult": compilationName}
	if len(included) > 0 {
		targets := make([]map[string]string, 0, len(included))
		for _, target := range included {
			targets = append(targets, map[string]string{
				"database": target.Database, "schema": target.Schema, "name": target.Name,
			})
		}
		body["invocationConfig"] = map[string]any{"includedTargets": targets}
	}

	var resp struct {
		Name string `json:"name"`
	}
	path := "/" + c.settings.repositoryPath() + "/workflowInvocations"
	if err := c.api.PostJSON(ctx, path, body, &resp); err != nil {
		return "", fmt.Errorf("creating workflow invocation: %w", err)
	}
	return resp.Name, nil
}

func (c *restClient) InvocationStatus(ctx context.Context, invocationName string) (InvocationStatus, error) {
	var status InvocationStatus
	if err := c.api.GetJSON(ctx, "/"+invocationName, &status); err != nil {
		return InvocationStatus{}, fmt.Errorf("fetching workflow invocation: %w", err)
	}
	return status, nil
}

func (c *restClient) InvocationLogs(ctx context.Context, invocationName string) ([]ActionLog, error) {
	var resp struct {
		WorkflowInvocationActions []struct {
			Target struct {
				Database string `json:"database"`
				Schema   string `json:"schema"`
				Name     string `json:"name"`
			} `json:"target"`
			State         string `json:"state"`
			FailureReason string `json:"failureReason"`
		} `json:"workflowInvocationActions"`
	}
	if err := c.api.GetJSON(ctx, "/"+invocationName+":query", &resp); err != nil {
		return nil, fmt.Errorf("querying invocation actions: %w", err)
	}

	logs := make([]ActionLog, 0, len(resp.WorkflowInvocationActions))
	for _, a := range resp.WorkflowInvocationActions {
		logs = append(logs, ActionLog{
			ActionID:      fmt.Sprintf("%s.%s.%s", a.Target.Database, a.Target.Schema, a.Target.Name),
			State:         a.State,
			FailureReason: a.FailureReason,
		})
	}
	return logs, nil
}

func (c *restClient) ReadFile(ctx context.Context, path string) (string, error) {
	var resp struct {
		FileContents string `json:"fileContents"`
	}
	call := fmt.Sprintf("/%s:readFile?path=%s", c.settings.workspacePath(), url.QueryEscape(path))
	if err := c.api.GetJSON(ctx, call, &resp); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.FileContents)
	if err != nil {
		return "", fmt.Errorf("decoding %s contents: %w", path, err)
	}
	return string(decoded), nil
}

func (c *restClient) WriteFile(ctx context.Context, path, contents string) error {
	body := map[string]string{
		"path":     path,
		"contents": base64.StdEncoding.EncodeToString([]byte(contents)),
	}
	if err := c.api.PostJSON(ctx, "/"+c.settings.workspacePath()+":writeFile", body, nil); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (c *restClient) DeleteFile(ctx context.Context, path string) error {
	body := map[string]string{"path": path}
	if err := c.api.PostJSON(ctx, "/"+c.settings.workspacePath()+":removeFile", body, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

func (c *restClient) SearchFiles(ctx context.Context, query string) ([]string, error) {
	var resp struct {
		SearchResults []struct {
			File *struct {
				Path string `json:"path"`
			} `json:"file"`
		} `json:"searchResults"`
	}
	call := fmt.Sprintf("/%s:searchFiles?filter=%s", c.settings.workspacePath(), url.QueryEscape(query))
	if err := c.api.GetJSON(ctx, call, &resp); err != nil {
		return nil, fmt.Errorf("searching files: %w", err)
	}
	var paths []string
	for _, r := range resp.SearchResults {
		if r.File != nil {
			paths = append(paths, r.File.Path)
		}
	}
	return paths, nil
}
