package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/datacue-labs/decopilot/internal/agent"
	"github.com/datacue-labs/decopilot/internal/tasks"
	"github.com/mark3labs/mcp-go/mcp"
)

// RunAgentTaskTool handles the run_agent_task MCP tool. It runs a prompt
// through the copilot synchronously and returns the final answer.
type RunAgentTaskTool struct {
	agent agent.Agent
}

// NewRunAgentTaskTool creates a RunAgentTaskTool backed by the given agent.
func NewRunAgentTaskTool(ag agent.Agent) *RunAgentTaskTool {
	return &RunAgentTaskTool{agent: ag}
}

// Definition returns the MCP tool definition for registration.
func (t *RunAgentTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("run_agent_task",
		mcp.WithDescription(
			"Run a data engineering task through the copilot and wait for the "+
				"answer. The copilot plans the task, calls the cloud tools it "+
				"needs, and reports the outcome. For long-running work prefer "+
				"run_agent_task_async.",
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Natural-language task, e.g. \"execute all actions tagged staging and pltv\"."),
		),
	)
}

// Handle processes the run_agent_task tool call.
func (t *RunAgentTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer, err := t.agent.Run(ctx, prompt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("agent task failed: %v", err)), nil
	}
	return mcp.NewToolResultText(answer), nil
}

// RunAgentTaskAsyncTool handles the run_agent_task_async MCP tool. It
// submits the prompt to the task tracker and returns a task id immediately.
type RunAgentTaskAsyncTool struct {
	agent   agent.Agent
	tracker *tasks.Tracker
}

// NewRunAgentTaskAsyncTool creates the async variant of the agent runner.
func NewRunAgentTaskAsyncTool(ag agent.Agent, tracker *tasks.Tracker) *RunAgentTaskAsyncTool {
	return &RunAgentTaskAsyncTool{agent: ag, tracker: tracker}
}

// Definition returns the MCP tool definition for registration.
func (t *RunAgentTaskAsyncTool) Definition() mcp.Tool {
	return mcp.NewTool("run_agent_task_async",
		mcp.WithDescription(
			"Start a data engineering task in the background and return a task "+
				"id immediately. Poll get_task_status with the id until the state "+
				"is completed, failed, or canceled.",
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Natural-language task to run in the background."),
		),
	)
}

// Handle processes the run_agent_task_async tool call.
func (t *RunAgentTaskAsyncTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// The task outlives this MCP request, so it runs under the tracker's
	// own context, not the request's.
	id := t.tracker.Submit(context.Background(), prompt, func(ctx context.Context) (string, error) {
		return t.agent.Run(ctx, prompt)
	})

	return taskResult(tasks.Task{ID: id, State: tasks.StatePending, Description: prompt})
}

// TaskStatusTool handles the get_task_status MCP tool.
type TaskStatusTool struct {
	tracker *tasks.Tracker
}

// NewTaskStatusTool creates a TaskStatusTool over the tracker.
func NewTaskStatusTool(tracker *tasks.Tracker) *TaskStatusTool {
	return &TaskStatusTool{tracker: tracker}
}

// Definition returns the MCP tool definition for registration.
func (t *TaskStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_task_status",
		mcp.WithDescription(
			"Get the state of a background task started with run_agent_task_async. "+
				"A failed task is reported with its error message; an unknown or "+
				"evicted id is an error.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id returned by run_agent_task_async."),
		),
	)
}

// Handle processes the get_task_status tool call.
func (t *TaskStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := t.tracker.Status(id)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("task %q not found", id)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching task status: %w", err)
	}
	return taskResult(task)
}

// CancelTaskTool handles the cancel_task MCP tool.
type CancelTaskTool struct {
	tracker *tasks.Tracker
}

// NewCancelTaskTool creates a CancelTaskTool over the tracker.
func NewCancelTaskTool(tracker *tasks.Tracker) *CancelTaskTool {
	return &CancelTaskTool{tracker: tracker}
}

// Definition returns the MCP tool definition for registration.
func (t *CancelTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("cancel_task",
		mcp.WithDescription(
			"Cancel a background task. Tasks that already finished are left "+
				"unchanged; canceling them is a no-op.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task id returned by run_agent_task_async."),
		),
	)
}

// Handle processes the cancel_task tool call.
func (t *CancelTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := t.tracker.Cancel(id)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("task %q not found", id)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("canceling task: %w", err)
	}
	return taskResult(task)
}

// taskResult renders a task snapshot as a JSON tool result.
func taskResult(task tasks.Task) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding task: %w", err)
	}
	return mcp.NewToolResultText(string(encoded)), nil
}
