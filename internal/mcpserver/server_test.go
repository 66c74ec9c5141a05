package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/datacue-labs/decopilot/internal/config"
	"github.com/datacue-labs/decopilot/internal/registry"
	"github.com/datacue-labs/decopilot/internal/tasks"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Test helpers ---

// fakeAgent answers instantly; block makes it wait for release.
type fakeAgent struct {
	answer string
	block  chan struct{}
}

func (f *fakeAgent) Run(ctx context.Context, prompt string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, nil
}

func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func callWith(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func newTracker(t *testing.T) *tasks.Tracker {
	t.Helper()
	tracker := tasks.NewTracker(tasks.Config{}, nil)
	t.Cleanup(tracker.Close)
	return tracker
}

func waitForTerminal(t *testing.T, tracker *tasks.Tracker, id string) tasks.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := tracker.Status(id)
		if err != nil {
			t.Fatalf("Status(%s): %v", id, err)
		}
		if task.State.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return tasks.Task{}
}

// --- run_agent_task ---

func TestRunAgentTaskTool_ReturnsAgentAnswer(t *testing.T) {
	tool := NewRunAgentTaskTool(&fakeAgent{answer: "2 actions executed"})

	result, err := tool.Handle(context.Background(), callWith(map[string]interface{}{
		"prompt": "execute all staging actions",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("unexpected error result: %s", getResultText(result))
	}
	if getResultText(result) != "2 actions executed" {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestRunAgentTaskTool_MissingPromptIsToolError(t *testing.T) {
	tool := NewRunAgentTaskTool(&fakeAgent{})

	result, err := tool.Handle(context.Background(), callWith(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !isErrorResult(result) {
		t.Error("missing prompt did not produce an error result")
	}
}

// --- run_agent_task_async + get_task_status + cancel_task ---

func TestAsyncTaskRoundTrip(t *testing.T) {
	tracker := newTracker(t)
	runTool := NewRunAgentTaskAsyncTool(&fakeAgent{answer: "done"}, tracker)
	statusTool := NewTaskStatusTool(tracker)

	result, err := runTool.Handle(context.Background(), callWith(map[string]interface{}{
		"prompt": "check pipeline health",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var submitted tasks.Task
	if err := json.Unmarshal([]byte(getResultText(result)), &submitted); err != nil {
		t.Fatalf("decoding submit result %q: %v", getResultText(result), err)
	}
	if submitted.ID == "" {
		t.Fatal("no task id returned")
	}

	waitForTerminal(t, tracker, submitted.ID)
	statusResult, err := statusTool.Handle(context.Background(), callWith(map[string]interface{}{
		"task_id": submitted.ID,
	}))
	if err != nil {
		t.Fatalf("status Handle: %v", err)
	}

	var got tasks.Task
	if err := json.Unmarshal([]byte(getResultText(statusResult)), &got); err != nil {
		t.Fatalf("decoding status result: %v", err)
	}
	if got.State != tasks.StateCompleted || got.Result != "done" {
		t.Errorf("task = %+v", got)
	}
}

func TestTaskStatusTool_UnknownIDIsToolError(t *testing.T) {
	tool := NewTaskStatusTool(newTracker(t))

	result, err := tool.Handle(context.Background(), callWith(map[string]interface{}{
		"task_id": "no-such-id",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "not found") {
		t.Errorf("result = %q", getResultText(result))
	}
}

func TestCancelTaskTool_CancelsRunningTask(t *testing.T) {
	tracker := newTracker(t)
	block := make(chan struct{})
	defer close(block)

	runTool := NewRunAgentTaskAsyncTool(&fakeAgent{answer: "never", block: block}, tracker)
	cancelTool := NewCancelTaskTool(tracker)

	result, _ := runTool.Handle(context.Background(), callWith(map[string]interface{}{
		"prompt": "long job",
	}))
	var submitted tasks.Task
	if err := json.Unmarshal([]byte(getResultText(result)), &submitted); err != nil {
		t.Fatalf("decoding submit result: %v", err)
	}

	cancelResult, err := cancelTool.Handle(context.Background(), callWith(map[string]interface{}{
		"task_id": submitted.ID,
	}))
	if err != nil {
		t.Fatalf("cancel Handle: %v", err)
	}
	if isErrorResult(cancelResult) {
		t.Fatalf("cancel error: %s", getResultText(cancelResult))
	}

	task := waitForTerminal(t, tracker, submitted.ID)
	if task.State != tasks.StateCanceled {
		t.Errorf("state = %s, want canceled", task.State)
	}
}

// --- capability bridge ---

func TestBridgedTool_NameAndExecution(t *testing.T) {
	capability := registry.Capability{
		Category: "dataform", Name: "execute_by_tags",
		Description: "Execute by tags.",
		Params: []registry.Param{
			{Name: "tags", Type: registry.TypeStringSlice, Required: true},
			{Name: "compile_only", Type: registry.TypeBool},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"status": "success", "args": args}, nil
		},
	}
	tool := NewBridgedTool(capability)

	if def := tool.Definition(); def.Name != "dataform_execute_by_tags" {
		t.Errorf("tool name = %q", def.Name)
	}

	result, err := tool.Handle(context.Background(), callWith(map[string]interface{}{
		"tags": []interface{}{"staging"},
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if isErrorResult(result) {
		t.Fatalf("unexpected error result: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), `"status": "success"`) {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestBridgedTool_CapabilityErrorIsToolError(t *testing.T) {
	capability := registry.Capability{
		Category: "dataform", Name: "compile",
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, context.DeadlineExceeded
		},
	}
	tool := NewBridgedTool(capability)

	result, err := tool.Handle(context.Background(), callWith(nil))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !isErrorResult(result) {
		t.Error("capability error did not produce an error result")
	}
}

// --- registry wiring ---

func TestBuildRegistry_SkipsUnconfiguredToolsets(t *testing.T) {
	cfg := config.Default()
	// Only dbt is configured out of the box; everything else needs
	// credentials.
	reg, err := BuildRegistry(cfg)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if !reg.HasCategory("dbt") {
		t.Error("dbt toolset missing")
	}
	for _, category := range []string{"dataform", "github", "bigquery", "databricks", "gcs"} {
		if reg.HasCategory(category) {
			t.Errorf("unconfigured toolset %q registered", category)
		}
	}
}

func TestBuildRegistry_RegistersConfiguredToolsets(t *testing.T) {
	cfg := config.Default()
	cfg.Dataform.ProjectID = "my-proj"
	cfg.Dataform.Repository = "pipelines"
	cfg.GitHub.Token = "tok"
	cfg.GitHub.Owner = "datacue-labs"
	cfg.GitHub.Repository = "pipelines"
	cfg.BigQuery.ProjectID = "my-proj"
	cfg.Databricks.Host = "https://adb.example.net"
	cfg.Databricks.Token = "tok"

	reg, err := BuildRegistry(cfg)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	for _, category := range []string{"dataform", "github", "dbt", "bigquery", "databricks"} {
		if !reg.HasCategory(category) {
			t.Errorf("toolset %q not registered", category)
		}
	}
	if _, err := reg.Lookup("dataform", "execute_by_tags"); err != nil {
		t.Errorf("execute_by_tags not bridged: %v", err)
	}
}
