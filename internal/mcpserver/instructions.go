package mcpserver

import (
	"fmt"
	"strings"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// serverInstructions describes the server to connecting MCP clients. The
// toolset list is generated from the registry so it never drifts from what
// is actually registered.
func serverInstructions(reg *registry.Registry) string {
	var b strings.Builder
	b.WriteString(`decopilot is a data engineering copilot for BigQuery, Dataform, dbt, object storage, and Databricks.

Two ways to work:

1. Agent tasks: run_agent_task sends a natural-language prompt to the
   copilot, which plans and executes tool calls itself. For long work, use
   run_agent_task_async and poll get_task_status with the returned task id;
   cancel_task stops a running task.

2. Direct tools: every capability is also exposed as its own tool, named
   <category>_<name>, for clients that want to drive the APIs directly.

`)
	b.WriteString("Available toolsets:\n")
	for _, category := range reg.Categories() {
		fmt.Fprintf(&b, "- %s: %s\n", category, strings.Join(reg.Names(category), ", "))
	}
	return b.String()
}
