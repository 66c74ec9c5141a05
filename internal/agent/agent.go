// Package agent runs the LLM-driven copilot loop: the model receives the
// capability catalog as callable tools, decides which to invoke, observes
// the results, and eventually answers in plain text.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/datacue-labs/decopilot/internal/config"
	"github.com/datacue-labs/decopilot/internal/registry"
)

// Agent runs one prompt to completion. One invocation is one trackable
// operation for the async task tracker.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Copilot is the production Agent: an OpenAI-compatible chat loop over the
// capability registry.
type Copilot struct {
	chat     *chatClient
	registry *registry.Registry
	tools    []toolDefinition
	maxSteps int
}

// New builds a Copilot from configuration and a populated registry.
func New(cfg config.AgentConfig, reg *registry.Registry) *Copilot {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 12
	}
	return &Copilot{
		chat:     newChatClient(cfg.BaseURL, cfg.APIKey, cfg.Model),
		registry: reg,
		tools:    toolDefinitions(reg),
		maxSteps: maxSteps,
	}
}

// Run executes the decide, call, observe loop until the model answers
// without requesting a tool, or the step budget runs out.
func (c *Copilot) Run(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt must not be empty")
	}

	messages := []chatMessage{
		{Role: "system", Content: systemInstructions},
		{Role: "user", Content: prompt},
	}

	for step := 0; step < c.maxSteps; step++ {
		reply, err := c.chat.complete(ctx, messages, c.tools)
		if err != nil {
			return "", err
		}
		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			messages = append(messages, c.executeToolCall(ctx, call))
		}
	}
	return "", fmt.Errorf("no final answer after %d steps", c.maxSteps)
}

// executeToolCall resolves and runs one requested capability. Failures are
// fed back to the model as tool results, never surfaced as loop errors; the
// model decides whether to retry, work around, or report them.
func (c *Copilot) executeToolCall(ctx context.Context, call toolCall) chatMessage {
	result := func(content string) chatMessage {
		return chatMessage{Role: "tool", ToolCallID: call.ID, Content: content}
	}

	category, name, ok := splitToolName(call.Function.Name)
	if !ok {
		return result(fmt.Sprintf("error: unknown tool %q", call.Function.Name))
	}
	capability, err := c.registry.Lookup(category, name)
	if err != nil {
		return result("error: " + err.Error())
	}

	var args map[string]any
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return result(fmt.Sprintf("error: arguments are not valid JSON: %v", err))
		}
	}

	log.Printf("agent: calling %s/%s", category, name)
	payload, err := capability.Run(ctx, args)
	if err != nil {
		return result("error: " + err.Error())
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return result(fmt.Sprintf("error: encoding result: %v", err))
	}
	return result(string(encoded))
}

// toolDefinitions renders the registry catalog as chat-completions function
// definitions. Tool names are "<category>_<name>"; categories contain no
// underscores, so the first underscore splits them back apart.
func toolDefinitions(reg *registry.Registry) []toolDefinition {
	caps := reg.All()
	defs := make([]toolDefinition, 0, len(caps))
	for _, c := range caps {
		var def toolDefinition
		def.Type = "function"
		def.Function.Name = c.Category + "_" + c.Name
		def.Function.Description = c.Description
		def.Function.Parameters = paramSchema(c.Params)
		defs = append(defs, def)
	}
	return defs
}

func paramSchema(params []registry.Param) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Type == registry.TypeStringSlice {
			prop["items"] = map[string]any{"type": "string"}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func splitToolName(full string) (category, name string, ok bool) {
	i := strings.Index(full, "_")
	if i <= 0 || i == len(full)-1 {
		return "", "", false
	}
	return full[:i], full[i+1:], true
}
