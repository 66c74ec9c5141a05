// Package api exposes the copilot over HTTP: direct tool execution, agent
// prompts (sync and async), and async task polling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/datacue-labs/decopilot/internal/agent"
	"github.com/datacue-labs/decopilot/internal/registry"
	"github.com/datacue-labs/decopilot/internal/tasks"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Server routes HTTP requests to the registry, the agent, and the tracker.
type Server struct {
	registry *registry.Registry
	agent    agent.Agent
	tracker  *tasks.Tracker
	mux      *http.ServeMux
}

// New builds the HTTP handler. The tracker is owned by the caller; Close it
// after the HTTP server shuts down.
func New(reg *registry.Registry, ag agent.Agent, tracker *tasks.Tracker) *Server {
	s := &Server{registry: reg, agent: ag, tracker: tracker, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /agent/run", s.handleAgentRun)
	s.mux.HandleFunc("GET /agent/status/{id}", s.handleAgentStatus)
	s.mux.HandleFunc("POST /agent/cancel/{id}", s.handleAgentCancel)
	s.mux.HandleFunc("GET /tools/list", s.handleToolsList)
	s.mux.HandleFunc("GET /tools/list/{category}", s.handleToolsListCategory)
	s.mux.HandleFunc("GET /tools/{category}/{name}/info", s.handleToolInfo)
	s.mux.HandleFunc("POST /tools/{category}/{name}", s.handleToolExecute)

	return s
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	log.Printf("api: %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "decopilot",
		"version": Version,
		"endpoints": []string{
			"GET  /health",
			"POST /agent/run",
			"GET  /agent/status/{id}",
			"POST /agent/cancel/{id}",
			"GET  /tools/list",
			"GET  /tools/list/{category}",
			"GET  /tools/{category}/{name}/info",
			"POST /tools/{category}/{name}",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Async  bool   `json:"async"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	if req.Async {
		id := s.tracker.Submit(context.Background(), req.Prompt, func(ctx context.Context) (string, error) {
			return s.agent.Run(ctx, req.Prompt)
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "state": string(tasks.StatePending)})
		return
	}

	result, err := s.agent.Run(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.tracker.Status(r.PathValue("id"))
	if errors.Is(err, tasks.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A failed task is a successful status lookup; the failure lives in the
	// payload, not the HTTP status.
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleAgentCancel(w http.ResponseWriter, r *http.Request) {
	task, err := s.tracker.Cancel(r.PathValue("id"))
	if errors.Is(err, tasks.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request) {
	byCategory := make(map[string][]string)
	for _, category := range s.registry.Categories() {
		byCategory[category] = s.registry.Names(category)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": s.registry.Categories(),
		"tools":      byCategory,
	})
}

func (s *Server) handleToolsListCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if !s.registry.HasCategory(category) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown category %q", category))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"tools":    s.registry.Names(category),
	})
}

func (s *Server) handleToolInfo(w http.ResponseWriter, r *http.Request) {
	capability, err := s.registry.Lookup(r.PathValue("category"), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, capability)
}

func (s *Server) handleToolExecute(w http.ResponseWriter, r *http.Request) {
	category, name := r.PathValue("category"), r.PathValue("name")
	capability, err := s.registry.Lookup(category, name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req struct {
		Args map[string]any `json:"args"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	envelope := map[string]any{
		"tool_name": name,
		"category":  category,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	result, err := capability.Run(r.Context(), req.Args)
	if err != nil {
		// Tool-level failures (bad arguments, upstream API errors) are part
		// of the execution envelope, not transport errors.
		envelope["success"] = false
		envelope["error"] = err.Error()
		writeJSON(w, http.StatusOK, envelope)
		return
	}
	envelope["success"] = true
	envelope["result"] = result
	writeJSON(w, http.StatusOK, envelope)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
