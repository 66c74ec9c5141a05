// Package mcpserver wires all copilot components and creates the MCP
// server instance.
//
// This is the composition root: it builds the concrete toolset clients from
// configuration, populates the capability registry, and injects everything
// into the MCP tools. No business logic lives here, only wiring.
package mcpserver

import (
	"fmt"
	"log"
	"os"

	"github.com/datacue-labs/decopilot/internal/agent"
	"github.com/datacue-labs/decopilot/internal/config"
	"github.com/datacue-labs/decopilot/internal/registry"
	"github.com/datacue-labs/decopilot/internal/tasks"
	"github.com/datacue-labs/decopilot/internal/toolsets/bigquery"
	"github.com/datacue-labs/decopilot/internal/toolsets/databricks"
	"github.com/datacue-labs/decopilot/internal/toolsets/dataform"
	"github.com/datacue-labs/decopilot/internal/toolsets/dbt"
	"github.com/datacue-labs/decopilot/internal/toolsets/gcs"
	"github.com/datacue-labs/decopilot/internal/toolsets/github"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with every available toolset
// registered, plus the agent task tools.
//
// The returned cleanup function closes the task tracker and the journal
// database and must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even if journal init failed.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	reg, err := BuildRegistry(cfg)
	if err != nil {
		return nil, noop, err
	}

	// --- Task tracking ---
	//
	// The journal is an independent subsystem: if it fails to initialize,
	// we log a warning and continue with in-memory tracking only.

	var journal *tasks.Journal
	journalDir := cfg.Tasks.JournalDir
	if journalDir == "" {
		journalDir = tasks.DefaultJournalDir()
	}
	journal, err = tasks.NewJournal(journalDir)
	if err != nil {
		log.Printf("WARNING: task journal disabled: %v", err)
		journal = nil
	}

	tracker := tasks.NewTracker(tasks.Config{
		OperationTimeout: cfg.Tasks.OperationTimeout,
		Retention:        cfg.Tasks.Retention,
	}, journal)

	cleanup := func() {
		tracker.Close()
		if journal != nil {
			if err := journal.Close(); err != nil {
				log.Printf("WARNING: task journal close: %v", err)
			}
		}
	}

	copilot := agent.New(cfg.Agent, reg)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"decopilot",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions(reg)),
	)

	// --- Register agent task tools ---

	runTool := NewRunAgentTaskTool(copilot)
	s.AddTool(runTool.Definition(), runTool.Handle)

	runAsyncTool := NewRunAgentTaskAsyncTool(copilot, tracker)
	s.AddTool(runAsyncTool.Definition(), runAsyncTool.Handle)

	statusTool := NewTaskStatusTool(tracker)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	cancelTool := NewCancelTaskTool(tracker)
	s.AddTool(cancelTool.Definition(), cancelTool.Handle)

	// --- Bridge every registry capability to an MCP tool ---

	for _, capability := range reg.All() {
		bridged := NewBridgedTool(capability)
		s.AddTool(bridged.Definition(), bridged.Handle)
	}

	return s, cleanup, nil
}

// BuildRegistry populates the capability registry from configuration.
// Toolsets whose configuration is incomplete are skipped with a warning, so
// a partial deployment still serves the toolsets it can.
func BuildRegistry(cfg config.Config) (*registry.Registry, error) {
	reg := registry.New()

	// Google-backed toolsets authenticate with an OAuth2 access token,
	// typically minted with `gcloud auth print-access-token`.
	googleToken := os.Getenv("GOOGLE_OAUTH_ACCESS_TOKEN")

	if cfg.Dataform.ProjectID != "" && cfg.Dataform.Repository != "" {
		settings := dataform.Settings{
			ProjectID:  cfg.Dataform.ProjectID,
			Location:   cfg.Dataform.Location,
			Repository: cfg.Dataform.Repository,
			Workspace:  cfg.Dataform.Workspace,
		}
		client := dataform.NewClient(settings, googleToken)
		reg.MustRegister(dataform.Capabilities(client, settings))
	} else {
		log.Printf("WARNING: dataform toolset disabled: project_id and repository are not configured")
	}

	if cfg.GitHub.Token != "" && cfg.GitHub.Owner != "" && cfg.GitHub.Repository != "" {
		settings := github.Settings{
			Owner:      cfg.GitHub.Owner,
			Repository: cfg.GitHub.Repository,
			BaseBranch: cfg.GitHub.BaseBranch,
		}
		client := github.NewClient(settings, cfg.GitHub.Token)
		reg.MustRegister(github.Capabilities(client, settings))
	} else {
		log.Printf("WARNING: github toolset disabled: token, owner, and repository are not configured")
	}

	// dbt needs no credentials; it shells out to the local executable.
	runner := dbt.NewRunner(dbt.Settings{
		ProjectDir:  cfg.Dbt.ProjectDir,
		ProfilesDir: cfg.Dbt.ProfilesDir,
		Target:      cfg.Dbt.Target,
	})
	reg.MustRegister(dbt.Capabilities(runner))

	if cfg.Storage.AccessKey != "" {
		store, err := gcs.NewStore(gcs.Settings{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("building storage toolset: %w", err)
		}
		reg.MustRegister(gcs.Capabilities(store))
	} else {
		log.Printf("WARNING: storage toolset disabled: access_key is not configured")
	}

	if cfg.BigQuery.ProjectID != "" {
		settings := bigquery.Settings{ProjectID: cfg.BigQuery.ProjectID, Location: cfg.BigQuery.Location}
		client := bigquery.NewClient(settings, googleToken)
		reg.MustRegister(bigquery.Capabilities(client, settings))
	} else {
		log.Printf("WARNING: bigquery toolset disabled: project_id is not configured")
	}

	if cfg.Databricks.Host != "" && cfg.Databricks.Token != "" {
		client := databricks.NewClient(databricks.Settings{Host: cfg.Databricks.Host}, cfg.Databricks.Token)
		reg.MustRegister(databricks.Capabilities(client))
	} else {
		log.Printf("WARNING: databricks toolset disabled: DATABRICKS_HOST and DATABRICKS_TOKEN are not set")
	}

	return reg, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}
