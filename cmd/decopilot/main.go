// Decopilot: a data engineering copilot for BigQuery, Dataform, dbt,
// object storage, and Databricks.
//
// It serves the same capability catalog over two surfaces:
//
//	decopilot serve   # MCP server (stdio transport) for AI coding tools
//	decopilot api     # REST API server
//
// Plus operational commands:
//
//	decopilot tools   # Print the capability catalog
//	decopilot update  # Update to the latest version
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datacue-labs/decopilot/internal/agent"
	"github.com/datacue-labs/decopilot/internal/api"
	"github.com/datacue-labs/decopilot/internal/config"
	"github.com/datacue-labs/decopilot/internal/mcpserver"
	"github.com/datacue-labs/decopilot/internal/tasks"
	"github.com/datacue-labs/decopilot/internal/updater"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "api":
		err = runAPI()
	case "tools":
		err = runTools()
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
	case "--version", "-v", "version":
		fmt.Printf("decopilot v%s\n", mcpserver.Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runServe starts the MCP server on stdio.
func runServe() error {
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		return err
	}

	s, cleanup, err := mcpserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check prints to stderr so it doesn't interfere
	// with the MCP stdio transport on stdout.
	go checkForUpdates()

	return server.ServeStdio(s)
}

// runAPI starts the REST API server with graceful shutdown.
func runAPI() error {
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		return err
	}

	reg, err := mcpserver.BuildRegistry(cfg)
	if err != nil {
		return err
	}

	var journal *tasks.Journal
	journalDir := cfg.Tasks.JournalDir
	if journalDir == "" {
		journalDir = tasks.DefaultJournalDir()
	}
	if journal, err = tasks.NewJournal(journalDir); err != nil {
		log.Printf("WARNING: task journal disabled: %v", err)
		journal = nil
	}

	tracker := tasks.NewTracker(tasks.Config{
		OperationTimeout: cfg.Tasks.OperationTimeout,
		Retention:        cfg.Tasks.Retention,
	}, journal)
	defer func() {
		tracker.Close()
		if journal != nil {
			_ = journal.Close()
		}
	}()

	api.Version = mcpserver.Version
	handler := api.New(reg, agent.New(cfg.Agent, reg), tracker)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api: listening on %s", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		log.Printf("api: received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// runTools prints the capability catalog.
func runTools() error {
	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		return err
	}
	reg, err := mcpserver.BuildRegistry(cfg)
	if err != nil {
		return err
	}

	for _, category := range reg.Categories() {
		fmt.Printf("%s:\n", category)
		for _, capability := range reg.All() {
			if capability.Category != category {
				continue
			}
			fmt.Printf("  %-24s %s\n", capability.Name, capability.Description)
		}
		fmt.Println()
	}
	return nil
}

// checkForUpdates runs a non-blocking version check and prints a notice to
// stderr if an update is available. Network failures are silently ignored.
func checkForUpdates() {
	result := updater.CheckVersion(mcpserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  Update available: v%s -> v%s\n"+
				"  Run: decopilot update\n"+
				"  Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	fmt.Fprintf(os.Stderr, "Checking for updates...\n")

	result := updater.CheckVersion(mcpserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\n", result.CurrentVersion, result.LatestVersion)
	fmt.Fprintf(os.Stderr, "Downloading...\n")

	if err := updater.SelfUpdate(mcpserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "\n  You can download manually from:\n  %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart decopilot to use the new version.\n", result.LatestVersion)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `decopilot v%s - data engineering copilot

Usage:
  decopilot serve     Start the MCP server (stdio transport)
  decopilot api       Start the REST API server
  decopilot tools     Print the capability catalog
  decopilot update    Update to the latest version
  decopilot version   Print the version

Configuration:
  Reads %s from the working directory; every setting can be
  overridden with DECOPILOT_* environment variables.

  MCP config for AI coding tools:

  {
    "mcpServers": {
      "decopilot": {
        "command": "decopilot",
        "args": ["serve"]
      }
    }
  }
`, mcpserver.Version, config.DefaultFile)
}
