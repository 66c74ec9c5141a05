// Package dbt wraps the dbt CLI as copilot capabilities. Every tool shells
// out to the dbt executable against the configured project directory and
// returns the captured output, so the model sees exactly what an engineer
// would see in a terminal.
package dbt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Settings locates the dbt project the runner operates on.
type Settings struct {
	Executable  string // defaults to "dbt"
	ProjectDir  string
	ProfilesDir string
	Target      string
}

// RunResult is the captured outcome of one dbt invocation.
type RunResult struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// Runner executes dbt commands. The production runner shells out; tests
// substitute a fake to assert on the exact argument list.
type Runner interface {
	Run(ctx context.Context, args []string) (RunResult, error)
}

type cliRunner struct {
	settings Settings
}

// NewRunner creates a Runner that executes the dbt binary.
func NewRunner(settings Settings) Runner {
	if settings.Executable == "" {
		settings.Executable = "dbt"
	}
	return &cliRunner{settings: settings}
}

func (r *cliRunner) Run(ctx context.Context, args []string) (RunResult, error) {
	full := append([]string{}, args...)
	if r.settings.ProjectDir != "" {
		full = append(full, "--project-dir", r.settings.ProjectDir)
	}
	if r.settings.ProfilesDir != "" {
		full = append(full, "--profiles-dir", r.settings.ProfilesDir)
	}
	if r.settings.Target != "" {
		full = append(full, "--target", r.settings.Target)
	}

	cmd := exec.CommandContext(ctx, r.settings.Executable, full...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	result := RunResult{Command: r.settings.Executable + " " + strings.Join(full, " ")}
	err := cmd.Run()
	result.Output = buf.String()

	if err == nil {
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// dbt exits nonzero on model/test failures; the output is still the
		// useful part, so it is returned alongside the error.
		result.ExitCode = exitErr.ExitCode()
		return result, fmt.Errorf("dbt %s exited with code %d", args[0], result.ExitCode)
	}
	return result, fmt.Errorf("running dbt %s: %w", args[0], err)
}
