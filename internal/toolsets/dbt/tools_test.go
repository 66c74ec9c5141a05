package dbt

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// fakeRunner records the argument list instead of shelling out.
type fakeRunner struct {
	gotArgs []string
	result  RunResult
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, args []string) (RunResult, error) {
	f.gotArgs = args
	return f.result, f.err
}

func runTool(t *testing.T, f *fakeRunner, name string, args map[string]any) (any, error) {
	t.Helper()
	r := registry.New()
	r.MustRegister(Capabilities(f))
	c, err := r.Lookup(Category, name)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", name, err)
	}
	return c.Run(context.Background(), args)
}

func TestRun_BuildsSelectionArgs(t *testing.T) {
	f := &fakeRunner{result: RunResult{Output: "Completed successfully"}}

	_, err := runTool(t, f, "run", map[string]any{
		"select":       "tag:staging",
		"exclude":      "tag:deprecated",
		"full_refresh": true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"run", "--select", "tag:staging", "--exclude", "tag:deprecated", "--full-refresh"}
	if !reflect.DeepEqual(f.gotArgs, want) {
		t.Errorf("args = %v, want %v", f.gotArgs, want)
	}
}

func TestDocsGenerate_UsesSubcommand(t *testing.T) {
	f := &fakeRunner{}
	if _, err := runTool(t, f, "docs_generate", nil); err != nil {
		t.Fatalf("docs_generate: %v", err)
	}
	if !reflect.DeepEqual(f.gotArgs, []string{"docs", "generate"}) {
		t.Errorf("args = %v", f.gotArgs)
	}
}

func TestSourceFreshness_AcceptsSelection(t *testing.T) {
	f := &fakeRunner{}
	if _, err := runTool(t, f, "source_freshness", map[string]any{"select": "source:raw"}); err != nil {
		t.Fatalf("source_freshness: %v", err)
	}
	want := []string{"source", "freshness", "--select", "source:raw"}
	if !reflect.DeepEqual(f.gotArgs, want) {
		t.Errorf("args = %v, want %v", f.gotArgs, want)
	}
}

func TestFailedBuildIsPayloadNotError(t *testing.T) {
	f := &fakeRunner{
		result: RunResult{Output: "FAIL 1 not_null_orders_id", ExitCode: 1},
		err:    errors.New("dbt test exited with code 1"),
	}

	out, err := runTool(t, f, "test", map[string]any{"select": "orders"})
	if err != nil {
		t.Fatalf("failed build surfaced as Go error: %v", err)
	}
	payload := out.(map[string]any)
	if payload["success"] != false {
		t.Errorf("success = %v, want false", payload["success"])
	}
	if payload["exit_code"] != 1 {
		t.Errorf("exit_code = %v", payload["exit_code"])
	}
}

func TestMissingBinaryIsError(t *testing.T) {
	f := &fakeRunner{err: errors.New(`running dbt run: exec: "dbt": executable file not found`)}

	if _, err := runTool(t, f, "run", nil); err == nil {
		t.Error("missing executable did not error")
	}
}

func TestCLIRunner_AppendsProjectFlags(t *testing.T) {
	r := NewRunner(Settings{
		Executable:  "/nonexistent/dbt",
		ProjectDir:  "/srv/analytics",
		ProfilesDir: "/srv/profiles",
		Target:      "prod",
	})

	result, err := r.Run(context.Background(), []string{"parse"})
	if err == nil {
		t.Fatal("nonexistent executable ran")
	}
	want := "/nonexistent/dbt parse --project-dir /srv/analytics --profiles-dir /srv/profiles --target prod"
	if result.Command != want {
		t.Errorf("command = %q, want %q", result.Command, want)
	}
}

func TestCapabilities_AllRunnable(t *testing.T) {
	caps := Capabilities(&fakeRunner{})
	r := registry.New()
	r.MustRegister(caps)
	if got := len(r.Names(Category)); got != len(caps) {
		t.Errorf("registered %d capabilities, want %d", got, len(caps))
	}
}
