package databricks

import (
	"context"
	"reflect"
	"testing"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// fakeClient records calls and serves canned responses.
type fakeClient struct {
	createdSpec   ClusterSpec
	deletedID     string
	submittedFile string
	submittedArgs []string
	notebookPath  string
}

func (f *fakeClient) CreateCluster(ctx context.Context, spec ClusterSpec) (string, error) {
	f.createdSpec = spec
	return "0801-abc123", nil
}

func (f *fakeClient) ListClusters(ctx context.Context) ([]Cluster, error) {
	return []Cluster{{ID: "0801-abc123", Name: "etl", State: "RUNNING"}}, nil
}

func (f *fakeClient) ClusterStatus(ctx context.Context, id string) (Cluster, error) {
	return Cluster{ID: id, State: "RUNNING"}, nil
}

func (f *fakeClient) DeleteCluster(ctx context.Context, id string) error {
	f.deletedID = id
	return nil
}

func (f *fakeClient) SubmitPythonRun(ctx context.Context, clusterID, name, pythonFile string, params []string) (int64, error) {
	f.submittedFile = pythonFile
	f.submittedArgs = params
	return 42, nil
}

func (f *fakeClient) SubmitNotebookRun(ctx context.Context, clusterID, name, notebookPath string) (int64, error) {
	f.notebookPath = notebookPath
	return 43, nil
}

func (f *fakeClient) RunStatus(ctx context.Context, runID int64) (Run, error) {
	return Run{ID: runID, LifeCycle: "TERMINATED", ResultState: "SUCCESS"}, nil
}

func (f *fakeClient) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return []Run{{ID: 42, LifeCycle: "RUNNING"}}, nil
}

func testToolset(f *fakeClient) *toolset { return &toolset{client: f} }

func TestCreateCluster_DefaultsWorkerCount(t *testing.T) {
	f := &fakeClient{}
	ts := testToolset(f)

	out, err := ts.createCluster(context.Background(), map[string]any{
		"name": "etl", "spark_version": "15.4.x-scala2.12", "node_type": "Standard_DS3_v2",
	})
	if err != nil {
		t.Fatalf("createCluster: %v", err)
	}
	if f.createdSpec.NumWorkers != 1 {
		t.Errorf("num_workers = %d, want default 1", f.createdSpec.NumWorkers)
	}
	if out.(map[string]any)["cluster_id"] != "0801-abc123" {
		t.Errorf("payload = %v", out)
	}
}

func TestSubmitPySparkJob_PassesParameters(t *testing.T) {
	f := &fakeClient{}
	ts := testToolset(f)

	out, err := ts.submitPySparkJob(context.Background(), map[string]any{
		"cluster_id":  "0801-abc123",
		"python_file": "dbfs:/jobs/etl.py",
		"parameters":  []any{"--date", "2024-03-01"},
	})
	if err != nil {
		t.Fatalf("submitPySparkJob: %v", err)
	}
	if f.submittedFile != "dbfs:/jobs/etl.py" {
		t.Errorf("python_file = %q", f.submittedFile)
	}
	if !reflect.DeepEqual(f.submittedArgs, []string{"--date", "2024-03-01"}) {
		t.Errorf("parameters = %v", f.submittedArgs)
	}
	if out.(map[string]any)["run_id"] != int64(42) {
		t.Errorf("run_id = %v", out.(map[string]any)["run_id"])
	}
}

func TestRunStatus_AcceptsJSONNumber(t *testing.T) {
	ts := testToolset(&fakeClient{})

	// JSON decodes numbers as float64.
	out, err := ts.runStatus(context.Background(), map[string]any{"run_id": float64(42)})
	if err != nil {
		t.Fatalf("runStatus: %v", err)
	}
	run := out.(Run)
	if run.ID != 42 || run.ResultState != "SUCCESS" {
		t.Errorf("run = %+v", run)
	}

	if _, err := ts.runStatus(context.Background(), map[string]any{"run_id": "42"}); err == nil {
		t.Error("string run_id accepted")
	}
}

func TestDeleteCluster_RequiresID(t *testing.T) {
	f := &fakeClient{}
	ts := testToolset(f)

	if _, err := ts.deleteCluster(context.Background(), map[string]any{}); err == nil {
		t.Error("missing cluster_id accepted")
	}
	if f.deletedID != "" {
		t.Errorf("delete reached client for %q", f.deletedID)
	}
}

func TestCapabilities_AllRunnable(t *testing.T) {
	caps := Capabilities(&fakeClient{})
	r := registry.New()
	r.MustRegister(caps)
	if got := len(r.Names(Category)); got != len(caps) {
		t.Errorf("registered %d capabilities, want %d", got, len(caps))
	}
}
