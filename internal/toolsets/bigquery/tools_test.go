package bigquery

import (
	"context"
	"testing"
	"time"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// fakeClient serves canned BigQuery data.
type fakeClient struct {
	dryRun  DryRunResult
	jobs    []Job
	details JobDetails
	meta    TableMeta

	gotSQL   string
	gotLimit int
	gotJobID string
}

func (f *fakeClient) DryRun(ctx context.Context, sql string) (DryRunResult, error) {
	f.gotSQL = sql
	return f.dryRun, nil
}

func (f *fakeClient) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	f.gotLimit = limit
	return f.jobs, nil
}

func (f *fakeClient) JobDetails(ctx context.Context, jobID string) (JobDetails, error) {
	f.gotJobID = jobID
	return f.details, nil
}

func (f *fakeClient) TableMeta(ctx context.Context, dataset, table string) (TableMeta, error) {
	return f.meta, nil
}

func testToolset(f *fakeClient) *toolset {
	return &toolset{client: f, settings: Settings{ProjectID: "my-proj", Location: "US"}}
}

func TestEstimateCost_OneTiBAtListPrice(t *testing.T) {
	f := &fakeClient{dryRun: DryRunResult{TotalBytesProcessed: 1 << 40}}
	ts := testToolset(f)

	out, err := ts.estimateCost(context.Background(), map[string]any{"sql": "select * from t"})
	if err != nil {
		t.Fatalf("estimateCost: %v", err)
	}
	payload := out.(map[string]any)
	if payload["estimated_cost_usd"] != "6.2500" {
		t.Errorf("estimated_cost_usd = %v, want 6.2500", payload["estimated_cost_usd"])
	}
	if f.gotSQL != "select * from t" {
		t.Errorf("sql = %q", f.gotSQL)
	}
}

func TestFailedJobs_FiltersOutSuccesses(t *testing.T) {
	f := &fakeClient{jobs: []Job{
		{ID: "job1", State: "DONE"},
		{ID: "job2", State: "DONE", Error: "quota exceeded"},
		{ID: "job3", State: "RUNNING"},
	}}
	ts := testToolset(f)

	out, err := ts.failedJobs(context.Background(), nil)
	if err != nil {
		t.Fatalf("failedJobs: %v", err)
	}
	payload := out.(map[string]any)
	if payload["scanned"] != 3 || payload["failed"] != 1 {
		t.Errorf("scanned=%v failed=%v", payload["scanned"], payload["failed"])
	}
	failed := payload["jobs"].([]Job)
	if len(failed) != 1 || failed[0].ID != "job2" {
		t.Errorf("jobs = %v", failed)
	}
	if f.gotLimit != 50 {
		t.Errorf("default limit = %d, want 50", f.gotLimit)
	}
}

func TestJobDetails_ReportsQueryAndTiming(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeClient{details: JobDetails{
		ID: "job9", State: "DONE",
		Query:   "select 1",
		Created: started.Add(-time.Second),
		Started: started,
		Ended:   started.Add(2 * time.Minute),
	}}
	ts := testToolset(f)

	out, err := ts.jobDetails(context.Background(), map[string]any{"job_id": "job9"})
	if err != nil {
		t.Fatalf("jobDetails: %v", err)
	}
	payload := out.(map[string]any)
	if payload["query"] != "select 1" || payload["state"] != "DONE" {
		t.Errorf("payload = %v", payload)
	}
	if payload["started"] != "2024-03-01T10:00:00Z" || payload["ended"] != "2024-03-01T10:02:00Z" {
		t.Errorf("timing = started %v ended %v", payload["started"], payload["ended"])
	}
	if _, ok := payload["error"]; ok {
		t.Error("successful job carries an error field")
	}
	if f.gotJobID != "job9" {
		t.Errorf("job id = %q", f.gotJobID)
	}
}

func TestQueryPerformance_ComputesMetricsAndHints(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeClient{details: JobDetails{
		ID: "job9", State: "DONE",
		Started:             started,
		Ended:               started.Add(10 * time.Minute),
		TotalBytesProcessed: 1 << 40,
		TotalSlotMillis:     7_200_000,
	}}
	ts := testToolset(f)

	out, err := ts.queryPerformance(context.Background(), map[string]any{"job_id": "job9"})
	if err != nil {
		t.Fatalf("queryPerformance: %v", err)
	}
	payload := out.(map[string]any)
	if payload["estimated_cost_usd"] != "6.2500" {
		t.Errorf("estimated_cost_usd = %v, want 6.2500", payload["estimated_cost_usd"])
	}
	metrics := payload["performance"].(map[string]any)
	if metrics["duration_seconds"] != "600.00" {
		t.Errorf("duration_seconds = %v, want 600.00", metrics["duration_seconds"])
	}
	// 7,200,000 slot-ms over 600s is 12 slots on average.
	if metrics["avg_slots_used"] != "12.00" {
		t.Errorf("avg_slots_used = %v, want 12.00", metrics["avg_slots_used"])
	}
	// 1 TiB scanned, 2h of slot time, and a 10 minute run trip all hints.
	if hints := payload["hints"].([]string); len(hints) != 3 {
		t.Errorf("hints = %v, want 3 entries", hints)
	}
}

func TestAnalyzeError_ClassifiesMemoryExhaustion(t *testing.T) {
	f := &fakeClient{details: JobDetails{
		ID: "job9", State: "DONE",
		Query: "select * from wide_table a join wide_table b on true",
		Error: "Resources exceeded during query execution: The query could not be executed in the allotted memory.",
	}}
	ts := testToolset(f)

	out, err := ts.analyzeError(context.Background(), map[string]any{"job_id": "job9"})
	if err != nil {
		t.Fatalf("analyzeError: %v", err)
	}
	payload := out.(map[string]any)
	if payload["error_type"] != "memory_exhaustion" {
		t.Errorf("error_type = %v, want memory_exhaustion", payload["error_type"])
	}
	if fixes := payload["suggested_fixes"].([]string); len(fixes) == 0 {
		t.Error("no suggested fixes")
	}
	if payload["query_preview"] == "" {
		t.Error("query preview missing")
	}
}

func TestAnalyzeError_SucceededJobRejected(t *testing.T) {
	ts := testToolset(&fakeClient{details: JobDetails{ID: "job9", State: "DONE"}})

	if _, err := ts.analyzeError(context.Background(), map[string]any{"job_id": "job9"}); err == nil {
		t.Error("job without an error accepted for analysis")
	}
}

func TestClassifyJobError_KnownPatterns(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"Operation timed out after deadline", "timeout"},
		{"Access Denied: dataset staging", "permission_error"},
		{"Not found: Table proj:staging.orders", "table_not_found"},
		{"Syntax error: Unexpected keyword FROM at [3:1]", "syntax_error"},
		{"Query exceeded the maximum slot capacity, slots unavailable", "slot_exhaustion"},
		{"something entirely novel", "other"},
	}
	for _, tc := range cases {
		got, _, fixes := classifyJobError(tc.message)
		if got != tc.want {
			t.Errorf("classifyJobError(%q) = %s, want %s", tc.message, got, tc.want)
		}
		if len(fixes) == 0 {
			t.Errorf("classifyJobError(%q) returned no fixes", tc.message)
		}
	}
}

func TestTableFreshness_ReportsAge(t *testing.T) {
	modified := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeClient{meta: TableMeta{
		Dataset: "staging", Table: "orders",
		NumRows: 100, LastModified: modified,
	}}
	ts := testToolset(f)

	orig := timeNow
	timeNow = func() time.Time { return modified.Add(36 * time.Hour) }
	defer func() { timeNow = orig }()

	out, err := ts.tableFreshness(context.Background(), map[string]any{
		"dataset": "staging", "table": "orders",
	})
	if err != nil {
		t.Fatalf("tableFreshness: %v", err)
	}
	payload := out.(map[string]any)
	if payload["age_hours"] != "36.0" {
		t.Errorf("age_hours = %v, want 36.0", payload["age_hours"])
	}
}

func TestCapabilities_AllRunnable(t *testing.T) {
	caps := Capabilities(&fakeClient{}, Settings{})
	r := registry.New()
	r.MustRegister(caps)
	if got := len(r.Names(Category)); got != len(caps) {
		t.Errorf("registered %d capabilities, want %d", got, len(caps))
	}
}
