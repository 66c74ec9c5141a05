package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// Category is the registry category for this toolset.
const Category = "bigquery"

// pricePerTiB is the on-demand analysis price used for estimates. Estimates
// are advisory; actual billing depends on the project's pricing model.
const pricePerTiB = 6.25

// timeNow is stubbed in tests that assert on freshness math.
var timeNow = time.Now

// Capabilities returns the BigQuery toolset bound to a client.
func Capabilities(c Client, settings Settings) []registry.Capability {
	t := &toolset{client: c, settings: settings}
	return []registry.Capability{
		{
			Category: Category, Name: "estimate_cost",
			Description: "Dry-run a SQL query and estimate its on-demand cost without executing it.",
			Params: []registry.Param{
				{Name: "sql", Type: registry.TypeString, Required: true, Description: "Standard SQL query text."},
			},
			Run: t.estimateCost,
		},
		{
			Category: Category, Name: "failed_jobs",
			Description: "List recent query jobs that finished with an error.",
			Params: []registry.Param{
				{Name: "limit", Type: registry.TypeInt, Description: "Maximum jobs to scan (default 50)."},
			},
			Run: t.failedJobs,
		},
		{
			Category: Category, Name: "job_details",
			Description: "Get a query job's SQL, state, timing, and error if it failed.",
			Params: []registry.Param{
				{Name: "job_id", Type: registry.TypeString, Required: true, Description: "Query job id."},
			},
			Run: t.jobDetails,
		},
		{
			Category: Category, Name: "query_performance",
			Description: "Analyze a finished query job: bytes scanned, slot usage, duration, cost, and optimization hints.",
			Params: []registry.Param{
				{Name: "job_id", Type: registry.TypeString, Required: true, Description: "Query job id."},
			},
			Run: t.queryPerformance,
		},
		{
			Category: Category, Name: "analyze_error",
			Description: "Classify a failed query job's error and suggest concrete fixes.",
			Params: []registry.Param{
				{Name: "job_id", Type: registry.TypeString, Required: true, Description: "Query job id."},
			},
			Run: t.analyzeError,
		},
		{
			Category: Category, Name: "table_freshness",
			Description: "Report when a table was last modified and how stale it is.",
			Params: []registry.Param{
				{Name: "dataset", Type: registry.TypeString, Required: true, Description: "Dataset id."},
				{Name: "table", Type: registry.TypeString, Required: true, Description: "Table name."},
			},
			Run: t.tableFreshness,
		},
	}
}

type toolset struct {
	client   Client
	settings Settings
}

func (t *toolset) estimateCost(ctx context.Context, args map[string]any) (any, error) {
	sql, err := registry.StringArg(args, "sql")
	if err != nil {
		return nil, err
	}
	result, err := t.client.DryRun(ctx, sql)
	if err != nil {
		return nil, err
	}

	tib := float64(result.TotalBytesProcessed) / (1 << 40)
	return map[string]any{
		"total_bytes_processed": result.TotalBytesProcessed,
		"gigabytes_processed":   fmt.Sprintf("%.3f", float64(result.TotalBytesProcessed)/(1<<30)),
		"estimated_cost_usd":    fmt.Sprintf("%.4f", tib*pricePerTiB),
		"cache_hit":             result.CacheHit,
	}, nil
}

func (t *toolset) failedJobs(ctx context.Context, args map[string]any) (any, error) {
	limit := registry.OptionalInt(args, "limit", 50)
	jobs, err := t.client.ListJobs(ctx, limit)
	if err != nil {
		return nil, err
	}

	var failed []Job
	for _, j := range jobs {
		if j.Error != "" {
			failed = append(failed, j)
		}
	}
	return map[string]any{
		"scanned": len(jobs),
		"failed":  len(failed),
		"jobs":    failed,
	}, nil
}

func (t *toolset) jobDetails(ctx context.Context, args map[string]any) (any, error) {
	jobID, err := registry.StringArg(args, "job_id")
	if err != nil {
		return nil, err
	}
	job, err := t.client.JobDetails(ctx, jobID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"job_id":  job.ID,
		"state":   job.State,
		"query":   job.Query,
		"created": job.Created.Format(time.RFC3339),
	}
	if !job.Started.IsZero() {
		payload["started"] = job.Started.Format(time.RFC3339)
	}
	if !job.Ended.IsZero() {
		payload["ended"] = job.Ended.Format(time.RFC3339)
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	return payload, nil
}

func (t *toolset) queryPerformance(ctx context.Context, args map[string]any) (any, error) {
	jobID, err := registry.StringArg(args, "job_id")
	if err != nil {
		return nil, err
	}
	job, err := t.client.JobDetails(ctx, jobID)
	if err != nil {
		return nil, err
	}

	metrics := map[string]any{
		"total_bytes_processed": job.TotalBytesProcessed,
		"total_slot_millis":     job.TotalSlotMillis,
	}
	var durationSeconds float64
	if !job.Started.IsZero() && !job.Ended.IsZero() {
		durationSeconds = job.Ended.Sub(job.Started).Seconds()
		metrics["duration_seconds"] = fmt.Sprintf("%.2f", durationSeconds)
	}
	if durationSeconds > 0 && job.TotalSlotMillis > 0 {
		metrics["avg_slots_used"] = fmt.Sprintf("%.2f",
			float64(job.TotalSlotMillis)/(durationSeconds*1000))
	}

	var hints []string
	if job.TotalBytesProcessed > 100*(1<<30) {
		hints = append(hints, "over 100 GiB scanned; partition or cluster the source tables to cut bytes processed")
	}
	if job.TotalSlotMillis > 3_600_000 {
		hints = append(hints, "over an hour of slot time; review JOINs and aggregations in the query")
	}
	if durationSeconds > 300 {
		hints = append(hints, "ran longer than five minutes; consider incremental processing")
	}

	tib := float64(job.TotalBytesProcessed) / (1 << 40)
	return map[string]any{
		"job_id":             job.ID,
		"state":              job.State,
		"performance":        metrics,
		"estimated_cost_usd": fmt.Sprintf("%.4f", tib*pricePerTiB),
		"hints":              hints,
	}, nil
}

func (t *toolset) analyzeError(ctx context.Context, args map[string]any) (any, error) {
	jobID, err := registry.StringArg(args, "job_id")
	if err != nil {
		return nil, err
	}
	job, err := t.client.JobDetails(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Error == "" {
		return nil, fmt.Errorf("job %s did not fail, nothing to analyze", jobID)
	}

	errorType, rootCause, fixes := classifyJobError(job.Error)
	payload := map[string]any{
		"job_id":          job.ID,
		"error_type":      errorType,
		"root_cause":      rootCause,
		"error_message":   job.Error,
		"suggested_fixes": fixes,
	}
	if job.ErrorReason != "" {
		payload["error_reason"] = job.ErrorReason
	}
	if job.ErrorLocation != "" {
		payload["error_location"] = job.ErrorLocation
	}
	if job.Query != "" {
		payload["query_preview"] = queryPreview(job.Query)
	}
	return payload, nil
}

// classifyJobError maps an error message onto the failure modes seen in
// warehouse pipelines. Patterns are checked most to least specific, so a
// generic word like "invalid" does not shadow a resource error.
func classifyJobError(message string) (errorType, rootCause string, fixes []string) {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "resources exceeded"),
		strings.Contains(lower, "memory"),
		strings.Contains(lower, "100% of limit"):
		return "memory_exhaustion",
			"the query consumed all available memory, usually from large JOINs, window functions over big partitions, or a full-history scan",
			[]string{
				"break the query into smaller stages or incremental tables",
				"add date filters to cut the data volume per run",
				"put the smaller table first in JOINs and drop unused columns",
			}
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return "timeout",
			"the query exceeded its maximum execution time",
			[]string{
				"reduce the data scanned with partition filters",
				"materialize intermediate results instead of one deep query",
			}
	case strings.Contains(lower, "access denied"), strings.Contains(lower, "permission"):
		return "permission_error",
			"the job's credentials lack access to a referenced resource",
			[]string{
				"grant the service account read access on the referenced datasets",
				"check that cross-project references name the right project",
			}
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return "table_not_found",
			"a referenced table or dataset does not exist in the queried location",
			[]string{
				"check the table name and dataset spelling",
				"confirm the upstream job that creates the table ran first",
			}
	case strings.Contains(lower, "syntax error"), strings.Contains(lower, "invalid"):
		return "syntax_error",
			"the SQL did not parse or references an invalid construct",
			[]string{
				"dry-run the query to pinpoint the offending line",
				"check for dialect mismatches such as legacy SQL functions",
			}
	case strings.Contains(lower, "slot") &&
		(strings.Contains(lower, "exceeded") || strings.Contains(lower, "unavailable")):
		return "slot_exhaustion",
			"no slots were available to run the query, typically from concurrent heavy workloads",
			[]string{
				"stagger heavy scheduled queries away from each other",
				"retry outside the peak window or raise the reservation",
			}
	default:
		return "other",
			"no known failure pattern matched",
			[]string{"read the full error message and the job's query for context"}
	}
}

// queryPreview bounds the SQL echoed back in an error analysis.
func queryPreview(sql string) string {
	const limit = 500
	if len(sql) <= limit {
		return sql
	}
	return sql[:limit]
}

func (t *toolset) tableFreshness(ctx context.Context, args map[string]any) (any, error) {
	dataset, err := registry.StringArg(args, "dataset")
	if err != nil {
		return nil, err
	}
	table, err := registry.StringArg(args, "table")
	if err != nil {
		return nil, err
	}
	meta, err := t.client.TableMeta(ctx, dataset, table)
	if err != nil {
		return nil, err
	}

	age := timeNow().UTC().Sub(meta.LastModified)
	return map[string]any{
		"dataset":       meta.Dataset,
		"table":         meta.Table,
		"num_rows":      meta.NumRows,
		"num_bytes":     meta.NumBytes,
		"last_modified": meta.LastModified.Format(time.RFC3339),
		"age_hours":     fmt.Sprintf("%.1f", age.Hours()),
	}, nil
}
