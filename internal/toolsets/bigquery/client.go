// Package bigquery wraps the BigQuery REST API as copilot capabilities for
// cost control and pipeline health: dry-run cost estimates, recent failed
// jobs, per-job diagnostics, and table freshness.
package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/datacue-labs/decopilot/internal/toolsets/rest"
)

// Settings identifies the project and location queries run in.
type Settings struct {
	ProjectID string
	Location  string
}

// DryRunResult is the outcome of a dry-run query job.
type DryRunResult struct {
	TotalBytesProcessed int64 `json:"total_bytes_processed"`
	CacheHit            bool  `json:"cache_hit"`
}

// Job summarizes one query job.
type Job struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
	Query   string `json:"query,omitempty"`
	Created string `json:"created,omitempty"`
}

// JobDetails is the full status and statistics of one query job.
type JobDetails struct {
	ID                  string    `json:"id"`
	State               string    `json:"state"`
	Query               string    `json:"query,omitempty"`
	Error               string    `json:"error,omitempty"`
	ErrorReason         string    `json:"error_reason,omitempty"`
	ErrorLocation       string    `json:"error_location,omitempty"`
	Created             time.Time `json:"created"`
	Started             time.Time `json:"started"`
	Ended               time.Time `json:"ended"`
	TotalBytesProcessed int64     `json:"total_bytes_processed"`
	TotalSlotMillis     int64     `json:"total_slot_millis"`
}

// TableMeta holds the freshness-relevant metadata of a table.
type TableMeta struct {
	Dataset      string    `json:"dataset"`
	Table        string    `json:"table"`
	NumRows      int64     `json:"num_rows"`
	NumBytes     int64     `json:"num_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// Client is the narrow BigQuery surface the toolset needs.
type Client interface {
	DryRun(ctx context.Context, sql string) (DryRunResult, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
	JobDetails(ctx context.Context, jobID string) (JobDetails, error)
	TableMeta(ctx context.Context, dataset, table string) (TableMeta, error)
}

type restClient struct {
	api      *rest.Client
	settings Settings
}

// NewClient creates a REST-backed client. token is an OAuth2 bearer token.
func NewClient(settings Settings, token string) Client {
	return &restClient{
		api:      rest.New("https://bigquery.googleapis.com/bigquery/v2", token),
		settings: settings,
	}
}

func (c *restClient) DryRun(ctx context.Context, sql string) (DryRunResult, error) {
	body := map[string]any{
		"configuration": map[string]any{
			"dryRun": true,
			"query": map[string]any{
				"query":        sql,
				"useLegacySql": false,
			},
		},
	}
	var resp struct {
		Statistics struct {
			Query struct {
				TotalBytesProcessed string `json:"totalBytesProcessed"`
				CacheHit            bool   `json:"cacheHit"`
			} `json:"query"`
		} `json:"statistics"`
		Status struct {
			ErrorResult *struct {
				Message string `json:"message"`
			} `json:"errorResult"`
		} `json:"status"`
	}
	path := fmt.Sprintf("/projects/%s/jobs", c.settings.ProjectID)
	if err := c.api.PostJSON(ctx, path, body, &resp); err != nil {
		return DryRunResult{}, fmt.Errorf("dry-running query: %w", err)
	}
	if resp.Status.ErrorResult != nil {
		return DryRunResult{}, fmt.Errorf("query is invalid: %s", resp.Status.ErrorResult.Message)
	}

	bytes, _ := strconv.ParseInt(resp.Statistics.Query.TotalBytesProcessed, 10, 64)
	return DryRunResult{
		TotalBytesProcessed: bytes,
		CacheHit:            resp.Statistics.Query.CacheHit,
	}, nil
}

func (c *restClient) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	var resp struct {
		Jobs []struct {
			JobReference struct {
				JobID string `json:"jobId"`
			} `json:"jobReference"`
			Status struct {
				State       string `json:"state"`
				ErrorResult *struct {
					Message string `json:"message"`
				} `json:"errorResult"`
			} `json:"status"`
			Configuration struct {
				Query struct {
					Query string `json:"query"`
				} `json:"query"`
			} `json:"configuration"`
			Statistics struct {
				CreationTime string `json:"creationTime"`
			} `json:"statistics"`
		} `json:"jobs"`
	}
	path := fmt.Sprintf("/projects/%s/jobs?allUsers=true&projection=full&maxResults=%d",
		c.settings.ProjectID, limit)
	if err := c.api.GetJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	jobs := make([]Job, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		job := Job{
			ID:    j.JobReference.JobID,
			State: j.Status.State,
			Query: j.Configuration.Query.Query,
		}
		if j.Status.ErrorResult != nil {
			job.Error = j.Status.ErrorResult.Message
		}
		if ms, err := strconv.ParseInt(j.Statistics.CreationTime, 10, 64); err == nil {
			job.Created = time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (c *restClient) JobDetails(ctx context.Context, jobID string) (JobDetails, error) {
	var resp struct {
		Status struct {
			State       string `json:"state"`
			ErrorResult *struct {
				Message  string `json:"message"`
				Reason   string `json:"reason"`
				Location string `json:"location"`
			} `json:"errorResult"`
		} `json:"status"`
		Configuration struct {
			Query struct {
				Query string `json:"query"`
			} `json:"query"`
		} `json:"configuration"`
		Statistics struct {
			CreationTime string `json:"creationTime"`
			StartTime    string `json:"startTime"`
			EndTime      string `json:"endTime"`
			TotalSlotMs  string `json:"totalSlotMs"`
			Query        struct {
				TotalBytesProcessed string `json:"totalBytesProcessed"`
			} `json:"query"`
		} `json:"statistics"`
	}
	path := fmt.Sprintf("/projects/%s/jobs/%s?location=%s",
		c.settings.ProjectID, jobID, c.settings.Location)
	if err := c.api.GetJSON(ctx, path, &resp); err != nil {
		return JobDetails{}, fmt.Errorf("fetching job %s: %w", jobID, err)
	}

	details := JobDetails{
		ID:    jobID,
		State: resp.Status.State,
		Query: resp.Configuration.Query.Query,
	}
	if e := resp.Status.ErrorResult; e != nil {
		details.Error = e.Message
		details.ErrorReason = e.Reason
		details.ErrorLocation = e.Location
	}
	details.Created = parseMillis(resp.Statistics.CreationTime)
	details.Started = parseMillis(resp.Statistics.StartTime)
	details.Ended = parseMillis(resp.Statistics.EndTime)
	details.TotalSlotMillis, _ = strconv.ParseInt(resp.Statistics.TotalSlotMs, 10, 64)
	details.TotalBytesProcessed, _ = strconv.ParseInt(resp.Statistics.Query.TotalBytesProcessed, 10, 64)
	return details, nil
}

// parseMillis converts a millisecond epoch string as the API sends timestamps.
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (c *restClient) TableMeta(ctx context.Context, dataset, table string) (TableMeta, error) {
	var resp struct {
		NumRows          string `json:"numRows"`
		NumBytes         string `json:"numBytes"`
		LastModifiedTime string `json:"lastModifiedTime"`
	}
	path := fmt.Sprintf("/projects/%s/datasets/%s/tables/%s",
		c.settings.ProjectID, dataset, table)
	if err := c.api.GetJSON(ctx, path, &resp); err != nil {
		return TableMeta{}, fmt.Errorf("fetching table %s.%s: %w", dataset, table, err)
	}

	meta := TableMeta{Dataset: dataset, Table: table}
	meta.NumRows, _ = strconv.ParseInt(resp.NumRows, 10, 64)
	meta.NumBytes, _ = strconv.ParseInt(resp.NumBytes, 10, 64)
	if ms, err := strconv.ParseInt(resp.LastModifiedTime, 10, 64); err == nil {
		meta.LastModified = time.UnixMilli(ms).UTC()
	}
	return meta, nil
}
