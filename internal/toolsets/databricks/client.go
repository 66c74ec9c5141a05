// Package databricks wraps the Databricks REST API as copilot capabilities:
// cluster lifecycle and one-off Spark job submission.
package databricks

import (
	"context"
	"fmt"

	"github.com/datacue-labs/decopilot/internal/toolsets/rest"
)

// Settings configures the workspace the toolset talks to.
type Settings struct {
	Host string // e.g. https://adb-1234.5.azuredatabricks.net
}

// ClusterSpec describes a cluster to create.
type ClusterSpec struct {
	Name         string
	SparkVersion string
	NodeType     string
	NumWorkers   int
}

// Cluster summarizes one cluster.
type Cluster struct {
	ID    string `json:"cluster_id"`
	Name  string `json:"cluster_name"`
	State string `json:"state"`
}

// Run summarizes one job run.
type Run struct {
	ID          int64  `json:"run_id"`
	Name        string `json:"run_name,omitempty"`
	LifeCycle   string `json:"life_cycle_state"`
	ResultState string `json:"result_state,omitempty"`
	Message     string `json:"state_message,omitempty"`
	URL         string `json:"run_page_url,omitempty"`
}

// Client is the narrow Databricks surface the toolset needs.
type Client interface {
	CreateCluster(ctx context.Context, spec ClusterSpec) (string, error)
	ListClusters(ctx context.Context) ([]Cluster, error)
	ClusterStatus(ctx context.Context, clusterID string) (Cluster, error)
	DeleteCluster(ctx context.Context, clusterID string) error
	SubmitPythonRun(ctx context.Context, clusterID, name, pythonFile string, params []string) (int64, error)
	SubmitNotebookRun(ctx context.Context, clusterID, name, notebookPath string) (int64, error)
	RunStatus(ctx context.Context, runID int64) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

type restClient struct {
	api *rest.Client
}

// NewClient creates a REST-backed client authenticated with a workspace
// personal access token.
func NewClient(settings Settings, token string) Client {
	return &restClient{api: rest.New(settings.Host+"/api/2.1", token)}
}

func (c *restClient) CreateCluster(ctx context.Context, spec ClusterSpec) (string, error) {
	body := map[string]any{
		"cluster_name":  spec.Name,
		"spark_version": spec.SparkVersion,
		"node_type_id":  spec.NodeType,
		"num_workers":   spec.NumWorkers,
	}
	var resp struct {
		ClusterID string `json:"cluster_id"`
	}
	if err := c.api.PostJSON(ctx, "/clusters/create", body, &resp); err != nil {
		return "", fmt.Errorf("creating cluster %s: %w", spec.Name, err)
	}
	return resp.ClusterID, nil
}

func (c *restClient) ListClusters(ctx context.Context) ([]Cluster, error) {
	var resp struct {
		Clusters []Cluster `json:"clusters"`
	}
	if err := c.api.GetJSON(ctx, "/clusters/list", &resp); err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	return resp.Clusters, nil
}

func (c *restClient) ClusterStatus(ctx context.Context, clusterID string) (Cluster, error) {
	var cluster Cluster
	if err := c.api.GetJSON(ctx, "/clusters/get?cluster_id="+clusterID, &cluster); err != nil {
		return Cluster{}, fmt.Errorf("fetching cluster %s: %w", clusterID, err)
	}
	return cluster, nil
}

func (c *restClient) DeleteCluster(ctx context.Context, clusterID string) error {
	body := map[string]string{"cluster_id": clusterID}
	if err := c.api.PostJSON(ctx, "/clusters/permanent-delete", body, nil); err != nil {
		return fmt.Errorf("deleting cluster %s: %w", clusterID, err)
	}
	return nil
}

func (c *restClient) SubmitPythonRun(ctx context.Context, clusterID, name, pythonFile string, params []string) (int64, error) {
	task := map[string]any{
		"python_file": pythonFile,
	}
	if len(params) > 0 {
		task["parameters"] = params
	}
	return c.submitRun(ctx, name, map[string]any{
		"existing_cluster_id": clusterID,
		"spark_python_task":   task,
	})
}

func (c *restClient) SubmitNotebookRun(ctx context.Context, clusterID, name, notebookPath string) (int64, error) {
	return c.submitRun(ctx, name, map[string]any{
		"existing_cluster_id": clusterID,
		"notebook_task":       map[string]any{"notebook_path": notebookPath},
	})
}

func (c *restClient) submitRun(ctx context.Context, name string, task map[string]any) (int64, error) {
	task["task_key"] = "decopilot"
	body := map[string]any{
		"run_name": name,
		"tasks":    []map[string]any{task},
	}
	var resp struct {
		RunID int64 `json:"run_id"`
	}
	if err := c.api.PostJSON(ctx, "/jobs/runs/submit", body, &resp); err != nil {
		return 0, fmt.Errorf("submitting run %s: %w", name, err)
	}
	return resp.RunID, nil
}

func (c *restClient) RunStatus(ctx context.Context, runID int64) (Run, error) {
	var resp struct {
		RunID   int64  `json:"run_id"`
		RunName string `json:"run_name"`
		State   struct {
			LifeCycleState string `json:"life_cycle_state"`
			ResultState    string `json:"result_state"`
			StateMessage   string `json:"state_message"`
		} `json:"state"`
		RunPageURL string `json:"run_page_url"`
	}
	if err := c.api.GetJSON(ctx, fmt.Sprintf("/jobs/runs/get?run_id=%d", runID), &resp); err != nil {
		return Run{}, fmt.Errorf("fetching run %d: %w", runID, err)
	}
	return Run{
		ID:          resp.RunID,
		Name:        resp.RunName,
		LifeCycle:   resp.State.LifeCycleState,
		ResultState: resp.State.ResultState,
		Message:     resp.State.StateMessage,
		URL:         resp.RunPageURL,
	}, nil
}

func (c *restClient) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var resp struct {
		Runs []struct {
			RunID   int64  `json:"run_id"`
			RunName string `json:"run_name"`
			State   struct {
				LifeCycleState string `json:"life_cycle_state"`
				ResultState    string `json:"result_state"`
			} `json:"state"`
		} `json:"runs"`
	}
	if err := c.api.GetJSON(ctx, fmt.Sprintf("/jobs/runs/list?limit=%d", limit), &resp); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]Run, 0, len(resp.Runs))
	for _, r := range resp.Runs {
		runs = append(runs, Run{
			ID:          r.RunID,
			Name:        r.RunName,
			LifeCycle:   r.State.LifeCycleState,
			ResultState: r.State.ResultState,
		})
	}
	return runs, nil
}
