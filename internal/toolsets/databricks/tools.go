package databricks

import (
	"context"
	"fmt"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// Category is the registry category for this toolset.
const Category = "databricks"

// Capabilities returns the Databricks toolset bound to a client.
func Capabilities(c Client) []registry.Capability {
	t := &toolset{client: c}
	return []registry.Capability{
		{
			Category: Category, Name: "create_cluster",
			Description: "Create an all-purpose cluster.",
			Params: []registry.Param{
				{Name: "name", Type: registry.TypeString, Required: true, Description: "Cluster name."},
				{Name: "spark_version", Type: registry.TypeString, Required: true,
					Description: "Spark runtime version, e.g. 15.4.x-scala2.12."},
				{Name: "node_type", Type: registry.TypeString, Required: true,
					Description: "Worker node type id, e.g. Standard_DS3_v2."},
				{Name: "num_workers", Type: registry.TypeInt, Description: "Worker count (default 1)."},
			},
			Run: t.createCluster,
		},
		{
			Category: Category, Name: "list_clusters",
			Description: "List clusters in the workspace with their states.",
			Run:         t.listClusters,
		},
		{
			Category: Category, Name: "cluster_status",
			Description: "Get one cluster's state.",
			Params: []registry.Param{
				{Name: "cluster_id", Type: registry.TypeString, Required: true, Description: "Cluster id."},
			},
			Run: t.clusterStatus,
		},
		{
			Category: Category, Name: "delete_cluster",
			Description: "Permanently delete a cluster.",
			Params: []registry.Param{
				{Name: "cluster_id", Type: registry.TypeString, Required: true, Description: "Cluster id."},
			},
			Run: t.deleteCluster,
		},
		{
			Category: Category, Name: "submit_pyspark_job",
			Description: "Submit a one-off PySpark job from a workspace or DBFS python file.",
			Params: []registry.Param{
				{Name: "cluster_id", Type: registry.TypeString, Required: true, Description: "Cluster to run on."},
				{Name: "python_file", Type: registry.TypeString, Required: true,
					Description: "Path to the python file, e.g. dbfs:/jobs/etl.py."},
				{Name: "name", Type: registry.TypeString, Description: "Run name."},
				{Name: "parameters", Type: registry.TypeStringSlice, Description: "Command-line parameters."},
			},
			Run: t.submitPySparkJob,
		},
		{
			Category: Category, Name: "submit_notebook_job",
			Description: "Submit a one-off run of a workspace notebook.",
			Params: []registry.Param{
				{Name: "cluster_id", Type: registry.TypeString, Required: true, Description: "Cluster to run on."},
				{Name: "notebook_path", Type: registry.TypeString, Required: true,
					Description: "Workspace notebook path, e.g. /Shared/etl/daily."},
				{Name: "name", Type: registry.TypeString, Description: "Run name."},
			},
			Run: t.submitNotebookJob,
		},
		{
			Category: Category, Name: "run_status",
			Description: "Get the lifecycle and result state of a job run.",
			Params: []registry.Param{
				{Name: "run_id", Type: registry.TypeInt, Required: true, Description: "Run id."},
			},
			Run: t.runStatus,
		},
		{
			Category: Category, Name: "list_runs",
			Description: "List recent job runs.",
			Params: []registry.Param{
				{Name: "limit", Type: registry.TypeInt, Description: "Maximum runs to return (default 20)."},
			},
			Run: t.listRuns,
		},
	}
}

type toolset struct {
	client Client
}

func (t *toolset) createCluster(ctx context.Context, args map[string]any) (any, error) {
	name, err := registry.StringArg(args, "name")
	if err != nil {
		return nil, err
	}
	sparkVersion, err := registry.StringArg(args, "spark_version")
	if err != nil {
		return nil, err
	}
	nodeType, err := registry.StringArg(args, "node_type")
	if err != nil {
		return nil, err
	}
	spec := ClusterSpec{
		Name:         name,
		SparkVersion: sparkVersion,
		NodeType:     nodeType,
		NumWorkers:   registry.OptionalInt(args, "num_workers", 1),
	}
	id, err := t.client.CreateCluster(ctx, spec)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "cluster_id": id}, nil
}

func (t *toolset) listClusters(ctx context.Context, args map[string]any) (any, error) {
	clusters, err := t.client.ListClusters(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(clusters), "clusters": clusters}, nil
}

func (t *toolset) clusterStatus(ctx context.Context, args map[string]any) (any, error) {
	id, err := registry.StringArg(args, "cluster_id")
	if err != nil {
		return nil, err
	}
	cluster, err := t.client.ClusterStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

func (t *toolset) deleteCluster(ctx context.Context, args map[string]any) (any, error) {
	id, err := registry.StringArg(args, "cluster_id")
	if err != nil {
		return nil, err
	}
	if err := t.client.DeleteCluster(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "deleted": id}, nil
}

func (t *toolset) submitPySparkJob(ctx context.Context, args map[string]any) (any, error) {
	clusterID, err := registry.StringArg(args, "cluster_id")
	if err != nil {
		return nil, err
	}
	pythonFile, err := registry.StringArg(args, "python_file")
	if err != nil {
		return nil, err
	}
	name := registry.OptionalString(args, "name", "decopilot pyspark run")

	var params []string
	if _, ok := args["parameters"]; ok {
		if params, err = registry.StringSliceArg(args, "parameters"); err != nil {
			return nil, err
		}
	}

	runID, err := t.client.SubmitPythonRun(ctx, clusterID, name, pythonFile, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "run_id": runID}, nil
}

func (t *toolset) submitNotebookJob(ctx context.Context, args map[string]any) (any, error) {
	clusterID, err := registry.StringArg(args, "cluster_id")
	if err != nil {
		return nil, err
	}
	notebookPath, err := registry.StringArg(args, "notebook_path")
	if err != nil {
		return nil, err
	}
	name := registry.OptionalString(args, "name", "decopilot notebook run")

	runID, err := t.client.SubmitNotebookRun(ctx, clusterID, name, notebookPath)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "success", "run_id": runID}, nil
}

func (t *toolset) runStatus(ctx context.Context, args map[string]any) (any, error) {
	raw, ok := args["run_id"]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", "run_id")
	}
	var runID int64
	switch v := raw.(type) {
	case float64:
		runID = int64(v)
	case int:
		runID = int64(v)
	default:
		return nil, fmt.Errorf("argument %q must be an integer", "run_id")
	}

	run, err := t.client.RunStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (t *toolset) listRuns(ctx context.Context, args map[string]any) (any, error) {
	limit := registry.OptionalInt(args, "limit", 20)
	runs, err := t.client.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(runs), "runs": runs}, nil
}
