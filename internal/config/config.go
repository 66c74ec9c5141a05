// Package config loads the copilot configuration from an optional YAML
// file with environment variable overrides. Environment always wins, so a
// checked-in decopilot.yaml can hold the boring defaults while tokens and
// endpoints come from the deployment environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config filename looked up in the working directory.
const DefaultFile = "decopilot.yaml"

// Config is the root configuration for every decopilot entry point.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Dataform   DataformConfig   `yaml:"dataform"`
	GitHub     GitHubConfig     `yaml:"github"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
	Dbt        DbtConfig        `yaml:"dbt"`
	Storage    StorageConfig    `yaml:"storage"`
	Databricks DatabricksConfig `yaml:"databricks"`
	Agent      AgentConfig      `yaml:"agent"`
	Tasks      TasksConfig      `yaml:"tasks"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DataformConfig identifies the Dataform repository the copilot operates on.
type DataformConfig struct {
	ProjectID  string `yaml:"project_id"`
	Location   string `yaml:"location"`
	Repository string `yaml:"repository"`
	Workspace  string `yaml:"workspace"`
}

// GitHubConfig configures the GitHub toolset.
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Owner      string `yaml:"owner"`
	Repository string `yaml:"repository"`
	BaseBranch string `yaml:"base_branch"`
}

// BigQueryConfig configures the BigQuery toolset.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
}

// DbtConfig locates the dbt project the CLI toolset runs against.
type DbtConfig struct {
	ProjectDir  string `yaml:"project_dir"`
	ProfilesDir string `yaml:"profiles_dir"`
	Target      string `yaml:"target"`
}

// StorageConfig configures the object-storage toolset (GCS via its
// S3-interoperability endpoint, or any S3-compatible store).
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// DatabricksConfig configures the Databricks toolset.
type DatabricksConfig struct {
	Host  string `yaml:"host"`
	Token string `yaml:"token"`
}

// AgentConfig configures the LLM backing the agent.
type AgentConfig struct {
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	MaxSteps int    `yaml:"max_steps"`
}

// TasksConfig tunes the async task tracker.
type TasksConfig struct {
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	Retention        time.Duration `yaml:"retention"`
	JournalDir       string        `yaml:"journal_dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Dataform: DataformConfig{
			Location:  "us-central1",
			Workspace: "default",
		},
		GitHub:   GitHubConfig{BaseBranch: "main"},
		BigQuery: BigQueryConfig{Location: "US"},
		Dbt:      DbtConfig{ProjectDir: "."},
		Storage: StorageConfig{
			Endpoint: "storage.googleapis.com",
			Region:   "auto",
			UseSSL:   true,
		},
		Agent: AgentConfig{
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o",
			MaxSteps: 12,
		},
		Tasks: TasksConfig{
			OperationTimeout: 15 * time.Minute,
			Retention:        1 * time.Hour,
		},
	}
}

// Load reads path (when it exists) over the defaults and then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults + env only.
		default:
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "DECOPILOT_ADDR")

	setString(&cfg.Dataform.ProjectID, "DECOPILOT_DATAFORM_PROJECT")
	setString(&cfg.Dataform.Location, "DECOPILOT_DATAFORM_LOCATION")
	setString(&cfg.Dataform.Repository, "DECOPILOT_DATAFORM_REPOSITORY")
	setString(&cfg.Dataform.Workspace, "DECOPILOT_DATAFORM_WORKSPACE")

	setString(&cfg.GitHub.Token, "DECOPILOT_GITHUB_TOKEN")
	setString(&cfg.GitHub.Owner, "DECOPILOT_GITHUB_OWNER")
	setString(&cfg.GitHub.Repository, "DECOPILOT_GITHUB_REPOSITORY")
	setString(&cfg.GitHub.BaseBranch, "DECOPILOT_GITHUB_BASE_BRANCH")

	setString(&cfg.BigQuery.ProjectID, "DECOPILOT_BIGQUERY_PROJECT")
	setString(&cfg.BigQuery.Location, "DECOPILOT_BIGQUERY_LOCATION")

	setString(&cfg.Dbt.ProjectDir, "DECOPILOT_DBT_PROJECT_DIR")
	setString(&cfg.Dbt.ProfilesDir, "DECOPILOT_DBT_PROFILES_DIR")
	setString(&cfg.Dbt.Target, "DECOPILOT_DBT_TARGET")

	setString(&cfg.Storage.Endpoint, "DECOPILOT_STORAGE_ENDPOINT")
	setString(&cfg.Storage.AccessKey, "DECOPILOT_STORAGE_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "DECOPILOT_STORAGE_SECRET_KEY")
	setString(&cfg.Storage.Region, "DECOPILOT_STORAGE_REGION")
	setBool(&cfg.Storage.UseSSL, "DECOPILOT_STORAGE_USE_SSL")

	setString(&cfg.Databricks.Host, "DATABRICKS_HOST")
	setString(&cfg.Databricks.Token, "DATABRICKS_TOKEN")

	setString(&cfg.Agent.BaseURL, "DECOPILOT_AGENT_BASE_URL")
	setString(&cfg.Agent.Model, "DECOPILOT_AGENT_MODEL")
	setString(&cfg.Agent.APIKey, "DECOPILOT_AGENT_API_KEY")
	setInt(&cfg.Agent.MaxSteps, "DECOPILOT_AGENT_MAX_STEPS")

	setDuration(&cfg.Tasks.OperationTimeout, "DECOPILOT_TASK_TIMEOUT")
	setDuration(&cfg.Tasks.Retention, "DECOPILOT_TASK_RETENTION")
	setString(&cfg.Tasks.JournalDir, "DECOPILOT_JOURNAL_DIR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes", "YES":
		*dst = true
	case "0", "false", "FALSE", "no", "NO":
		*dst = false
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
