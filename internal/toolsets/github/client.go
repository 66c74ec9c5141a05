// Package github wraps the GitHub REST API as copilot capabilities for the
// pipeline-repository workflow: read and commit files, manage feature
// branches, and open pull requests.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/datacue-labs/decopilot/internal/toolsets/rest"
)

// Settings identifies the repository the toolset operates on.
type Settings struct {
	Owner      string
	Repository string
	BaseBranch string
}

func (s Settings) repoPath() string {
	return fmt.Sprintf("/repos/%s/%s", s.Owner, s.Repository)
}

// FileEntry is one item of a directory listing.
type FileEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
	Size int64  `json:"size"`
}

// Commit is one entry of a file's history.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// PullRequest is a created or listed pull request.
type PullRequest struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Branch   string `json:"branch"`
	MergedAt string `json:"merged_at,omitempty"`
}

// Client is the narrow GitHub surface the toolset needs.
type Client interface {
	ReadFile(ctx context.Context, path, ref string) (string, error)
	WriteFile(ctx context.Context, path, contents, message, branch string) error
	ListFiles(ctx context.Context, dir, ref string) ([]FileEntry, error)
	FileHistory(ctx context.Context, path string, limit int) ([]Commit, error)
	CreateBranch(ctx context.Context, name, from string) error
	DeleteBranch(ctx context.Context, name string) error
	CreatePullRequest(ctx context.Context, title, body, head, base string) (PullRequest, error)
	MergedPullRequests(ctx context.Context, limit int) ([]PullRequest, error)
}

type restClient struct {
	api      *rest.Client
	settings Settings
}

// NewClient creates a REST-backed client authenticated with a personal
// access token.
func NewClient(settings Settings, token string) Client {
	api := rest.New("https://api.github.com", token)
	api.Header = http.Header{"Accept": []string{"application/vnd.github.v3+json"}}
	return &restClient{api: api, settings: settings}
}

func (c *restClient) contentsPath(path, ref string) string {
	p := c.settings.repoPath() + "/contents/" + url.PathEscape(path)
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}
	return p
}

func (c *restClient) ReadFile(ctx context.Context, path, ref string) (string, error) {
	var resp struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.api.GetJSON(ctx, c.contentsPath(path, ref), &resp); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.Encoding != "base64" {
		return resp.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Content)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return string(decoded), nil
}

func (c *restClient) WriteFile(ctx context.Context, path, contents, message, branch string) error {
	body := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(contents)),
		"branch":  branch,
	}

	// An update needs the current blob SHA; a create must omit it.
	var existing struct {
		SHA string `json:"sha"`
	}
	if err := c.api.GetJSON(ctx, c.contentsPath(path, branch), &existing); err == nil && existing.SHA != "" {
		body["sha"] = existing.SHA
	}

	if err := c.api.PutJSON(ctx, c.settings.repoPath()+"/contents/"+url.PathEscape(path), body, nil); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}

func (c *restClient) ListFiles(ctx context.Context, dir, ref string) ([]FileEntry, error) {
	var entries []FileEntry
	if err := c.api.GetJSON(ctx, c.contentsPath(dir, ref), &entries); err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return entries, nil
}

func (c *restClient) FileHistory(ctx context.Context, path string, limit int) ([]Commit, error) {
	var resp []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Name string `json:"name"`
				Date string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	call := fmt.Sprintf("%s/commits?path=%s&per_page=%d",
		c.settings.repoPath(), url.QueryEscape(path), limit)
	if err := c.api.GetJSON(ctx, call, &resp); err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", path, err)
	}

	commits := make([]Commit, 0, len(resp))
	for _, r := range resp {
		commits = append(commits, Commit{
			SHA:     r.SHA,
			Message: r.Commit.Message,
			Author:  r.Commit.Author.Name,
			Date:    r.Commit.Author.Date,
		})
	}
	return commits, nil
}

func (c *restClient) CreateBranch(ctx context.Context, name, from string) error {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.api.GetJSON(ctx, c.settings.repoPath()+"/git/ref/heads/"+url.PathEscape(from), &ref); err != nil {
		return fmt.Errorf("resolving base branch %s: %w", from, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": ref.Object.SHA,
	}
	if err := c.api.PostJSON(ctx, c.settings.repoPath()+"/git/refs", body, nil); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

func (c *restClient) DeleteBranch(ctx context.Context, name string) error {
	if err := c.api.Delete(ctx, c.settings.repoPath()+"/git/refs/heads/"+url.PathEscape(name)); err != nil {
		return fmt.Errorf("deleting branch %s: %w", name, err)
	}
	return nil
}

func (c *restClient) CreatePullRequest(ctx context.Context, title, body, head, base string) (PullRequest, error) {
	req := map[string]string{"title": title, "body": body, "head": head, "base": base}
	var resp struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.api.PostJSON(ctx, c.settings.repoPath()+"/pulls", req, &resp); err != nil {
		return PullRequest{}, fmt.Errorf("creating pull request: %w", err)
	}
	return PullRequest{Number: resp.Number, Title: resp.Title, URL: resp.HTMLURL, Branch: head}, nil
}

func (c *restClient) MergedPullRequests(ctx context.Context, limit int) ([]PullRequest, error) {
	var resp []struct {
		Number   int    `json:"number"`
		Title    string `json:"title"`
		HTMLURL  string `json:"html_url"`
		MergedAt string `json:"merged_at"`
		Head     struct {
			Ref string `json:"ref"`
		} `json:"head"`
	}
	call := fmt.Sprintf("%s/pulls?state=closed&sort=updated&direction=desc&per_page=%d",
		c.settings.repoPath(), limit)
	if err := c.api.GetJSON(ctx, call, &resp); err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}

	var merged []PullRequest
	for _, r := range resp {
		if r.MergedAt == "" {
			continue // closed without merging
		}
		merged = append(merged, PullRequest{
			Number: r.Number, Title: r.Title, URL: r.HTMLURL,
			Branch: r.Head.Ref, MergedAt: r.MergedAt,
		})
	}
	return merged, nil
}
