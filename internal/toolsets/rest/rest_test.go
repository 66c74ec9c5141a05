package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSON_RoundTrip(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "ok"})
	}))
	defer ts.Close()

	c := New(ts.URL, "secret-token")
	var out struct {
		Name string `json:"name"`
	}
	if err := c.PostJSON(context.Background(), "/things", map[string]string{"key": "value"}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.Name != "ok" {
		t.Errorf("decoded name = %q", out.Name)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody["key"] != "value" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestGetJSON_NonOKStatusIsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	err := c.GetJSON(context.Background(), "/missing", &struct{}{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

func TestDo_ExtraHeadersApplied(t *testing.T) {
	var gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	c.Header = http.Header{"Accept": []string{"application/vnd.github.v3+json"}}
	if err := c.Delete(context.Background(), "/ref"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotAccept != "application/vnd.github.v3+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
}
