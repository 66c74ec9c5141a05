package gcs

import (
	"context"
	"strings"
	"testing"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// fakeStore serves canned storage data.
type fakeStore struct {
	buckets  map[string]bool
	objects  map[string]ObjectInfo
	contents map[string]string

	gotPrefix string
	gotLimit  int
}

func (f *fakeStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeStore) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, ok := f.objects[bucket+"/"+key]
	if !ok {
		return ObjectInfo{}, errNotFound(bucket, key)
	}
	return info, nil
}

func (f *fakeStore) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	f.gotPrefix = prefix
	f.gotLimit = limit
	var out []ObjectInfo
	for path, info := range f.objects {
		if strings.HasPrefix(path, bucket+"/"+prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *fakeStore) ReadObject(ctx context.Context, bucket, key string, maxBytes int64) (string, error) {
	data, ok := f.contents[bucket+"/"+key]
	if !ok {
		data = "order_id,amount\n1,9.99\n"
	}
	if int64(len(data)) > maxBytes {
		data = data[:maxBytes]
	}
	return data, nil
}

func errNotFound(bucket, key string) error {
	return &notFoundError{bucket: bucket, key: key}
}

type notFoundError struct{ bucket, key string }

func (e *notFoundError) Error() string {
	return "stat " + e.bucket + "/" + e.key + ": not found"
}

func testToolset(f *fakeStore) *toolset { return &toolset{store: f} }

func TestValidateBucket_MissingBucketErrors(t *testing.T) {
	ts := testToolset(&fakeStore{buckets: map[string]bool{"landing": true}})

	if _, err := ts.validateBucket(context.Background(), map[string]any{"bucket": "nope"}); err == nil {
		t.Error("missing bucket accepted")
	}
	out, err := ts.validateBucket(context.Background(), map[string]any{"bucket": "landing"})
	if err != nil {
		t.Fatalf("validateBucket: %v", err)
	}
	if out.(map[string]any)["exists"] != true {
		t.Errorf("payload = %v", out)
	}
}

func TestValidateObject_ReportsMetadata(t *testing.T) {
	ts := testToolset(&fakeStore{objects: map[string]ObjectInfo{
		"landing/raw/orders.csv": {Key: "raw/orders.csv", Size: 1234, ContentType: "text/csv"},
	}})

	out, err := ts.validateObject(context.Background(), map[string]any{
		"bucket": "landing", "key": "raw/orders.csv",
	})
	if err != nil {
		t.Fatalf("validateObject: %v", err)
	}
	info := out.(map[string]any)["object"].(ObjectInfo)
	if info.Size != 1234 || info.ContentType != "text/csv" {
		t.Errorf("object = %+v", info)
	}
}

func TestListObjects_PassesPrefixAndDefaultLimit(t *testing.T) {
	f := &fakeStore{objects: map[string]ObjectInfo{
		"landing/raw/orders.csv": {Key: "raw/orders.csv"},
	}}
	ts := testToolset(f)

	out, err := ts.listObjects(context.Background(), map[string]any{
		"bucket": "landing", "prefix": "raw/",
	})
	if err != nil {
		t.Fatalf("listObjects: %v", err)
	}
	if f.gotPrefix != "raw/" || f.gotLimit != 100 {
		t.Errorf("prefix=%q limit=%d", f.gotPrefix, f.gotLimit)
	}
	if out.(map[string]any)["count"] != 1 {
		t.Errorf("count = %v", out.(map[string]any)["count"])
	}
}

func TestReadObject_RequiresBucketAndKey(t *testing.T) {
	ts := testToolset(&fakeStore{})

	if _, err := ts.readObject(context.Background(), map[string]any{"bucket": "landing"}); err == nil {
		t.Error("missing key accepted")
	}
	out, err := ts.readObject(context.Background(), map[string]any{
		"bucket": "landing", "key": "raw/orders.csv",
	})
	if err != nil {
		t.Fatalf("readObject: %v", err)
	}
	if !strings.Contains(out.(map[string]any)["contents"].(string), "order_id") {
		t.Errorf("contents = %v", out)
	}
}

func TestReadObject_ExactCapIsNotTruncated(t *testing.T) {
	ts := testToolset(&fakeStore{contents: map[string]string{
		"landing/exact.csv": strings.Repeat("a", maxReadBytes),
	}})

	out, err := ts.readObject(context.Background(), map[string]any{
		"bucket": "landing", "key": "exact.csv",
	})
	if err != nil {
		t.Fatalf("readObject: %v", err)
	}
	payload := out.(map[string]any)
	if payload["truncated"] != false {
		t.Error("object of exactly the cap reported as truncated")
	}
	if got := len(payload["contents"].(string)); got != maxReadBytes {
		t.Errorf("contents length = %d, want %d", got, maxReadBytes)
	}
}

func TestReadObject_OversizeIsTruncated(t *testing.T) {
	ts := testToolset(&fakeStore{contents: map[string]string{
		"landing/big.csv": strings.Repeat("a", maxReadBytes+10),
	}})

	out, err := ts.readObject(context.Background(), map[string]any{
		"bucket": "landing", "key": "big.csv",
	})
	if err != nil {
		t.Fatalf("readObject: %v", err)
	}
	payload := out.(map[string]any)
	if payload["truncated"] != true {
		t.Error("oversize object not reported as truncated")
	}
	if got := len(payload["contents"].(string)); got != maxReadBytes {
		t.Errorf("contents length = %d, want cap %d", got, maxReadBytes)
	}
}

func TestCapabilities_AllRunnable(t *testing.T) {
	caps := Capabilities(&fakeStore{})
	r := registry.New()
	r.MustRegister(caps)
	if got := len(r.Names(Category)); got != len(caps) {
		t.Errorf("registered %d capabilities, want %d", got, len(caps))
	}
}
