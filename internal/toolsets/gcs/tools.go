package gcs

import (
	"context"
	"fmt"

	"github.com/datacue-labs/decopilot/internal/registry"
)

// Category is the registry category for this toolset.
const Category = "gcs"

// maxReadBytes caps read_object so a large parquet file cannot flood the
// model's context.
const maxReadBytes = 256 * 1024

// Capabilities returns the object-storage toolset bound to a store.
func Capabilities(s Store) []registry.Capability {
	t := &toolset{store: s}
	return []registry.Capability{
		{
			Category: Category, Name: "validate_bucket",
			Description: "Check that a bucket exists and is reachable with the configured credentials.",
			Params: []registry.Param{
				{Name: "bucket", Type: registry.TypeString, Required: true, Description: "Bucket name."},
			},
			Run: t.validateBucket,
		},
		{
			Category: Category, Name: "validate_object",
			Description: "Check that an object exists and report its size and content type.",
			Params: []registry.Param{
				{Name: "bucket", Type: registry.TypeString, Required: true, Description: "Bucket name."},
				{Name: "key", Type: registry.TypeString, Required: true, Description: "Object key."},
			},
			Run: t.validateObject,
		},
		{
			Category: Category, Name: "list_objects",
			Description: "List objects under a prefix.",
			Params: []registry.Param{
				{Name: "bucket", Type: registry.TypeString, Required: true, Description: "Bucket name."},
				{Name: "prefix", Type: registry.TypeString, Description: "Key prefix to list under."},
				{Name: "limit", Type: registry.TypeInt, Description: "Maximum objects to return (default 100)."},
			},
			Run: t.listObjects,
		},
		{
			Category: Category, Name: "read_object",
			Description: "Read a text object's contents (truncated past 256 KiB).",
			Params: []registry.Param{
				{Name: "bucket", Type: registry.TypeString, Required: true, Description: "Bucket name."},
				{Name: "key", Type: registry.TypeString, Required: true, Description: "Object key."},
			},
			Run: t.readObject,
		},
	}
}

type toolset struct {
	store Store
}

func (t *toolset) validateBucket(ctx context.Context, args map[string]any) (any, error) {
	bucket, err := registry.StringArg(args, "bucket")
	if err != nil {
		return nil, err
	}
	ok, err := t.store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("bucket %q does not exist or is not accessible", bucket)
	}
	return map[string]any{"bucket": bucket, "exists": true}, nil
}

func (t *toolset) validateObject(ctx context.Context, args map[string]any) (any, error) {
	bucket, err := registry.StringArg(args, "bucket")
	if err != nil {
		return nil, err
	}
	key, err := registry.StringArg(args, "key")
	if err != nil {
		return nil, err
	}
	info, err := t.store.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bucket": bucket, "object": info, "exists": true}, nil
}

func (t *toolset) listObjects(ctx context.Context, args map[string]any) (any, error) {
	bucket, err := registry.StringArg(args, "bucket")
	if err != nil {
		return nil, err
	}
	prefix := registry.OptionalString(args, "prefix", "")
	limit := registry.OptionalInt(args, "limit", 100)

	objects, err := t.store.ListObjects(ctx, bucket, prefix, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"bucket":  bucket,
		"prefix":  prefix,
		"count":   len(objects),
		"objects": objects,
	}, nil
}

func (t *toolset) readObject(ctx context.Context, args map[string]any) (any, error) {
	bucket, err := registry.StringArg(args, "bucket")
	if err != nil {
		return nil, err
	}
	key, err := registry.StringArg(args, "key")
	if err != nil {
		return nil, err
	}
	// Reading one byte past the cap distinguishes an object of exactly
	// maxReadBytes from a longer one.
	contents, err := t.store.ReadObject(ctx, bucket, key, maxReadBytes+1)
	if err != nil {
		return nil, err
	}
	truncated := len(contents) > maxReadBytes
	if truncated {
		contents = contents[:maxReadBytes]
	}
	return map[string]any{
		"bucket":    bucket,
		"key":       key,
		"contents":  contents,
		"truncated": truncated,
	}, nil
}
