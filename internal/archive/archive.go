// Package archive writes terminal execution records to a blob bucket so
// the hot store never has to be pruned for history's sake. Buckets are
// addressed by gocloud URL, supporting S3, GCS, Azure Blob Storage, and
// S3-compatible stores
package archive

import (
	"context"
	"encoding/json"
	"errors"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/kode4food/flume/pkg/api"
)

// BlobArchiver stores execution records as JSON blobs under a key prefix
type BlobArchiver struct {
	bucket *blob.Bucket
	prefix string
}

var ErrRecordNotArchived = errors.New("execution record not archived")

// New opens the bucket behind bucketURL and returns an archiver writing
// under the given key prefix
func New(ctx context.Context, bucketURL, prefix string) (*BlobArchiver, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewWithBucket(bucket, prefix), nil
}

// NewWithBucket wraps an already opened bucket. Used by tests with
// in-memory buckets
func NewWithBucket(bucket *blob.Bucket, prefix string) *BlobArchiver {
	return &BlobArchiver{
		bucket: bucket,
		prefix: prefix,
	}
}

// Archive writes the record to the bucket, overwriting any previous
// archive of the same execution
func (a *BlobArchiver) Archive(
	ctx context.Context, rec *api.Execution,
) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return a.bucket.WriteAll(ctx, a.keyFor(rec.ID), data, nil)
}

// Get reads an archived record back, primarily for diagnostics
func (a *BlobArchiver) Get(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrRecordNotArchived
		}
		return nil, err
	}

	var rec api.Execution
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close releases the underlying bucket
func (a *BlobArchiver) Close() error {
	return a.bucket.Close()
}

func (a *BlobArchiver) keyFor(id api.ExecutionID) string {
	return a.prefix + string(id) + ".json"
}
