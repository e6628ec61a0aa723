package tilecover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob" // Register azblob:// buckets
	_ "gocloud.dev/blob/fileblob"  // Register file:// buckets
	_ "gocloud.dev/blob/gcsblob"   // Register gs:// buckets
	_ "gocloud.dev/blob/s3blob"    // Register s3:// buckets
)

// BlobPublisher writes artifacts to any bucket gocloud.dev can open.
type BlobPublisher struct {
	bucket *blob.Bucket
	prefix string
	logger *slog.Logger
}

// OpenBlobPublisher opens a bucket URL such as s3://bucket?region=us-east-1,
// gs://bucket, azblob://container or file:///path.
func OpenBlobPublisher(ctx context.Context, bucketURL, prefix string, logger *slog.Logger) (*BlobPublisher, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewBlobPublisher(b, prefix, logger), nil
}

func NewBlobPublisher(b *blob.Bucket, prefix string, logger *slog.Logger) *BlobPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobPublisher{bucket: b, prefix: prefix, logger: logger}
}

// Publish writes every artifact under a staging prefix and then copies them
// onto their final keys. A failed write leaves the previous artifacts intact.
func (p *BlobPublisher) Publish(ctx context.Context, artifacts []Artifact) error {
	staging := stagingPrefix(p.prefix)
	staged := make([]string, 0, len(artifacts))

	for _, a := range artifacts {
		key := path.Join(staging, a.Name)
		opts := &blob.WriterOptions{ContentType: a.ContentType}

		if err := p.bucket.WriteAll(ctx, key, a.Body, opts); err != nil {
			err = fmt.Errorf("write blob %s: %w", key, err)
			return errors.Join(err, p.removeStaged(staged))
		}
		staged = append(staged, key)
	}

	for i, a := range artifacts {
		key := path.Join(p.prefix, a.Name)
		if err := p.bucket.Copy(ctx, key, staged[i], nil); err != nil {
			err = fmt.Errorf("copy blob %s to %s: %w", staged[i], key, err)
			return errors.Join(err, p.removeStaged(staged))
		}
		p.logger.Info("Wrote artifact", "key", key, "bytes", len(a.Body))
	}

	if err := p.removeStaged(staged); err != nil {
		p.logger.Warn("Couldn't remove staged artifacts", "error", err)
	}
	return nil
}

func (p *BlobPublisher) removeStaged(keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := p.bucket.Delete(context.Background(), key); err != nil {
			errs = append(errs, fmt.Errorf("delete blob %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (p *BlobPublisher) Close() error {
	return p.bucket.Close()
}
