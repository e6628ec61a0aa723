package tilecover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Publisher uploads artifacts to s3://bucket/prefix/name.
type S3Publisher struct {
	uploader      s3manageriface.UploaderAPI
	client        s3iface.S3API
	bucket        string
	prefix        string
	acl           string
	requesterPays bool
	logger        *slog.Logger
}

type S3PublisherOptions struct {
	// ACL is a canned ACL such as "public-read". Empty leaves the bucket default.
	ACL           string
	RequesterPays bool
	Logger        *slog.Logger
}

// NewS3Publisher uses the shared AWS config and credential chain.
func NewS3Publisher(bucket, prefix string, opts *S3PublisherOptions) (*S3Publisher, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}

	return NewS3PublisherWithClient(s3.New(sess), bucket, prefix, opts), nil
}

func NewS3PublisherWithClient(client s3iface.S3API, bucket, prefix string, opts *S3PublisherOptions) *S3Publisher {
	return newS3Publisher(s3manager.NewUploaderWithClient(client), client, bucket, prefix, opts)
}

func newS3Publisher(uploader s3manageriface.UploaderAPI, client s3iface.S3API, bucket, prefix string, opts *S3PublisherOptions) *S3Publisher {
	if opts == nil {
		opts = &S3PublisherOptions{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &S3Publisher{
		uploader:      uploader,
		client:        client,
		bucket:        bucket,
		prefix:        prefix,
		acl:           opts.ACL,
		requesterPays: opts.RequesterPays,
		logger:        logger,
	}
}

func (p *S3Publisher) key(name string) string {
	return path.Join(p.prefix, name)
}

// URL returns the s3:// location an artifact is published to.
func (p *S3Publisher) URL(name string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, p.key(name))
}

// Publish uploads every artifact under a staging prefix first and only then
// copies them onto their final keys, so a failed upload leaves the objects of
// an earlier run in place. A copy that fails halfway can still leave some
// final keys updated and others not.
func (p *S3Publisher) Publish(ctx context.Context, artifacts []Artifact) error {
	staging := stagingPrefix(p.prefix)
	staged := make([]string, 0, len(artifacts))

	for _, a := range artifacts {
		key := path.Join(staging, a.Name)
		input := &s3manager.UploadInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(a.Body),
			ContentType: aws.String(a.ContentType),
		}
		if p.requesterPays {
			input.RequestPayer = aws.String(s3.RequestPayerRequester)
		}

		if _, err := p.uploader.UploadWithContext(ctx, input); err != nil {
			err = fmt.Errorf("upload s3://%s/%s: %w", p.bucket, key, err)
			return errors.Join(err, p.rollback(staged))
		}
		staged = append(staged, key)
	}

	for i, a := range artifacts {
		if err := p.copy(ctx, staged[i], p.key(a.Name)); err != nil {
			return errors.Join(err, p.rollback(staged))
		}
		p.logger.Info("Uploaded artifact", "url", p.URL(a.Name), "bytes", len(a.Body))
	}

	if err := p.rollback(staged); err != nil {
		p.logger.Warn("Couldn't remove staged artifacts", "bucket", p.bucket, "error", err)
	}
	return nil
}

func (p *S3Publisher) copy(ctx context.Context, src, dst string) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(url.PathEscape(p.bucket + "/" + src)),
	}
	if p.acl != "" {
		input.ACL = aws.String(p.acl)
	}
	if p.requesterPays {
		input.RequestPayer = aws.String(s3.RequestPayerRequester)
	}

	if _, err := p.client.CopyObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("copy s3://%s/%s to %s: %w", p.bucket, src, dst, err)
	}
	return nil
}

// rollback deletes staged keys. It runs on a fresh context since the publish
// context may be the reason for the failure.
func (p *S3Publisher) rollback(keys []string) error {
	var errs []error
	for _, key := range keys {
		input := &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		}
		if p.requesterPays {
			input.RequestPayer = aws.String(s3.RequestPayerRequester)
		}

		if _, err := p.client.DeleteObjectWithContext(context.Background(), input); err != nil {
			errs = append(errs, fmt.Errorf("delete s3://%s/%s: %w", p.bucket, key, err))
			continue
		}
		p.logger.Debug("Removed staged artifact", "bucket", p.bucket, "key", key)
	}
	return errors.Join(errs...)
}
