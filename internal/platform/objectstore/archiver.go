// Package objectstore archives run reports in S3 compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/marko911/arbitration-relayer/internal/report"
)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver writes one JSON object per run report.
type Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

// NewArchiver connects to the endpoint and creates the bucket if it is
// missing.
func NewArchiver(ctx context.Context, cfg Config) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *Archiver) Name() string {
	return "objectstore"
}

// ObjectKey returns <prefix>reports/<job>/<chain>/<yyyy>/<mm>/<dd>/<run_id>.json.
func (a *Archiver) ObjectKey(r *report.Report) string {
	day := r.StartedAt.UTC()
	return fmt.Sprintf("%sreports/%s/%d/%04d/%02d/%02d/%s.json",
		a.prefix, r.Job, r.ChainID, day.Year(), int(day.Month()), day.Day(), r.RunID)
}

func (a *Archiver) Publish(ctx context.Context, r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := a.ObjectKey(r)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"job":    r.Job,
			"run-id": r.RunID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
