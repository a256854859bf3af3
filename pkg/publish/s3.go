package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/pipeline"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

const snapshotTimeFormat = "20060102T150405Z"

// objectStore is the part of *minio.Client the archive needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Publisher archives every snapshot in an S3-compatible bucket. Each run
// writes a timestamped object and overwrites the project's latest.json.
type S3Publisher struct {
	log    logrus.FieldLogger
	client objectStore
	bucket string
	prefix string
	region string
}

var _ pipeline.Publisher = (*S3Publisher)(nil)

// NewS3Publisher creates an archive publisher from configuration.
func NewS3Publisher(log logrus.FieldLogger, cfg config.S3PublishConfig) (*S3Publisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	return newS3Publisher(log, client, cfg), nil
}

func newS3Publisher(log logrus.FieldLogger, client objectStore, cfg config.S3PublishConfig) *S3Publisher {
	return &S3Publisher{
		log:    log.WithField("component", "publish_s3"),
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}
}

// Start creates the bucket when it does not exist yet.
func (p *S3Publisher) Start(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", p.bucket, err)
	}

	if exists {
		return nil
	}

	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", p.bucket, err)
	}

	p.log.WithField("bucket", p.bucket).Info("Created snapshot archive bucket")

	return nil
}

// Name implements pipeline.Publisher.
func (p *S3Publisher) Name() string {
	return "s3"
}

// Publish implements pipeline.Publisher.
func (p *S3Publisher) Publish(ctx context.Context, project *store.Project, snapshot *store.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"project-id":  project.ID,
			"task-id":     snapshot.TaskID,
			"snapshot-id": snapshot.ID,
		},
	}

	keys := []string{
		p.key(project.Name, snapshot.CreatedAt.UTC().Format(snapshotTimeFormat)+"-"+snapshot.ID+".json"),
		p.key(project.Name, "latest.json"),
	}

	for _, key := range keys {
		if _, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
	}

	p.log.WithFields(logrus.Fields{
		"project": project.Name,
		"bucket":  p.bucket,
		"key":     keys[0],
	}).Info("Archived snapshot")

	return nil
}

func (p *S3Publisher) key(parts ...string) string {
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}

	return path.Join(parts...)
}
