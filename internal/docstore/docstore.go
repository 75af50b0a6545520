// Package docstore serves the document surface of the knowledge base: it
// lists processed source documents in S3 and issues presigned download
// URLs so clients can fetch the files behind citations.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iecho-project/iecho/internal/log"
)

// ProcessedPrefix is where the ingestion pipeline writes documents that
// made it into the knowledge base. The listing is scoped to this prefix.
const ProcessedPrefix = "processed/"

const (
	// maxListKeys caps the listing so the response stays small.
	maxListKeys = 100

	presignExpiry  = time.Hour
	requestTimeout = 30 * time.Second
)

// ErrBadObjectPath is returned when a download path does not have the
// form s3://bucket/key.
var ErrBadObjectPath = errors.New("object path must look like s3://bucket/key")

// Document is one processed file in the store.
type Document struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// lister and signer are the two S3 operations the store performs,
// narrowed so tests can run without AWS.
type lister interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type signer interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config holds the settings for reaching the document bucket.
type Config struct {
	Bucket string
	Region string
	Logger log.Logger
}

// Store lists documents in one bucket and presigns downloads.
type Store struct {
	client  lister
	presign signer
	bucket  string
	logger  log.Logger
}

// New loads the ambient AWS configuration and returns a store over
// cfg.Bucket. Credentials come from the default provider chain.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("creating document store: bucket is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("creating document store: region is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger,
	}, nil
}

// List returns up to 100 processed documents in the order S3 reports
// them. The prefix marker object itself is skipped.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(ProcessedPrefix),
		MaxKeys: aws.Int32(maxListKeys),
	})
	if err != nil {
		return nil, fmt.Errorf("listing documents in %s: %w", s.bucket, err)
	}

	docs := make([]Document, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == ProcessedPrefix {
			continue
		}
		doc := Document{
			Key:  key,
			Name: strings.TrimPrefix(key, ProcessedPrefix),
			Size: aws.ToInt64(obj.Size),
		}
		if obj.LastModified != nil {
			doc.LastModified = obj.LastModified.UTC()
		}
		docs = append(docs, doc)
	}

	s.logger.Debug("listed documents", "bucket", s.bucket, "count", len(docs))
	return docs, nil
}

// PresignURL converts an s3://bucket/key path into a presigned GET URL
// valid for one hour. The bucket in the path wins over the configured
// one, because citation sources may point at other buckets.
func (s *Store) PresignURL(ctx context.Context, path string) (string, error) {
	bucket, key, err := splitObjectPath(path)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presigning s3://%s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// splitObjectPath parses s3://bucket/key into bucket and key.
func splitObjectPath(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrBadObjectPath, path)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadObjectPath, path)
	}
	return bucket, key, nil
}
