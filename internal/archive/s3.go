// Package archive persists finished aggregate reports and announces them.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dwsmith1983/fleetgate/internal/report"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads aggregate reports to S3.
type Store struct {
	client S3API
	bucket string
	prefix string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithS3Client sets a custom S3 client.
func WithS3Client(c S3API) StoreOption {
	return func(s *Store) { s.client = c }
}

// NewStore creates a report store for cfg.
func NewStore(ctx context.Context, cfg *types.ArchiveConfig, opts ...StoreOption) (*Store, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket required")
	}
	s := &Store{bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(awsCfg)
	}
	return s, nil
}

// Key returns the object key for a hub run's report.
func (s *Store) Key(hubRunID string) string {
	if hubRunID == "" {
		hubRunID = "unknown"
	}
	return path.Join(s.prefix, hubRunID, "report.json")
}

// Put uploads the report as indented JSON and returns its key.
func (s *Store) Put(ctx context.Context, agg *types.AggregateReport) (string, error) {
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, agg); err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	key := s.Key(agg.HubRunID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("putting report s3://%s/%s: %w", s.bucket, key, err)
	}
	return key, nil
}
