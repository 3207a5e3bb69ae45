package events

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/pkg/types"
)

// S3Sink uploads each audit record as its own object to S3-compatible
// storage (Swift deployments front this with their S3 middleware).
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates the remote audit sink.
func NewS3Sink(cfg config.S3) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("events: s3 bucket is required")
	}

	client := s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Write(ctx context.Context, ev types.Event, line []byte) error {
	body := append(line, '\n')
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.ObjectKey(ev)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("upload event to s3: %w", err)
	}
	return nil
}

// ObjectKey builds the object name for one event: a sortable UTC timestamp
// plus the event id so concurrent events never collide.
func (s *S3Sink) ObjectKey(ev types.Event) string {
	name := fmt.Sprintf("%s-%s.jsonl", ev.Timestamp.Format("20060102T150405.000000000Z"), ev.ID)
	if s.prefix != "" {
		return s.prefix + "/" + name
	}
	return name
}
