package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
	kgzip "github.com/klauspost/compress/gzip"
)

// S3Store persists Tracker documents to an S3-compatible bucket under a
// configured key prefix.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store builds an S3Store from a region and bucket/prefix. It loads
// AWS credentials the standard way (env vars, shared config, IAM role).
func NewS3Store(ctx context.Context, region, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Get fetches and fully reads an object, transparently gunzipping it if
// its key ends in ".gz". ErrNotFound is returned if the key is absent.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	if hasGzipSuffix(key) {
		r, gzErr := kgzip.NewReader(out.Body)
		if gzErr != nil {
			return nil, fmt.Errorf("gunzip object %s: %w", key, gzErr)
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return io.ReadAll(out.Body)
}

// Put uploads data under key, gzip-encoding it first when gzipEncoded is
// set (used for the dated daily-archive objects).
func (s *S3Store) Put(ctx context.Context, key string, data []byte, gzipEncoded bool) error {
	body := bytes.NewReader(data)
	objKey := s.objectKey(key)
	var reader io.Reader = body

	if gzipEncoded {
		var buf bytes.Buffer
		gw := kgzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return fmt.Errorf("gzip object %s: %w", key, err)
		}
		if err := gw.Close(); err != nil {
			return fmt.Errorf("close gzip writer for %s: %w", key, err)
		}
		reader = &buf
		objKey += ".gz"
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        reader,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is already present, used for
// archive_daily_pnl's idempotency check.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", key, err)
}

func hasGzipSuffix(key string) bool {
	return len(key) > 3 && key[len(key)-3:] == ".gz"
}
