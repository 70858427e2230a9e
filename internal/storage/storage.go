// Package storage keeps run artifacts in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultBucket = "lighthouse-results"

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

type Settings struct {
	// ServiceURL points at a custom endpoint such as MinIO; empty uses AWS.
	ServiceURL string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
}

// Enabled reports whether enough settings are present to reach a bucket.
func (s Settings) Enabled() bool {
	return s.ServiceURL != "" || (s.AccessKey != "" && s.SecretKey != "")
}

type Object struct {
	Body         io.ReadCloser
	ContentType  *string
	LastModified *time.Time
	ETag         *string
}

type Service struct {
	client     *s3.Client
	bucketName string
}

func NewService(ctx context.Context, settings Settings) (*Service, error) {
	bucketName := settings.Bucket
	if bucketName == "" {
		bucketName = DefaultBucket
	}
	region := settings.Region
	if region == "" {
		// Region is required by the SDK but ignored by most custom endpoints.
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if settings.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     settings.AccessKey,
				SecretAccessKey: settings.SecretKey,
			}, nil
		})))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	// Wrap the resolved client so AWS_CA_BUNDLE keeps applying.
	base := cfg.HTTPClient
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(roundTripperFunc(base.Do))}
		if settings.ServiceURL != "" {
			o.BaseEndpoint = aws.String(settings.ServiceURL)
		}
	})

	return &Service{
		client:     client,
		bucketName: bucketName,
	}, nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("head bucket %s: %w", s.bucketName, err)
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucketName)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucketName, err)
	}
	return nil
}

func (s *Service) UploadFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	return s.UploadStream(ctx, key, file, mime.TypeByExtension(filepath.Ext(filePath)))
}

func (s *Service) UploadStream(ctx context.Context, key string, stream io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   stream,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Service) DownloadFile(ctx context.Context, key, destinationPath string) error {
	obj, err := s.GetFile(ctx, key)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	file, err := os.Create(destinationPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, obj.Body); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}

func (s *Service) GetFile(ctx context.Context, key string) (*Object, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	return &Object{
		Body:         resp.Body,
		ContentType:  resp.ContentType,
		LastModified: resp.LastModified,
		ETag:         resp.ETag,
	}, nil
}

func (s *Service) DeleteFile(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every key below prefix.
func (s *Service) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// DeletePrefix removes every key below prefix and returns how many were removed.
func (s *Service) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := s.DeleteFile(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
