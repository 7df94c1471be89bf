package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps artifacts in an S3-compatible bucket, such as Cloudflare R2.
type S3Store struct {
	client *s3.Client
	bucket string
	base   string
}

func NewS3Store(ctx context.Context, o S3Options, publicBaseURL string) (*S3Store, error) {
	o.FillDefaults()
	if o.Bucket == "" || o.AccessKeyID == "" || o.SecretAccessKey == "" {
		return nil, fmt.Errorf("bucket and credentials are required")
	}
	if publicBaseURL == "" {
		return nil, fmt.Errorf("no public base url")
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return &S3Store{
		client: client,
		bucket: o.Bucket,
		base:   publicBaseURL,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("bad key %q", key)
	}
	url, err := publicURL(s.base, key)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %v: %w", key, err)
	}
	return url, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %v: %w", key, err)
	}
	return nil
}
