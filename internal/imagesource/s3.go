package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mamage/photo-similarity/internal/constants"
)

// S3API is the subset of the S3 client used to read images.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures object storage access. Endpoint may point at any
// S3-compatible service.
type S3Config struct {
	Region         string
	Endpoint       string
	Bucket         string // used for s3:///key locations
	ForcePathStyle bool
}

// S3Resolver reads s3://bucket/key locations.
type S3Resolver struct {
	client S3API
	bucket string
}

// NewS3Resolver builds a client from the default AWS credential chain.
func NewS3Resolver(ctx context.Context, cfg S3Config) (*S3Resolver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3ResolverWithClient(client, cfg.Bucket), nil
}

// NewS3ResolverWithClient wraps an existing client.
func NewS3ResolverWithClient(client S3API, defaultBucket string) *S3Resolver {
	return &S3Resolver{client: client, bucket: defaultBucket}
}

// splitLocation turns s3://bucket/key into its parts.
func (s *S3Resolver) splitLocation(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	if bucket == "" {
		bucket = s.bucket
	}
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.New("location needs both bucket and key")
	}
	return bucket, key, nil
}

// Fetch implements Resolver.
func (s *S3Resolver) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := s.splitLocation(location)
	if err != nil {
		return nil, &FetchError{Location: location, Err: err}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, &FetchError{Location: location, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, constants.MaxImageBytes))
	if err != nil {
		return nil, &FetchError{Location: location, Err: err}
	}
	return data, nil
}
