package storage

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/trackgraph/internal/util"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientParams holds the connection settings of an S3 compatible endpoint.
type S3ClientParams struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3ClientParamsFromEnv reads AWS_REGION, AWS_ENDPOINT, AWS_ACCESS_KEY and
// AWS_SECRET_KEY.
func S3ClientParamsFromEnv() S3ClientParams {
	return S3ClientParams{
		Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
		Endpoint:  util.GetEnvString("AWS_ENDPOINT", ""),
		AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
		SecretKey: util.GetEnv("AWS_SECRET_KEY"),
	}
}

// NewS3Client creates a path style client, which is what MinIO expects.
func NewS3Client(ctx context.Context, params S3ClientParams) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}
