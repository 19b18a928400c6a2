package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/OFFIS-RIT/trackgraph/pkg/loader"
)

// ObjectAPI is the subset of the S3 client used by the loader.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3FileLoader is a FileLoader implementation that loads raw event files
// from an S3 bucket. It uses the AWS SDK v2 for Go.
//
// This loader is useful when the detector output is stored in S3 (or an
// S3-compatible store like MinIO) instead of the local filesystem.
type S3FileLoader struct {
	bucket string
	prefix string
	client ObjectAPI
	cache  *loader.Cache
}

// NewS3FileLoaderParams defines the configuration parameters for creating a
// new S3FileLoader.
//
// Prefix is prepended to every file name, so that Prefix "raw/run7" and name
// "event0000000001-hits.csv" read the key "raw/run7/event0000000001-hits.csv".
type NewS3FileLoaderParams struct {
	Bucket       string
	Prefix       string
	Client       ObjectAPI
	CacheEntries int
}

// NewS3FileLoader creates a new S3FileLoader using an existing client.
//
// Example:
//
//	client, err := storage.NewS3Client(ctx, storage.S3ClientParamsFromEnv())
//	files, err := s3.NewS3FileLoader(s3.NewS3FileLoaderParams{
//		Bucket: "detector-raw",
//		Prefix: "run7",
//		Client: client,
//	})
func NewS3FileLoader(params NewS3FileLoaderParams) (*S3FileLoader, error) {
	cache, err := loader.NewCache(params.CacheEntries)
	if err != nil {
		return nil, err
	}
	return &S3FileLoader{
		bucket: params.Bucket,
		prefix: strings.Trim(params.Prefix, "/"),
		client: params.Client,
		cache:  cache,
	}, nil
}

func (l *S3FileLoader) key(name string) string {
	if l.prefix == "" {
		return name
	}
	return path.Join(l.prefix, name)
}

// ReadFile retrieves the contents of the named file from the configured
// bucket. Results are cached.
func (l *S3FileLoader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := l.key(name)
	return l.cache.Get(ctx, key, func(ctx context.Context) ([]byte, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var missing *types.NoSuchKey
			if errors.As(err, &missing) {
				return nil, fmt.Errorf("%w: s3://%s/%s", loader.ErrNotFound, l.bucket, key)
			}
			return nil, fmt.Errorf("failed to get file from S3: %w", err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("failed to read file contents: %w", err)
		}
		return buf.Bytes(), nil
	})
}

// List returns the sorted names (relative to the loader prefix) of all
// objects whose name starts with prefix.
func (l *S3FileLoader) List(ctx context.Context, prefix string) ([]string, error) {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.key(prefix)),
	}

	var names []string
	for {
		listOutput, err := l.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key == nil {
				continue
			}
			name := *obj.Key
			if l.prefix != "" {
				name = strings.TrimPrefix(name, l.prefix+"/")
			}
			names = append(names, name)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	sort.Strings(names)
	return names, nil
}
