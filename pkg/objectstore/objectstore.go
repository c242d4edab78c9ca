// Package objectstore implements the storage.fetch_object and
// storage.list_objects activities (spec.md §4.4) over S3-compatible
// object storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// Store fetches and lists objects in a single configured bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds a Store from cfg. accessKey/secretKey are read by the caller
// from the environment variables cfg.AccessKeyEnv/SecretKeyEnv name; when
// both are non-empty they are used as static credentials, otherwise the AWS
// SDK's default credential chain applies. cfg.Endpoint, when set, points the
// client at an S3-compatible custom endpoint (e.g. MinIO).
func New(ctx context.Context, cfg *config.ObjectStoreConfig, accessKey, secretKey string) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: accessKey, SecretAccessKey: secretKey}, nil
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Internal, "objectstore.new", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// FetchObject returns the full contents of key.
func (s *Store) FetchObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error("objectstore.fetch_object", err)
	}
	defer func() { _ = out.Body.Close() }()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, taxonomy.Wrap(taxonomy.Transient, "objectstore.fetch_object", err)
	}
	return buf.Bytes(), nil
}

// ObjectInfo is one entry returned by ListObjects.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ListObjects lists every object whose key starts with prefix.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("objectstore.list_objects", err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)})
		}
	}
	return out, nil
}

func classifyS3Error(op string, err error) error {
	var nsk *s3.NoSuchKey
	if errors.As(err, &nsk) {
		return taxonomy.Wrap(taxonomy.NotFound, op, err)
	}
	return taxonomy.Wrap(taxonomy.Transient, op, err)
}
