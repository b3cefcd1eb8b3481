package storage

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizererrors"
)

// S3API is the subset of the S3 client the store needs.
type S3API interface {
	s3.ListObjectsV2APIClient
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Store struct {
	client   S3API
	uploader *manager.Uploader
}

func NewS3Store(client S3API) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// NewS3StoreFromEnvironment builds a store from the default AWS credential chain. With anonymous set, requests
// are unsigned, which is what public buckets require.
func NewS3StoreFromEnvironment(ctx context.Context, region string, anonymous bool) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if anonymous {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error loading AWS configuration")
	}
	return NewS3Store(s3.NewFromConfig(cfg)), nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	bucket, key, err := ParseS3URI(prefix)
	if err != nil {
		return nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(key),
		Delimiter: aws.String("/"),
	})
	names := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNoSuchBucket(err) {
				return nil, errors.WithStack(&sizererrors.ErrNotFound{Type: "bucket", Value: bucket, Message: err.Error()})
			}
			return nil, errors.WithStack(&sizererrors.ErrListing{Prefix: prefix, Err: err})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), key)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(path)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) || isNoSuchBucket(err) {
			return nil, errors.WithStack(&sizererrors.ErrNotFound{Type: "object", Value: path, Message: err.Error()})
		}
		return nil, errors.Wrapf(err, "error reading %s", path)
	}
	return out.Body, nil
}

// Create streams everything written into a (multipart, if large) upload. S3 only exposes the object once the
// upload completes, so a failed or abandoned chunk never shows up in a listing.
func (s *S3Store) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	bucket, key, err := ParseS3URI(path)
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		if err != nil {
			err = errors.Wrapf(err, "error uploading %s", path)
		}
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return &uploadWriter{pw: pw, done: done}, nil
}

type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *uploadWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// Abort fails the upload so that no object is created.
func (w *uploadWriter) Abort(cause error) error {
	if cause == nil {
		cause = errors.New("upload aborted")
	}
	_ = w.pw.CloseWithError(cause)
	<-w.done
	return nil
}

func isNoSuchBucket(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}
