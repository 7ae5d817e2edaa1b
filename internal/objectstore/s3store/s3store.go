// Package s3store implements objectstore.Store on Amazon S3 or any
// S3-compatible endpoint (MinIO, LocalStack).
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"disneyetl/internal/objectstore"
)

// deleteBatch is the S3 DeleteObjects limit.
const deleteBatch = 1000

// Config selects the bucket and endpoint.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string // optional, for S3-compatible APIs
	ForcePathStyle bool   // set for S3-compatible APIs
}

// API is the subset of *s3.Client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	s3.ListObjectsV2APIClient
}

// Store is one S3 bucket.
type Store struct {
	api    API
	bucket string
	log    zerolog.Logger
}

var _ objectstore.Store = (*Store)(nil)

// New loads the default AWS credential chain and returns a Store.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3store: bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewWithAPI(client, cfg.Bucket, logger), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, bucket string, logger zerolog.Logger) *Store {
	return &Store{api: api, bucket: bucket, log: logger.With().Str("bucket", bucket).Logger()}
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) Put(ctx context.Context, key, localPath string) error {
	if err := objectstore.CheckLocalFile(localPath); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("s3store: open %s: %w", localPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3store: stat %s: %w", localPath, err)
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("s3store: could not upload %s to s3://%s/%s: %w", localPath, s.bucket, key, err)
	}
	s.log.Debug().Str("key", key).Int64("bytes", fi.Size()).Msg("object uploaded")
	return nil
}

func (s *Store) Get(ctx context.Context, key, localPath string) (err error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return &objectstore.NotFoundError{Bucket: s.bucket, Key: key}
		}
		return fmt.Errorf("s3store: get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("s3store: mkdir for %s: %w", localPath, err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("s3store: create %s: %w", localPath, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("s3store: close %s: %w", localPath, cerr)
		}
		if err != nil {
			_ = os.Remove(localPath)
		}
	}()

	n, err := io.Copy(f, out.Body)
	if err != nil {
		return fmt.Errorf("s3store: download s3://%s/%s: %w", s.bucket, key, err)
	}
	s.log.Debug().Str("key", key).Int64("bytes", n).Msg("object downloaded")
	return nil
}

func (s *Store) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3store: delete objects from %s: %w", s.bucket, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3store: delete %s: %s (%d failed)", aws.ToString(e.Key), aws.ToString(e.Message), len(out.Errors))
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context, ext string) ([]objectstore.Object, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)})

	var out []objectstore.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3store: list %s: %w", s.bucket, err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if !objectstore.MatchExt(key, ext) {
				continue
			}
			out = append(out, objectstore.NewObject(key, aws.ToTime(o.LastModified), aws.ToInt64(o.Size)))
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf) || strings.Contains(err.Error(), "NotFound")
}

func contentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".json":
		return "application/json"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
