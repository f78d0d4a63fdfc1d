package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const (
	// S3 accepts at most 1000 keys per DeleteObjects call
	maxDeleteKeys = 1000
	mtimeMetaKey  = "syftlink-mtime"
	// staged uploads live below this directory of the prefix until committed
	stagingDir = ".syftlink-staging"
)

type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Store keeps files as objects below a key prefix of one bucket.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

func NewS3Store(client s3API, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3StoreFromConfig builds an S3 client from the default AWS config chain,
// overridden by any static credentials or custom endpoint in cfg.
func NewS3StoreFromConfig(ctx context.Context, bucket, prefix string, cfg S3Config) (*S3Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Store(client, bucket, prefix), nil
}

func (s *S3Store) Location() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3Store) key(rel string) string {
	return s.prefix + strings.TrimPrefix(rel, "/")
}

func (s *S3Store) List(ctx context.Context) ([]FileEntry, error) {
	var entries []FileEntry

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &ProviderError{Op: "list", Location: s.Location(), Err: err}
		}

		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if rel == "" || strings.HasPrefix(rel, stagingDir+"/") {
				continue
			}
			// zero byte "folder/" keys written by consoles and other tools
			if strings.HasSuffix(rel, "/") {
				entries = append(entries, FileEntry{
					Path:        strings.TrimSuffix(rel, "/"),
					IsDirectory: true,
					ModTime:     aws.ToTime(obj.LastModified),
				})
				continue
			}
			entries = append(entries, FileEntry{
				Path:    rel,
				ModTime: aws.ToTime(obj.LastModified),
				Size:    aws.ToInt64(obj.Size),
			})
		}
	}

	return entries, nil
}

func (s *S3Store) Open(ctx context.Context, rel string) (io.ReadCloser, FileEntry, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rel)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			err = ErrNotExist
		}
		return nil, FileEntry{}, &ProviderError{Op: "open", Location: s.Location(), Path: rel, Err: err}
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}

	modTime := aws.ToTime(resp.LastModified)
	if v, ok := resp.Metadata[mtimeMetaKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			modTime = t
		}
	}

	return resp.Body, FileEntry{Path: rel, ModTime: modTime, Size: size}, nil
}

// Put uploads r. The request signer needs a seekable body, so other readers are
// spooled to a temporary file first. modTime travels as object metadata and is
// reported back by Open.
func (s *S3Store) Put(ctx context.Context, rel string, r io.Reader, size int64, modTime time.Time) error {
	return s.putObject(ctx, s.key(rel), rel, r, size, modTime)
}

// Stage uploads r below the staging directory. Commit copies it to its key
// server side.
func (s *S3Store) Stage(ctx context.Context, rel string, r io.Reader, size int64, modTime time.Time) (Staged, error) {
	staging := s.prefix + stagingDir + "/" + uuid.NewString() + "/" + strings.TrimPrefix(rel, "/")
	if err := s.putObject(ctx, staging, rel, r, size, modTime); err != nil {
		return nil, err
	}
	return &s3Staged{store: s, rel: rel, staging: staging}, nil
}

func (s *S3Store) putObject(ctx context.Context, key, rel string, r io.Reader, size int64, modTime time.Time) error {
	body, length, cleanup, err := seekableBody(r, size)
	if err != nil {
		return &ProviderError{Op: "put", Location: s.Location(), Path: rel, Err: err}
	}
	defer cleanup()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(length),
	}
	if !modTime.IsZero() {
		input.Metadata = map[string]string{mtimeMetaKey: modTime.UTC().Format(time.RFC3339Nano)}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return &ProviderError{Op: "put", Location: s.Location(), Path: rel, Err: err}
	}
	return nil
}

func (s *S3Store) deleteKey(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: []types.ObjectIdentifier{{Key: aws.String(key)}}, Quiet: aws.Bool(true)},
	})
	return err
}

type s3Staged struct {
	store   *S3Store
	rel     string
	staging string
}

func (st *s3Staged) Commit(ctx context.Context) error {
	s := st.store
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(s.key(st.rel)),
		CopySource:        aws.String(copySource(s.bucket, st.staging)),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		_ = s.deleteKey(context.WithoutCancel(ctx), st.staging)
		return &ProviderError{Op: "put", Location: s.Location(), Path: st.rel, Err: err}
	}

	// the object is published, a leftover staging key is only clutter
	if err := s.deleteKey(ctx, st.staging); err != nil {
		slog.Warn("s3 staging cleanup", "key", st.staging, "error", err)
	}
	return nil
}

func (st *s3Staged) Discard(ctx context.Context) error {
	if err := st.store.deleteKey(ctx, st.staging); err != nil {
		return &ProviderError{Op: "discard", Location: st.store.Location(), Path: st.rel, Err: err}
	}
	return nil
}

// copySource escapes each key segment for the x-amz-copy-source header.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func (s *S3Store) Remove(ctx context.Context, rel string) error {
	return s.RemoveAll(ctx, []string{rel})
}

func (s *S3Store) RemoveAll(ctx context.Context, paths []string) error {
	for start := 0; start < len(paths); start += maxDeleteKeys {
		chunk := paths[start:min(start+maxDeleteKeys, len(paths))]

		objects := make([]types.ObjectIdentifier, 0, len(chunk))
		for _, rel := range chunk {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(s.key(rel))})
		}

		resp, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return &ProviderError{Op: "delete", Location: s.Location(), Err: err}
		}

		for _, e := range resp.Errors {
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			rel := strings.TrimPrefix(aws.ToString(e.Key), s.prefix)
			return &ProviderError{
				Op:       "delete",
				Location: s.Location(),
				Path:     rel,
				Err:      fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message)),
			}
		}
	}
	return nil
}

func seekableBody(r io.Reader, size int64) (io.ReadSeeker, int64, func(), error) {
	noop := func() {}

	if rs, ok := r.(io.ReadSeeker); ok {
		if size >= 0 {
			return rs, size, noop, nil
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, noop, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, noop, err
		}
		return rs, end, noop, nil
	}

	tmp, err := os.CreateTemp("", "syftlink-upload-*")
	if err != nil {
		return nil, 0, noop, err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return nil, 0, noop, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, noop, err
	}
	return tmp, n, cleanup, nil
}

var (
	_ Store        = (*S3Store)(nil)
	_ BatchRemover = (*S3Store)(nil)
	_ Store        = (*LocalStore)(nil)
)
