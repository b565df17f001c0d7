package grid

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/api/option"
)

// FileStore keeps objects as files in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Read implements ObjectStore
func (s *FileStore) Read(_ context.Context, name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Write implements ObjectStore. The file is replaced atomically.
func (s *FileStore) Write(_ context.Context, name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".shopsync-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}

// Close implements ObjectStore
func (s *FileStore) Close() error { return nil }

// MemoryStore keeps objects in memory
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	writes  int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Read implements ObjectStore
func (s *MemoryStore) Read(_ context.Context, name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	return append([]byte(nil), data...), ok, nil
}

// Write implements ObjectStore
func (s *MemoryStore) Write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = append([]byte(nil), data...)
	s.writes++
	return nil
}

// Writes returns the number of Write calls
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Close implements ObjectStore
func (s *MemoryStore) Close() error { return nil }

// GCSAPI is the subset of a Cloud Storage bucket used by GCSStore. Readers
// report a missing object with storage.ErrObjectNotExist.
type GCSAPI interface {
	NewReader(ctx context.Context, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, object, contentType string) io.WriteCloser
	Close() error
}

// gcsBucket adapts a storage client and bucket handle to GCSAPI
type gcsBucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func (b *gcsBucket) NewReader(ctx context.Context, object string) (io.ReadCloser, error) {
	return b.bucket.Object(object).NewReader(ctx)
}

func (b *gcsBucket) NewWriter(ctx context.Context, object, contentType string) io.WriteCloser {
	w := b.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b *gcsBucket) Close() error {
	return b.client.Close()
}

// GCSStore keeps objects in a Cloud Storage bucket under a prefix
type GCSStore struct {
	api    GCSAPI
	prefix string
}

// NewGCSStore creates a Cloud Storage store. credentialsFile may be empty to
// use application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewGCSStoreWithAPI(&gcsBucket{client: client, bucket: client.Bucket(bucket)}, prefix), nil
}

// NewGCSStoreWithAPI creates a Cloud Storage store over api
func NewGCSStoreWithAPI(api GCSAPI, prefix string) *GCSStore {
	return &GCSStore{api: api, prefix: prefix}
}

// Read implements ObjectStore
func (s *GCSStore) Read(ctx context.Context, name string) ([]byte, bool, error) {
	r, err := s.api.NewReader(ctx, joinKey(s.prefix, name))
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Write implements ObjectStore
func (s *GCSStore) Write(ctx context.Context, name string, data []byte) error {
	w := s.api.NewWriter(ctx, joinKey(s.prefix, name), contentType(name))
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Close implements ObjectStore
func (s *GCSStore) Close() error {
	return s.api.Close()
}

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps objects in an S3 bucket under a prefix
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store creates an S3 store over client
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Read implements ObjectStore
func (s *S3Store) Read(ctx context.Context, name string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinKey(s.prefix, name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Write implements ObjectStore
func (s *S3Store) Write(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(joinKey(s.prefix, name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, joinKey(s.prefix, name), err)
	}
	return nil
}

// Close implements ObjectStore
func (s *S3Store) Close() error { return nil }

func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".zst"):
		return "application/zstd"
	default:
		return "text/csv"
	}
}
