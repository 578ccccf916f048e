// Package objectstore implements the content store on an S3-compatible bucket.
// Blobs are addressed by the sha256 of their bytes, so re-uploading the same
// exam yields the same hash.
package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/content"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// Config configures the bucket connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Logger    *zap.Logger
}

// Store implements content.Store on MinIO or any S3 endpoint.
type Store struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// New connects to the endpoint and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.OrNop(cfg.Logger).Named("objectstore"),
	}, nil
}

// KeyFor returns the content hash for a blob.
func KeyFor(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

func validKey(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// Get reads a blob by hash.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !validKey(hash) {
		return nil, shared.NewDomainError("content", "Get", shared.ErrValidation, "invalid content hash")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, hash, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.fetchError(err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.fetchError(err)
	}
	return body, nil
}

func (s *Store) fetchError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return shared.ErrContentNotFound
	}
	return shared.WrapError("content", "Get", shared.ErrContentFetch, "content fetch failed", err)
}

// Put stores a JSON blob under its own hash. name is kept as object metadata.
func (s *Store) Put(ctx context.Context, name string, blob []byte) (string, error) {
	if !json.Valid(blob) {
		return "", shared.NewDomainError("content", "Put", shared.ErrValidation, "content must be JSON")
	}

	key := KeyFor(blob)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"name": name},
	})
	if err != nil {
		return "", shared.WrapError("content", "Put", shared.ErrContentFetch, "content upload failed", err)
	}

	s.logger.Info("content stored", logger.ContentHash(key), zap.String("name", name), zap.Int("size", len(blob)))
	return key, nil
}

var _ content.Store = (*Store)(nil)
