package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// DefaultSupabaseBucket is the bucket the web client uploads study documents to.
const DefaultSupabaseBucket = "academic-documents"

// SupabaseConfig locates the storage API of a Supabase project.
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
}

// SupabaseStore implements ObjectStore on Supabase Storage.
// The storage API is synchronous; ctx is checked before each call.
type SupabaseStore struct {
	endpoint string
	key      string
	bucket   string
	client   *storage_go.Client
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" || cfg.ServiceKey == "" {
		return nil, errors.New("supabase credentials missing: url or service role key not set")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = DefaultSupabaseBucket
	}
	s := &SupabaseStore{endpoint: base + "/storage/v1", key: cfg.ServiceKey, bucket: bucket}
	s.client = s.newClient()
	return s, nil
}

// newClient builds a service-role storage client. Upload options are written onto
// the client's shared headers, so each upload uses a client of its own.
func (s *SupabaseStore) newClient() *storage_go.Client {
	return storage_go.NewClient(s.endpoint, s.key, map[string]string{"apikey": s.key})
}

func (s *SupabaseStore) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var opts storage_go.FileOptions
	if contentType != "" {
		opts.ContentType = &contentType
	}
	if _, err := s.newClient().UploadFile(s.bucket, key, r, opts); err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, key)
	if err != nil {
		if isStorageNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("download file: %w", err)
	}
	return data, nil
}

func (s *SupabaseStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.client.CreateSignedUrl(s.bucket, key, int(expiry.Seconds()))
	if err != nil {
		if isStorageNotFound(err) {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("sign url: %w", err)
	}
	return resp.SignedURL, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func isStorageNotFound(err error) bool {
	var storageErr *storage_go.StorageError
	if errors.As(err, &storageErr) && storageErr.Status == http.StatusNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
