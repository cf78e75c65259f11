package media

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
)

// Storage is durable object storage for processed media.
type Storage interface {
	// Put writes data under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCS uses application default credentials. baseURL defaults to the public
// storage.googleapis.com endpoint for the bucket.
func NewGCS(ctx context.Context, bucket, baseURL string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("media: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("media: gcs client: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (g *GCS) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("media: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("media: finalize %s: %w", key, err)
	}
	return g.baseURL + "/" + key, nil
}

func (g *GCS) Close() error { return g.client.Close() }

// MemoryStorage keeps objects in memory. Used by tests and local runs.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
	// Fail makes every Put return an error.
	Fail bool
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{objects: map[string][]byte{}, baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *MemoryStorage) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", fmt.Errorf("media: memory storage unavailable")
	}
	m.objects[key] = append([]byte(nil), data...)
	return m.baseURL + "/" + key, nil
}

func (m *MemoryStorage) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}
