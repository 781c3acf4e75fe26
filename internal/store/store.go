package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a bundle is not found.
var ErrNotFound = errors.New("bundle not found")

// Bundle is a set of module sources delivered together, keyed by resource
// name.
type Bundle struct {
	Name      string            `json:"name"`
	Modules   map[string]string `json:"modules"`
	CreatedAt time.Time         `json:"created_at"`
}

// BundleSummary describes a stored bundle without its sources.
type BundleSummary struct {
	Name        string    `json:"name"`
	Modules     int       `json:"modules"`
	RawBytes    int64     `json:"raw_bytes"`
	StoredBytes int64     `json:"stored_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// FetchRecord is one logged fetch attempt.
type FetchRecord struct {
	ID         string    `json:"id"`
	Module     string    `json:"module"`
	URL        string    `json:"url"`
	Mode       string    `json:"mode"`
	Status     int       `json:"status"`
	Bytes      int       `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FetchStats holds aggregate fetch statistics.
type FetchStats struct {
	Total         int            `json:"total"`
	Failures      int            `json:"failures"`
	CountByMode   map[string]int `json:"count_by_mode"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	TotalBytes    int64          `json:"total_bytes"`
}

// Store defines the persistence operations for preload bundles and the
// fetch log.
type Store interface {
	PutBundle(ctx context.Context, b *Bundle) error
	GetBundle(ctx context.Context, name string) (*Bundle, error)
	ListBundles(ctx context.Context) ([]BundleSummary, error)
	DeleteBundle(ctx context.Context, name string) error
	InsertFetch(ctx context.Context, r *FetchRecord) error
	ListFetches(ctx context.Context, limit, offset int) ([]*FetchRecord, int, error)
	GetFetchStats(ctx context.Context) (*FetchStats, error)
	Close() error
}
