package store

import (
	"context"
	"errors"
	"time"

	"github.com/PipeOpsHQ/livehook/internal/models"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// ConfigStore holds per-endpoint synthetic response configuration.
type ConfigStore interface {
	GetConfig(ctx context.Context, endpointID string) (*models.EndpointConfig, error)
	// UpsertConfig creates the config from defaults when absent, otherwise
	// merges the set fields of patch. updatedAt is stamped on every call.
	UpsertConfig(ctx context.Context, endpointID string, patch models.ConfigPatch) (*models.EndpointConfig, error)
}

// RequestStore is the append-only log of captured requests.
type RequestStore interface {
	// InsertRequest assigns ID and CreatedAt on req.
	InsertRequest(ctx context.Context, req *models.CapturedRequest) error
	// ListRequests returns one page ordered newest first and the total count
	// for the endpoint. page starts at 1.
	ListRequests(ctx context.Context, endpointID string, page, limit int) ([]*models.CapturedRequest, int, error)
	GetRequest(ctx context.Context, id int64) (*models.CapturedRequest, error)
	// DeleteRequest reports false when no record had that id.
	DeleteRequest(ctx context.Context, id int64) (bool, error)
	// Cleanup removes records created before cutoff.
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

type Store interface {
	ConfigStore
	RequestStore
	Ping(ctx context.Context) error
	Close() error
}
