// Package capture turns an inbound request on an endpoint into a stored,
// broadcast record and the synthetic response to send back.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/livehook/internal/metrics"
	"github.com/PipeOpsHQ/livehook/internal/models"
	"github.com/PipeOpsHQ/livehook/internal/store"
)

// ErrPersist marks a capture that could not be stored. The sender must get a
// 500 instead of the synthetic response.
var ErrPersist = errors.New("persist captured request")

type Locator interface {
	Locate(ctx context.Context, ip string) *models.Location
}

type Publisher interface {
	Publish(endpointID string, v any) (int, error)
}

// Inbound is the transport-independent view of one request to an endpoint.
type Inbound struct {
	EndpointID string
	Method     string
	Path       string // after the endpoint segment
	URL        string // original path and query
	Host       string
	Header     http.Header
	Query      url.Values
	Body       []byte // as received, possibly content-encoded
	IP         string
}

type Options struct {
	Configs   store.ConfigStore
	Requests  store.RequestStore
	Locator   Locator
	Publisher Publisher
	// MaxDelay caps the effective delay; zero leaves it unbounded.
	MaxDelay time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type Pipeline struct {
	configs   store.ConfigStore
	requests  store.RequestStore
	locator   Locator
	publisher Publisher
	maxDelay  time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		configs:   opts.Configs,
		requests:  opts.Requests,
		locator:   opts.Locator,
		publisher: opts.Publisher,
		maxDelay:  opts.MaxDelay,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Process runs one capture and returns the stored record, whose Response is
// what the caller must write back. The error wraps ErrPersist when the record
// could not be stored; no other step fails the capture.
//
// Cancelling ctx cuts the delay short but the record is still enriched and
// stored.
func (p *Pipeline) Process(ctx context.Context, in Inbound) (*models.CapturedRequest, error) {
	log := p.log.With(zap.String("endpoint", in.EndpointID), zap.String("method", in.Method))

	resp := Resolve(in.EndpointID, p.loadConfig(ctx, in.EndpointID, log), OverridesFrom(in.Header, in.Query))
	// Compare in milliseconds; converting a large delay to a Duration first
	// could overflow.
	if p.maxDelay > 0 {
		if limit := int64(p.maxDelay / time.Millisecond); int64(resp.Delay) > limit {
			resp.Delay = int(limit)
		}
	}

	if resp.Delay > 0 {
		wait(ctx, time.Duration(resp.Delay)*time.Millisecond)
	}

	detached := context.WithoutCancel(ctx)

	var location *models.Location
	if p.locator != nil {
		location = p.locator.Locate(detached, in.IP)
	}

	raw := Decompress(in.Header.Get("Content-Encoding"), in.Body)
	record := &models.CapturedRequest{
		EndpointID: in.EndpointID,
		Method:     in.Method,
		Path:       in.Path,
		URL:        in.URL,
		Headers:    FilterHeaders(HeaderMap(in.Header, in.Host)),
		Query:      QueryMap(in.Query),
		Body:       DecodeBody(in.Header.Get("Content-Type"), raw),
		RawBody:    string(raw),
		IP:         in.IP,
		Location:   location,
		Response:   resp,
	}

	if err := p.requests.InsertRequest(detached, record); err != nil {
		p.metrics.ObservePersistFailure()
		log.Error("failed to store captured request", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	p.metrics.ObserveCapture(in.Method)

	subscribers := 0
	if p.publisher != nil {
		n, err := p.publisher.Publish(in.EndpointID, record)
		if err != nil {
			log.Warn("failed to broadcast captured request", zap.Int64("id", record.ID), zap.Error(err))
		}
		subscribers = n
	}

	log.Info("request captured",
		zap.Int64("id", record.ID),
		zap.String("path", in.Path),
		zap.Int("status", resp.Status),
		zap.Int("delay_ms", resp.Delay),
		zap.Int("subscribers", subscribers),
	)
	return record, nil
}

// loadConfig returns nil when the endpoint has no stored config or the
// lookup failed.
func (p *Pipeline) loadConfig(ctx context.Context, endpointID string, log *zap.Logger) *models.EndpointConfig {
	if p.configs == nil {
		return nil
	}
	cfg, err := p.configs.GetConfig(ctx, endpointID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("config lookup failed, using defaults", zap.Error(err))
		}
		return nil
	}
	return cfg
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
