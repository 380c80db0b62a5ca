// Package geo resolves the coarse origin of a source address.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PipeOpsHQ/livehook/internal/config"
	"github.com/PipeOpsHQ/livehook/internal/metrics"
	"github.com/PipeOpsHQ/livehook/internal/models"
)

const lookupFields = "status,message,country,countryCode,regionName,city"

// LocalLocation is reported for loopback and private addresses without any
// outbound lookup.
func LocalLocation() *models.Location {
	return &models.Location{City: "Local", Country: "Network", IsLocal: true}
}

// IsLocal reports whether ip is empty, loopback or in 10.0.0.0/8 or
// 192.168.0.0/16. Other private ranges are looked up remotely.
func IsLocal(ip string) bool {
	return ip == "" ||
		ip == "::1" ||
		ip == "127.0.0.1" ||
		strings.HasPrefix(ip, "10.") ||
		strings.HasPrefix(ip, "192.168.")
}

// Locator enriches addresses. It never returns an error: anything that goes
// wrong during a remote lookup yields a nil location.
type Locator struct {
	client  *http.Client
	baseURL string
	enabled bool
	limiter *rate.Limiter
	cache   Cache
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewLocator(cfg config.GeoConfig, cache Cache, log *zap.Logger, m *metrics.Metrics) *Locator {
	l := &Locator{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		enabled: cfg.Enabled,
		cache:   cache,
		log:     log,
		metrics: m,
	}
	if cfg.RequestsPerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return l
}

func (l *Locator) Locate(ctx context.Context, ip string) *models.Location {
	if IsLocal(ip) {
		l.metrics.ObserveGeo("local")
		return LocalLocation()
	}
	if !l.enabled {
		return nil
	}
	if l.cache != nil {
		if loc, ok := l.cache.Get(ctx, ip); ok {
			l.metrics.ObserveGeo("cache_hit")
			return loc
		}
	}
	if l.limiter != nil && !l.limiter.Allow() {
		l.metrics.ObserveGeo("limited")
		l.log.Debug("geo lookup skipped, rate limited", zap.String("ip", ip))
		return nil
	}

	loc, err := l.lookup(ctx, ip)
	if err != nil {
		l.metrics.ObserveGeo("failed")
		l.log.Warn("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return nil
	}
	l.metrics.ObserveGeo("resolved")
	if l.cache != nil {
		l.cache.Set(ctx, ip, loc)
	}
	return loc
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName"`
	City        string `json:"city"`
}

func (l *Locator) lookup(ctx context.Context, ip string) (*models.Location, error) {
	endpoint := fmt.Sprintf("%s/json/%s?fields=%s", l.baseURL, url.PathEscape(ip), lookupFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("lookup %s: %s", body.Status, body.Message)
	}
	return &models.Location{
		City:        body.City,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
	}, nil
}
