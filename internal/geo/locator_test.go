package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PipeOpsHQ/livehook/internal/config"
	"github.com/PipeOpsHQ/livehook/internal/models"
)

func testConfig(baseURL string) config.GeoConfig {
	return config.GeoConfig{
		Enabled:           true,
		BaseURL:           baseURL,
		Timeout:           time.Second,
		RequestsPerMinute: 0,
	}
}

func TestIsLocal(t *testing.T) {
	for _, ip := range []string{"", "::1", "127.0.0.1", "10.0.0.5", "192.168.1.20"} {
		assert.True(t, IsLocal(ip), ip)
	}
	for _, ip := range []string{"8.8.8.8", "172.16.0.1", "100.10.1.1", "2001:db8::1"} {
		assert.False(t, IsLocal(ip), ip)
	}
}

func TestLocator_LocalNeverCallsOut(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	l := NewLocator(testConfig(srv.URL), nil, zaptest.NewLogger(t), nil)
	loc := l.Locate(context.Background(), "192.168.1.20")

	assert.Equal(t, &models.Location{City: "Local", Country: "Network", IsLocal: true}, loc)
	assert.Zero(t, calls.Load())
}

func TestLocator_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/8.8.8.8", r.URL.Path)
		assert.Equal(t, lookupFields, r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","country":"United States","countryCode":"US","regionName":"Virginia","city":"Ashburn"}`))
	}))
	defer srv.Close()

	l := NewLocator(testConfig(srv.URL), nil, zaptest.NewLogger(t), nil)
	loc := l.Locate(context.Background(), "8.8.8.8")

	require.NotNil(t, loc)
	assert.Equal(t, models.Location{City: "Ashburn", Country: "United States", CountryCode: "US", Region: "Virginia"}, *loc)
}

func TestLocator_FailuresYieldNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"fail status", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		}},
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := testConfig(srv.URL)
			cfg.Timeout = 100 * time.Millisecond
			l := NewLocator(cfg, nil, zaptest.NewLogger(t), nil)
			assert.Nil(t, l.Locate(context.Background(), "203.0.113.9"))
		})
	}
}

func TestLocator_UnreachableYieldsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	l := NewLocator(testConfig(url), nil, zaptest.NewLogger(t), nil)
	assert.Nil(t, l.Locate(context.Background(), "203.0.113.9"))
}

func TestLocator_DisabledSkipsRemote(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	l := NewLocator(cfg, nil, zaptest.NewLogger(t), nil)

	assert.Nil(t, l.Locate(context.Background(), "8.8.8.8"))
	assert.True(t, l.Locate(context.Background(), "127.0.0.1").IsLocal)
}

func TestLocator_CachesSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status":"success","country":"France","countryCode":"FR","regionName":"IDF","city":"Paris"}`))
	}))
	defer srv.Close()

	l := NewLocator(testConfig(srv.URL), NewMemoryCache(time.Minute), zaptest.NewLogger(t), nil)
	first := l.Locate(context.Background(), "203.0.113.9")
	second := l.Locate(context.Background(), "203.0.113.9")

	require.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocator_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"status":"success","country":"France","city":"Paris"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RequestsPerMinute = 1
	l := NewLocator(cfg, nil, zaptest.NewLogger(t), nil)

	assert.NotNil(t, l.Locate(context.Background(), "203.0.113.9"))
	assert.Nil(t, l.Locate(context.Background(), "203.0.113.10"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	c.Set(context.Background(), "1.2.3.4", &models.Location{City: "X"})

	loc, ok := c.Get(context.Background(), "1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, "X", loc.City)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get(context.Background(), "1.2.3.4")
	assert.False(t, ok)
}

func TestRedisCache_UnavailableIsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := NewRedisCache(rdb, time.Minute, zaptest.NewLogger(t))
	c.Set(context.Background(), "1.2.3.4", &models.Location{City: "X"})
	_, ok := c.Get(context.Background(), "1.2.3.4")
	assert.False(t, ok)
}
