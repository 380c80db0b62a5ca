package capture

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PipeOpsHQ/livehook/internal/models"
)

// Override channels read from the inbound request.
const (
	StatusHeader = "X-Response-Status"
	StatusQuery  = "response-status"
	DelayHeader  = "X-Response-Delay"
)

// MaxDelayMillis is the largest delay whose time.Duration does not overflow.
const MaxDelayMillis int64 = math.MaxInt64 / int64(time.Millisecond)

// Overrides holds the raw per-request override values. A nil field means the
// channel was absent.
type Overrides struct {
	StatusHeader *string
	StatusQuery  *string
	DelayHeader  *string
}

// OverridesFrom reads the override channels. Empty values count as absent.
func OverridesFrom(h http.Header, q url.Values) Overrides {
	var o Overrides
	if v := h.Get(StatusHeader); v != "" {
		o.StatusHeader = &v
	}
	if v := q.Get(StatusQuery); v != "" {
		o.StatusQuery = &v
	}
	if v := h.Get(DelayHeader); v != "" {
		o.DelayHeader = &v
	}
	return o
}

// Resolve computes the effective response from three layers: the built-in
// default, the stored config (nil when there is none) and the per-request
// overrides. Later layers win.
//
// Status comes from the header when present, else the query parameter; a
// value that is not an integer in 200..999 leaves the status untouched.
// Delay comes from the header when present, else the config; a malformed or
// non-positive value means no delay, and huge values saturate at
// MaxDelayMillis.
func Resolve(endpointID string, stored *models.EndpointConfig, o Overrides) models.ResponseSnapshot {
	base := models.DefaultConfig(endpointID)
	if stored != nil {
		base = stored
	}

	resp := base.Response()
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	if !ValidStatus(resp.Status) {
		resp.Status = models.DefaultStatus
	}

	switch {
	case o.StatusHeader != nil:
		if status, ok := parseStatus(*o.StatusHeader); ok {
			resp.Status = status
		}
	case o.StatusQuery != nil:
		if status, ok := parseStatus(*o.StatusQuery); ok {
			resp.Status = status
		}
	}

	if o.DelayHeader != nil {
		resp.Delay = parseDelay(*o.DelayHeader)
	}
	resp.Delay = clampDelay(int64(resp.Delay))
	return resp
}

// ValidStatus reports whether status can be sent as a final response.
func ValidStatus(status int) bool {
	return status >= 200 && status <= 999
}

func parseStatus(s string) (int, bool) {
	status, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !ValidStatus(status) {
		return 0, false
	}
	return status, true
}

func parseDelay(s string) int {
	delay, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// ParseInt saturates out-of-range input at the int64 bounds.
		if errors.Is(err, strconv.ErrRange) && delay > 0 {
			return clampDelay(delay)
		}
		return 0
	}
	return clampDelay(delay)
}

// clampDelay bounds a delay in milliseconds to 0..MaxDelayMillis and to the
// platform int.
func clampDelay(ms int64) int {
	if ms <= 0 {
		return 0
	}
	ms = min(ms, MaxDelayMillis, int64(math.MaxInt))
	return int(ms)
}
