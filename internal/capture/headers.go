package capture

import (
	"net/http"
	"strings"
)

// Infrastructure headers added by proxies and platforms, not by the sender.
var (
	ignoredHeaderPrefixes = []string{"x-vercel-", "x-forwarded-", "x-real-"}
	ignoredHeaders        = map[string]struct{}{
		"forwarded":          {},
		"via":                {},
		"connect-install-id": {},
		"purpose":            {},
	}
)

// IsIgnoredHeader reports whether name is dropped from captured records.
// Matching is case-insensitive.
func IsIgnoredHeader(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := ignoredHeaders[lower]; ok {
		return true
	}
	for _, prefix := range ignoredHeaderPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// FilterHeaders returns a copy of headers without ignored entries. Kept keys
// are not re-cased.
func FilterHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsIgnoredHeader(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// HeaderMap flattens h to one value per name, the last one sent. Host is not
// part of http.Header on the server side, so it is passed separately.
func HeaderMap(h http.Header, host string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		out[k] = vals[len(vals)-1]
	}
	if host != "" {
		out["Host"] = host
	}
	return out
}
