// Package models holds the records shared by the store, the capture pipeline
// and the live stream.
package models

import (
	"maps"
	"time"
)

// Defaults synthesized for an endpoint that has no stored configuration.
const (
	DefaultStatus      = 200
	DefaultBody        = "Livehook Received"
	DefaultContentType = "text/plain"
	DefaultDelay       = 0
)

// EndpointConfig is the synthetic-response configuration of one endpoint.
type EndpointConfig struct {
	EndpointID string            `json:"endpointId"`
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Delay      int               `json:"delay"` // milliseconds
	UpdatedAt  time.Time         `json:"updatedAt,omitzero"`
}

// DefaultConfig returns the documented fallback configuration for endpointID.
func DefaultConfig(endpointID string) *EndpointConfig {
	return &EndpointConfig{
		EndpointID: endpointID,
		Status:     DefaultStatus,
		Headers:    map[string]string{"Content-Type": DefaultContentType},
		Body:       DefaultBody,
		Delay:      DefaultDelay,
	}
}

// Response copies the response-shaping fields into a snapshot.
func (c *EndpointConfig) Response() ResponseSnapshot {
	return ResponseSnapshot{
		Status:  c.Status,
		Headers: maps.Clone(c.Headers),
		Body:    c.Body,
		Delay:   c.Delay,
	}
}

// ConfigPatch is a partial configuration. Nil fields are left untouched.
type ConfigPatch struct {
	Status  *int              `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
	Delay   *int              `json:"delay,omitempty"`
}

// Apply merges the set fields of p into c.
func (p ConfigPatch) Apply(c *EndpointConfig) {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Headers != nil {
		c.Headers = maps.Clone(p.Headers)
	}
	if p.Body != nil {
		c.Body = *p.Body
	}
	if p.Delay != nil {
		c.Delay = *p.Delay
	}
}

// ResponseSnapshot is what was actually sent back to the sender of a
// captured request.
type ResponseSnapshot struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Delay   int               `json:"delay"`
}

// Location is the coarse origin of a source address.
type Location struct {
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode,omitempty"`
	Region      string `json:"region,omitempty"`
	IsLocal     bool   `json:"isLocal"`
}

// CapturedRequest is one inbound request recorded for an endpoint. Records are
// immutable once stored.
type CapturedRequest struct {
	ID         int64             `json:"id"`
	EndpointID string            `json:"endpointId"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	// Query values are either a string or a []string when the key repeats.
	Query     map[string]any   `json:"query"`
	Body      Payload          `json:"body"`
	RawBody   string           `json:"rawBody"`
	IP        string           `json:"ip"`
	Location  *Location        `json:"location"`
	Response  ResponseSnapshot `json:"response"`
	CreatedAt time.Time        `json:"createdAt"`
}

// RequestPage is one page of captured requests, newest first.
type RequestPage struct {
	Requests      []*CapturedRequest `json:"requests"`
	CurrentPage   int                `json:"currentPage"`
	TotalPages    int                `json:"totalPages"`
	TotalRequests int                `json:"totalRequests"`
}
