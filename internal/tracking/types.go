package tracking

import (
	"errors"
	"fmt"
	"strings"
)

// ReferenceLabel is the canonical label the query is seeded under
const ReferenceLabel = "GC Number"

// ErrEmptyQuery is returned when a tracking query is blank
var ErrEmptyQuery = errors.New("tracking number cannot be empty")

// Kind identifies which variant of a Result is populated
type Kind string

const (
	KindFields         Kind = "fields"
	KindRawText        Kind = "raw_text"
	KindNotFound       Kind = "not_found"
	KindTransportError Kind = "transport_error"
)

// Result is the outcome of one tracking query. Exactly one of Fields, RawText
// or Reason is meaningful, selected by Kind.
type Result struct {
	Kind    Kind      `json:"kind"`
	Query   string    `json:"query"`
	Fields  *FieldMap `json:"fields,omitempty"`
	RawText string    `json:"raw_text,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// FieldsResult builds a structured result
func FieldsResult(query string, fields *FieldMap) *Result {
	return &Result{Kind: KindFields, Query: query, Fields: fields}
}

// RawTextResult builds a degraded, text-only result
func RawTextResult(query, text string) *Result {
	return &Result{Kind: KindRawText, Query: query, RawText: text}
}

// NotFoundResult builds a result for a query the provider has no record of
func NotFoundResult(query, reason string) *Result {
	return &Result{Kind: KindNotFound, Query: query, Reason: reason}
}

// TransportErrorResult builds a result for a failed provider round trip
func TransportErrorResult(query, reason string) *Result {
	return &Result{Kind: KindTransportError, Query: query, Reason: reason}
}

// IsSuccess reports whether the result carries tracking data
func (r *Result) IsSuccess() bool {
	return r.Kind == KindFields || r.Kind == KindRawText
}

// RawPage is the unparsed provider response for a single query
type RawPage struct {
	HTML     string
	NotFound bool
	Marker   string
}

// DefaultNotFoundMarkers are phrases the provider uses when it has no record
var DefaultNotFoundMarkers = []string{
	"No Tracking Information available",
	"No Record Found",
}

// NewRawPage wraps markup and classifies it against the default markers
func NewRawPage(html string) *RawPage {
	return NewRawPageWithMarkers(html, DefaultNotFoundMarkers)
}

// NewRawPageWithMarkers wraps markup and flags it as not-found when any of
// markers occurs in it. Matching is case-insensitive.
func NewRawPageWithMarkers(html string, markers []string) *RawPage {
	page := &RawPage{HTML: html}
	lower := strings.ToLower(html)
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(marker)) {
			page.NotFound = true
			page.Marker = marker
			break
		}
	}
	return page
}

// TransportError reports a failed network round trip with the provider.
// Callers may retry; the fetcher never does.
type TransportError struct {
	Stage      string
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP error %d", e.Stage, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
	}
	return e.Stage + ": transport failure"
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Retryable is always true for transport failures
func (e *TransportError) Retryable() bool {
	return true
}
