package scrape

import (
	"context"
	"strings"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// ScrapedItem is one raw property listing returned by an adapter before
// it is persisted.
type ScrapedItem struct {
	Address string
	Zip     string
	Payload map[string]any
}

// Result is the outcome of one adapter run. Errors holds per-item
// failures that did not abort the run; Meta carries adapter-specific
// run information for the job result.
type Result struct {
	Items  []ScrapedItem
	Errors []string
	Meta   map[string]any
}

// Adapter fetches raw property listings for a source and zip code.
// Implementations must be safe for concurrent use.
type Adapter interface {
	Fetch(ctx context.Context, zip string, filters map[string]any) (*Result, error)
	Source() string
}

// Registry maps source names to their adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a new Registry instance
func NewRegistry(adapters ...Adapter) *Registry {
	reg := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		reg.adapters[a.Source()] = a
	}
	return reg
}

// Get returns the adapter registered for source, or false when the
// source has no adapter.
func (r *Registry) Get(source string) (Adapter, bool) {
	a, ok := r.adapters[source]
	return a, ok
}

var upstreamPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"no such host",
	"eof",
}

var validationPatterns = []string{
	"invalid zip",
	"invalid source",
	"invalid filter",
	"missing required",
}

// ClassifyError maps an adapter error onto a failure class. Upstream
// and scrape errors are retried by the ingestion worker; validation
// errors are not.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())
	for _, p := range validationPatterns {
		if strings.Contains(msg, p) {
			return domain.ErrClassValidation
		}
	}
	for _, p := range upstreamPatterns {
		if strings.Contains(msg, p) {
			return domain.ErrClassUpstream
		}
	}
	return domain.ErrClassScrape
}
