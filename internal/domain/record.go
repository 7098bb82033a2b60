package domain

import (
	"strings"
	"time"
)

// Record source allow-list. Matchmaking filters may only name one of
// these; the provenance marker "auto" is never a record source.
var AllowedScrapeSources = []string{
	"zillow_fsbo",
	"auction_com",
	"probate",
	"tax_delinquent",
	"code_violation",
}

// ProvenanceAuto marks a matchmaking job created by the enrichment
// auto-trigger rather than by an operator.
const ProvenanceAuto = "auto"

// IsAllowedScrapeSource reports whether src may be used as a record
// source filter.
func IsAllowedScrapeSource(src string) bool {
	for _, s := range AllowedScrapeSources {
		if s == src {
			return true
		}
	}
	return false
}

// ScrapedRecord is a property record produced by ingestion. The dedup key
// is (source, zip, normalized address). Enrichment mutates it in place
// exactly once.
type ScrapedRecord struct {
	ID          string     `db:"record_id"`
	Source      string     `db:"source"`
	Zip         string     `db:"zip"`
	Address     string     `db:"address"`
	AddressNorm string     `db:"address_norm"`
	Payload     string     `db:"payload"`
	Score       *int       `db:"score"`
	Tags        []string   `db:"-"`
	Condition   string     `db:"condition"`
	AutoMatched bool       `db:"auto_matched"`
	EnrichedAt  *time.Time `db:"enriched_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Enriched reports whether the record already carries enrichment output.
// Re-running enrichment on an enriched record must be a no-op.
func (r *ScrapedRecord) Enriched() bool {
	return r.Score != nil || len(r.Tags) > 0
}

// HasTag reports whether the record carries the given enrichment tag.
func (r *ScrapedRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeAddress collapses an address into the canonical form used in
// the dedup key: lowercase, single-spaced, common suffixes abbreviated.
func NormalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	s = strings.Join(strings.Fields(s), " ")
	replacer := strings.NewReplacer(
		" street", " st",
		" avenue", " ave",
		" boulevard", " blvd",
		" drive", " dr",
		" court", " ct",
		" lane", " ln",
		" road", " rd",
		" place", " pl",
		" terrace", " ter",
		".", "",
		",", "",
	)
	return replacer.Replace(s)
}
