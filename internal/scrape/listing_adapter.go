package scrape

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// ListingAdapter scrapes for-sale-by-owner listing pages. One page per
// zip code; each listing card becomes one ScrapedItem.
type ListingAdapter struct {
	source  string
	baseURL string
	client  *resty.Client
}

// NewListingAdapter creates a new ListingAdapter instance
func NewListingAdapter(source, baseURL string, timeout time.Duration) *ListingAdapter {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; convexa-scraper/1.0)")

	return &ListingAdapter{
		source:  source,
		baseURL: baseURL,
		client:  client,
	}
}

// Source returns the scrape source this adapter serves.
func (a *ListingAdapter) Source() string {
	return a.source
}

// Fetch downloads the listing page for zip and parses every listing
// card. Malformed cards are reported in Result.Errors without failing
// the run.
func (a *ListingAdapter) Fetch(ctx context.Context, zip string, filters map[string]any) (*Result, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("zip", zip).
		Get(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing page returned status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	result := &Result{
		Meta: map[string]any{
			"source":    a.source,
			"zip":       zip,
			"fetchedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}

	doc.Find(".listing-card").Each(func(i int, sel *goquery.Selection) {
		item, err := parseListingCard(sel, zip)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("card %d: %v", i, err))
			return
		}
		if !matchesFilters(item, filters) {
			return
		}
		result.Items = append(result.Items, item)
	})

	return result, nil
}

func parseListingCard(sel *goquery.Selection, zip string) (ScrapedItem, error) {
	address := strings.TrimSpace(sel.Find(".address").Text())
	if address == "" {
		return ScrapedItem{}, fmt.Errorf("missing address")
	}

	payload := map[string]any{
		"description": strings.TrimSpace(sel.Find(".description").Text()),
	}

	if price, ok := parseMoney(sel.Find(".price").Text()); ok {
		payload["price"] = price
	}
	if sqft, ok := parseNumber(sel.Find(".sqft").Text()); ok {
		payload["sqft"] = sqft
	}
	if beds, ok := parseNumber(sel.Find(".beds").Text()); ok {
		payload["beds"] = int(beds)
	}
	if year, ok := parseNumber(sel.AttrOr("data-year-built", "")); ok {
		payload["year_built"] = int(year)
	}
	if sel.AttrOr("data-vacant", "") == "true" {
		payload["vacant"] = true
	}

	return ScrapedItem{Address: address, Zip: zip, Payload: payload}, nil
}

func matchesFilters(item ScrapedItem, filters map[string]any) bool {
	if filters == nil {
		return true
	}

	if raw, ok := filters["minPrice"]; ok {
		min, okMin := toFloat(raw)
		price, okPrice := toFloat(item.Payload["price"])
		if okMin && okPrice && price < min {
			return false
		}
	}
	if raw, ok := filters["maxPrice"]; ok {
		max, okMax := toFloat(raw)
		price, okPrice := toFloat(item.Payload["price"])
		if okMax && okPrice && price > max {
			return false
		}
	}
	return true
}

func parseMoney(s string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	return parseNumber(cleaned)
}

func parseNumber(s string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return 0, false
	}

	// Drop trailing units such as "sqft" or "beds".
	if idx := strings.IndexFunc(cleaned, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}); idx > 0 {
		cleaned = cleaned[:idx]
	}

	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseNumber(n)
	default:
		return 0, false
	}
}
