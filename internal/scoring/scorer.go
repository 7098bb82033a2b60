package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

// Tags produced by the scorer. HighIntent and UrgentSeller participate
// in the enrichment auto-trigger rule.
const (
	TagHighIntent    = "highIntent"
	TagUrgentSeller  = "urgentSeller"
	TagVacant        = "vacant"
	TagAbsenteeOwner = "absenteeOwner"
	TagDistressed    = "distressed"
	TagUnderMarket   = "underMarket"
)

// Condition buckets
const (
	ConditionPoor = "poor"
	ConditionFair = "fair"
	ConditionGood = "good"
)

// Annotation is the enrichment output for one record.
type Annotation struct {
	Score     int
	Tags      []string
	Condition string
}

// propertyFacts are the structural fields the scorer reads from a
// record's payload.
type propertyFacts struct {
	Price         float64 `json:"price"`
	Sqft          float64 `json:"sqft"`
	Beds          int     `json:"beds"`
	Baths         float64 `json:"baths"`
	YearBuilt     int     `json:"year_built"`
	Description   string  `json:"description"`
	Vacant        bool    `json:"vacant"`
	AbsenteeOwner bool    `json:"absentee_owner"`
}

var urgentKeywords = []string{"must sell", "motivated", "urgent", "cash only", "as-is", "make offer"}
var distressKeywords = []string{"foreclosure", "probate", "estate sale", "divorce", "back taxes"}
var poorKeywords = []string{"fixer", "needs work", "tlc", "handyman", "as-is"}
var goodKeywords = []string{"renovated", "updated", "remodeled", "turnkey"}

// PropertyScorer derives a score/tag/condition annotation from a
// record's structural fields. It is pure: the same record always yields
// the same annotation.
type PropertyScorer struct{}

// NewPropertyScorer creates a new PropertyScorer instance
func NewPropertyScorer() *PropertyScorer {
	return &PropertyScorer{}
}

// Annotate computes the enrichment annotation for rec.
func (s *PropertyScorer) Annotate(rec *domain.ScrapedRecord) (Annotation, error) {
	var facts propertyFacts
	if rec.Payload != "" {
		if err := json.Unmarshal([]byte(rec.Payload), &facts); err != nil {
			return Annotation{}, fmt.Errorf("failed to parse record payload: %w", err)
		}
	}

	desc := strings.ToLower(facts.Description)
	score := 50
	var tags []string

	if facts.Vacant {
		score += 10
		tags = append(tags, TagVacant)
	}

	if facts.AbsenteeOwner {
		score += 5
		tags = append(tags, TagAbsenteeOwner)
	}

	if containsAny(desc, urgentKeywords) {
		score += 15
		tags = append(tags, TagUrgentSeller)
	}

	if containsAny(desc, distressKeywords) {
		score += 10
		tags = append(tags, TagDistressed)
	}

	if facts.Price > 0 && facts.Sqft > 0 {
		ppsf := facts.Price / facts.Sqft
		switch {
		case ppsf < 90:
			score += 10
			tags = append(tags, TagUnderMarket)
		case ppsf > 250:
			score -= 10
		}
	}

	condition := ConditionFair
	switch {
	case containsAny(desc, goodKeywords):
		condition = ConditionGood
	case containsAny(desc, poorKeywords) || (facts.YearBuilt > 0 && facts.YearBuilt < 1950):
		condition = ConditionPoor
		score += 5
	}

	// Vacant plus a seller signal is the strongest intent marker.
	if facts.Vacant && containsAny(desc, append(urgentKeywords, distressKeywords...)) {
		tags = append(tags, TagHighIntent)
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Annotation{
		Score:     score,
		Tags:      tags,
		Condition: condition,
	}, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
