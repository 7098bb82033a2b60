package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/domain"
)

func record(payload string) *domain.ScrapedRecord {
	return &domain.ScrapedRecord{
		ID:      "rec-1",
		Source:  "zillow_fsbo",
		Zip:     "08081",
		Payload: payload,
	}
}

func TestPropertyScorer_Deterministic(t *testing.T) {
	scorer := NewPropertyScorer()
	rec := record(`{"price":150000,"sqft":2000,"description":"must sell, vacant estate sale","vacant":true}`)

	first, err := scorer.Annotate(rec)
	require.NoError(t, err)

	second, err := scorer.Annotate(rec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPropertyScorer_Annotate(t *testing.T) {
	scorer := NewPropertyScorer()

	tests := []struct {
		name      string
		payload   string
		wantScore int
		wantTags  []string
		wantCond  string
	}{
		{
			name:      "empty payload gets base score",
			payload:   "",
			wantScore: 50,
			wantTags:  nil,
			wantCond:  ConditionFair,
		},
		{
			name:      "vacant urgent under-market lead",
			payload:   `{"price":150000,"sqft":2000,"description":"must sell","vacant":true}`,
			wantScore: 85,
			wantTags:  []string{TagVacant, TagUrgentSeller, TagUnderMarket, TagHighIntent},
			wantCond:  ConditionFair,
		},
		{
			name:      "renovated listing",
			payload:   `{"price":300000,"sqft":2000,"description":"fully renovated"}`,
			wantScore: 50,
			wantTags:  nil,
			wantCond:  ConditionGood,
		},
		{
			name:      "old fixer",
			payload:   `{"price":100000,"sqft":1500,"year_built":1930,"description":"needs work"}`,
			wantScore: 65,
			wantTags:  []string{TagUnderMarket},
			wantCond:  ConditionPoor,
		},
		{
			name:      "expensive listing loses points",
			payload:   `{"price":900000,"sqft":2000,"description":"luxury home"}`,
			wantScore: 40,
			wantTags:  nil,
			wantCond:  ConditionFair,
		},
		{
			name:      "absentee distressed",
			payload:   `{"description":"probate sale","absentee_owner":true}`,
			wantScore: 65,
			wantTags:  []string{TagAbsenteeOwner, TagDistressed},
			wantCond:  ConditionFair,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ann, err := scorer.Annotate(record(tt.payload))
			require.NoError(t, err)

			assert.Equal(t, tt.wantScore, ann.Score)
			assert.Equal(t, tt.wantTags, ann.Tags)
			assert.Equal(t, tt.wantCond, ann.Condition)
		})
	}
}

func TestPropertyScorer_MalformedPayload(t *testing.T) {
	scorer := NewPropertyScorer()

	_, err := scorer.Annotate(record(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse record payload")
}

func TestPropertyScorer_ScoreClamped(t *testing.T) {
	scorer := NewPropertyScorer()

	ann, err := scorer.Annotate(record(
		`{"price":100000,"sqft":2000,"year_built":1920,"description":"must sell probate fixer","vacant":true,"absentee_owner":true}`,
	))
	require.NoError(t, err)

	assert.LessOrEqual(t, ann.Score, 100)
	assert.GreaterOrEqual(t, ann.Score, 0)
}
