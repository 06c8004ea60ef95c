package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriticalityOrdinal(t *testing.T) {
	assert.Equal(t, 1, CriticalityBaixa.Ordinal())
	assert.Equal(t, 2, CriticalityMedia.Ordinal())
	assert.Equal(t, 3, CriticalityAlta.Ordinal())
	assert.Equal(t, 4, CriticalityCritica.Ordinal())
	assert.Equal(t, 0, Criticality("URGENTE").Ordinal())
	assert.False(t, Criticality("").Valid())
}

func TestParseCriticality(t *testing.T) {
	c, err := ParseCriticality(" critica ")
	require.NoError(t, err)
	assert.Equal(t, CriticalityCritica, c)

	_, err = ParseCriticality("high")
	assert.ErrorIs(t, err, ErrInvalidCriticality)
}

func TestRetrievalRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       RetrievalRequest
		wantErr   error
		wantMax   int
		wantFocus Focus
	}{
		{
			name:      "defaults",
			req:       RetrievalRequest{Question: "pix"},
			wantMax:   DefaultMaxSources,
			wantFocus: FocusBusiness,
		},
		{
			name:      "explicit values",
			req:       RetrievalRequest{Question: "pix", Focus: "technical", MaxSources: 10},
			wantMax:   10,
			wantFocus: FocusTechnical,
		},
		{
			name:    "blank question",
			req:     RetrievalRequest{Question: "  \t"},
			wantErr: ErrEmptyQuestion,
		},
		{
			name:    "max sources too large",
			req:     RetrievalRequest{Question: "pix", MaxSources: 11},
			wantErr: ErrInvalidMaxSources,
		},
		{
			name:    "negative max sources",
			req:     RetrievalRequest{Question: "pix", MaxSources: -1},
			wantErr: ErrInvalidMaxSources,
		},
		{
			name:    "unknown focus",
			req:     RetrievalRequest{Question: "pix", Focus: "LEGAL"},
			wantErr: ErrInvalidFocus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsCallerError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMax, req.MaxSources)
			assert.Equal(t, tt.wantFocus, req.Focus)
		})
	}
}

func TestRetrievalResponseValidate(t *testing.T) {
	valid := RetrievalResponse{
		Sources: []Source{{RuleID: "a"}, {RuleID: "b"}},
		RuleScores: []RuleScoreDetail{
			{RuleID: "a", FinalRankPosition: 1, SemanticScore: 0.5},
			{RuleID: "b", FinalRankPosition: 2},
		},
		Disclaimer: "advisory",
	}
	assert.NoError(t, valid.Validate())

	gap := valid
	gap.RuleScores = []RuleScoreDetail{
		{RuleID: "a", FinalRankPosition: 1},
		{RuleID: "b", FinalRankPosition: 3},
	}
	assert.ErrorIs(t, gap.Validate(), ErrInvalidRank)

	short := valid
	short.RuleScores = valid.RuleScores[:1]
	assert.ErrorIs(t, short.Validate(), ErrScoreSourceMismatch)

	noDisclaimer := valid
	noDisclaimer.Disclaimer = ""
	assert.ErrorIs(t, noDisclaimer.Validate(), ErrMissingDisclaimer)
}

func TestEmbeddingText(t *testing.T) {
	r := BusinessRule{Name: "REGRA_PIX", Description: "Valida chave PIX"}
	assert.Equal(t, "REGRA_PIX\nValida chave PIX", r.EmbeddingText())
}
