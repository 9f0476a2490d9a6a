package retriever

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose_ComparePair(t *testing.T) {
	e := NewQueryExpander(4)
	variants := e.Decompose("Compare A and B")

	require.GreaterOrEqual(t, len(variants), 3)
	assert.Equal(t, "Compare A and B", variants[0])
	assert.Contains(t, variants, "A characteristics")
	assert.Contains(t, variants, "B characteristics")

	both := false
	for _, v := range variants {
		if strings.Contains(v, "A") && strings.Contains(v, "B") && v != variants[0] {
			both = true
		}
	}
	assert.True(t, both, "expected a variant mentioning both sides: %v", variants)
}

func TestDecompose_Versus(t *testing.T) {
	e := NewQueryExpander(4)
	variants := e.Decompose("marketing budget vs sales budget")
	assert.Contains(t, variants, "marketing budget characteristics")
	assert.Contains(t, variants, "sales budget characteristics")
}

func TestDecompose_ListSharesHeadNoun(t *testing.T) {
	e := NewQueryExpander(4)
	variants := e.Decompose("Summarize Q1, Q2, and Q3 reports")
	assert.Equal(t, []string{
		"Summarize Q1, Q2, and Q3 reports",
		"Q1 reports",
		"Q2 reports",
		"Q3 reports",
	}, variants)
}

func TestDecompose_AllX(t *testing.T) {
	e := NewQueryExpander(4)
	variants := e.Decompose("Show all vendor contracts")
	assert.Contains(t, variants, "list of vendor contracts")
	assert.Contains(t, variants, "vendor contracts categories")
}

func TestDecompose_CappedAndOriginalFirst(t *testing.T) {
	e := NewQueryExpander(2)
	variants := e.Decompose("Compare A and B")
	assert.Len(t, variants, 2)
	assert.Equal(t, "Compare A and B", variants[0])

	single := NewQueryExpander(4).Decompose("What is the Q1 total?")
	assert.Equal(t, []string{"What is the Q1 total?"}, single)
}

func TestExpand_KeepsOriginalAndAddsSynonyms(t *testing.T) {
	e := NewQueryExpander(4)
	expanded := e.Expand("Q1 revenue")

	assert.True(t, strings.HasPrefix(expanded, "Q1 revenue"))
	assert.Contains(t, expanded, "sales")
	assert.Contains(t, expanded, "first quarter")

	assert.Equal(t, "holiday schedule", e.Expand("holiday schedule"))
}

func TestExpand_CustomSynonyms(t *testing.T) {
	e := NewQueryExpander(4).WithSynonyms(map[string][]string{"OKR": {"key results"}})
	assert.Contains(t, e.Expand("team okr status"), "key results")
}
