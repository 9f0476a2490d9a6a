package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/analyzer"
)

func TestBM25Scoring(t *testing.T) {
	tokenizer := analyzer.NewTokenizer(true)
	idx := NewBM25Index(tokenizer, []string{
		"This is a test document about authentication and login",
		"Database connection pooling and query optimization",
		"User authentication with JWT tokens and OAuth",
	}, 1.2, 0.75)

	require.Equal(t, 3, idx.Len())

	scores := idx.Scores("authentication")
	assert.Greater(t, scores[0], 0.0)
	assert.Greater(t, scores[2], 0.0)
	assert.Equal(t, 0.0, scores[1])

	scores = idx.Scores("database query")
	assert.Greater(t, scores[1], scores[0])
	assert.Greater(t, scores[1], scores[2])
}

func TestBM25_RareTermsWeighMore(t *testing.T) {
	idx := NewBM25Index(analyzer.NewTokenizer(true), []string{
		"budget budget forecast",
		"budget review",
		"budget approval",
	}, 1.2, 0.75)

	scores := idx.Scores("forecast budget")
	assert.Greater(t, scores[0], scores[1])
	assert.InDelta(t, scores[1], scores[2], 1e-9)
}

func TestBM25_EmptyInputs(t *testing.T) {
	idx := NewBM25Index(analyzer.NewTokenizer(true), nil, 0, -1)
	assert.Empty(t, idx.Scores("anything"))

	idx = NewBM25Index(analyzer.NewTokenizer(true), []string{"some text"}, 1.2, 0.75)
	assert.Equal(t, []float64{0}, idx.Scores("the of and"))
}

func TestMinMaxNormalize(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, minMaxNormalize([]float64{2, 3, 4}))
	assert.Equal(t, []float64{1, 1}, minMaxNormalize([]float64{0.4, 0.4}))
	assert.Equal(t, []float64{0, 0}, minMaxNormalize([]float64{0, 0}))
	assert.Empty(t, minMaxNormalize(nil))
}
