package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchScoreAccessors(t *testing.T) {
	e := EmbeddingScore(0.812345)
	v, ok := e.Embedding()
	assert.True(t, ok)
	assert.InDelta(t, 0.812345, v, 1e-12)
	_, ok = e.Keyword()
	assert.False(t, ok)
	assert.InDelta(t, 0.8123, e.Display(), 1e-12)
	assert.Equal(t, "embedding(0.8123)", e.String())

	k := KeywordScore(5)
	n, ok := k.Keyword()
	assert.True(t, ok)
	assert.Equal(t, uint32(5), n)
	assert.Equal(t, 5.0, k.Display())
	assert.Equal(t, ScoreKeyword, k.Kind())
}

func TestMatchScoreCompare(t *testing.T) {
	c, err := EmbeddingScore(0.4).Compare(EmbeddingScore(0.7))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = KeywordScore(3).Compare(KeywordScore(3))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	_, err = EmbeddingScore(0.9).Compare(KeywordScore(1))
	assert.ErrorIs(t, err, ErrIncomparableScores)

	_, err = MatchScore{}.Compare(MatchScore{})
	assert.ErrorIs(t, err, ErrIncomparableScores)
}
