package giveaway

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickWinnerEmpty(t *testing.T) {
	assert.Nil(t, PickWinner(nil, nil))
	assert.Nil(t, PickWinner([]int64{}, rand.New(rand.NewSource(1))))
}

func TestPickWinnerSingle(t *testing.T) {
	w := PickWinner([]int64{42}, rand.New(rand.NewSource(1)))
	require.NotNil(t, w)
	assert.Equal(t, int64(42), *w)
}

func TestPickWinnerFromEntrants(t *testing.T) {
	entrants := []int64{10, 20, 30, 40}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		w := PickWinner(entrants, rng)
		require.NotNil(t, w)
		assert.Contains(t, entrants, *w)
	}
}

func TestPickWinnerCoversAllEntrants(t *testing.T) {
	entrants := []int64{1, 2, 3}
	rng := rand.New(rand.NewSource(99))
	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		seen[*PickWinner(entrants, rng)] = true
	}
	assert.Len(t, seen, len(entrants))
}
