package randutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededSourcesRepeat(t *testing.T) {
	t.Parallel()

	a, seed := New(42)
	b, _ := New(42)
	assert.Equal(t, int64(42), seed)
	for range 10 {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}

func TestZeroSeedIsReplaced(t *testing.T) {
	t.Parallel()

	_, seed := New(0)
	assert.NotZero(t, seed)
}
