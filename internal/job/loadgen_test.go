package job

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurnSmallInputs(t *testing.T) {
	assert.Equal(t, 0.0, Burn(0))
	assert.Equal(t, 0.0, Burn(-5))
	assert.Equal(t, 0.0, Burn(1))

	var want float64
	for i := 0; i < 4; i++ {
		x := float64(i)
		want += math.Sqrt(x) * math.Sin(x) * math.Cos(x) * math.Tan(x)
	}
	assert.InDelta(t, want, Burn(4), 1e-12)
	// Non-integer bounds include every integer below n.
	assert.InDelta(t, want, Burn(3.5), 1e-12)
}

func TestBurnIsFinite(t *testing.T) {
	v := Burn(1e5)
	assert.False(t, math.IsNaN(v))
	assert.False(t, math.IsInf(v, 0))
}

func TestBurnCostGrowsWithDepth(t *testing.T) {
	if testing.Short() {
		t.Skip("burns ~1e8 iterations")
	}
	measure := func(n float64) time.Duration {
		start := time.Now()
		sink = Burn(n)
		return time.Since(start)
	}
	small := measure(1e6)
	large := measure(1e8)
	assert.Less(t, small, large)
}

var sink float64

func BenchmarkBurn1e6(b *testing.B) {
	for i := 0; i < b.N; i++ {
		sink = Burn(1e6)
	}
}
