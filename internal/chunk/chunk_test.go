package chunk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordOf(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		size  float64
		want  int
	}{
		{"origin", 0, 64, 0},
		{"inside first chunk", 63.9, 64, 0},
		{"exact boundary", 64, 64, 1},
		{"second chunk", 70, 64, 1},
		{"negative just below zero", -0.5, 64, -1},
		{"negative boundary", -64, 64, -1},
		{"negative past boundary", -64.1, 64, -2},
		{"fractional size", 10, 2.5, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoordOf(tt.value, tt.size))
		})
	}
}

func TestWorldToLocal(t *testing.T) {
	c, lx, ly := WorldToLocal(70, 5, 64, 64)
	assert.Equal(t, Coord{X: 1, Y: 0}, c)
	assert.InDelta(t, 6, lx, 1e-9)
	assert.InDelta(t, 5, ly, 1e-9)
}

func TestWorldToLocalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		x := (rng.Float64() - 0.5) * 20000
		y := (rng.Float64() - 0.5) * 20000
		w := 1 + rng.Float64()*200
		h := 1 + rng.Float64()*200

		c, lx, ly := WorldToLocal(x, y, w, h)
		ox, oy := Origin(c.X, c.Y, w, h)
		require.InDelta(t, x, ox+lx, 1e-6)
		require.InDelta(t, y, oy+ly, 1e-6)
		require.GreaterOrEqual(t, lx, 0.0)
		require.Less(t, lx, w+1e-9)
	}
}

func TestForRadiusValidation(t *testing.T) {
	_, err := ForRadius(0, 0, -1, 64, 64)
	assert.ErrorIs(t, err, ErrNegativeRadius)

	_, err = ForRadius(0, 0, 10, 0, 64)
	assert.ErrorIs(t, err, ErrChunkSize)

	_, err = ForRadius(0, 0, 10, 64, -5)
	assert.ErrorIs(t, err, ErrChunkSize)
}

func TestForRadiusBoundaryCrossing(t *testing.T) {
	// Center sits 6px into chunk (1,0); radius 10 reaches back across the
	// x boundary and up past y=0 into row -1.
	coords, err := ForRadius(70, 5, 10, 64, 64)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Coord{
		{X: 0, Y: -1}, {X: 1, Y: -1},
		{X: 0, Y: 0}, {X: 1, Y: 0},
	}, coords)
}

func TestForRadiusCornerExcluded(t *testing.T) {
	// Center near the (64,64) corner: the bounding box spans four chunks
	// but the circle misses the diagonal one.
	coords, err := ForRadius(54, 54, 11, 64, 64)
	require.NoError(t, err)
	assert.Contains(t, coords, Coord{X: 0, Y: 0})
	assert.Contains(t, coords, Coord{X: 1, Y: 0})
	assert.Contains(t, coords, Coord{X: 0, Y: 1})
	assert.NotContains(t, coords, Coord{X: 1, Y: 1})
}

func TestForRadiusZero(t *testing.T) {
	coords, err := ForRadius(70, 5, 0, 64, 64)
	require.NoError(t, err)
	assert.Equal(t, []Coord{{X: 1, Y: 0}}, coords)
}

func TestForRadiusMatchesDistanceCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 200; i++ {
		x := (rng.Float64() - 0.5) * 2000
		y := (rng.Float64() - 0.5) * 2000
		r := rng.Float64() * 300

		coords, err := ForRadius(x, y, r, 64, 64)
		require.NoError(t, err)

		seen := make(map[Coord]bool, len(coords))
		for _, c := range coords {
			seen[c] = true
		}
		// Every chunk in the bounding box is included exactly when its
		// rectangle intersects the circle.
		for cy := CoordOf(y-r, 64); cy <= CoordOf(y+r, 64); cy++ {
			for cx := CoordOf(x-r, 64); cx <= CoordOf(x+r, 64); cx++ {
				ox, oy := Origin(cx, cy, 64, 64)
				nx := math.Min(math.Max(x, ox), ox+64)
				ny := math.Min(math.Max(y, oy), oy+64)
				intersects := (x-nx)*(x-nx)+(y-ny)*(y-ny) <= r*r
				require.Equal(t, intersects, seen[Coord{X: cx, Y: cy}])
			}
		}
	}
}
