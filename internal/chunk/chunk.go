// Package chunk holds the pure coordinate math for the global plane's
// fixed-size chunk grid. No state; every function is deterministic.
//
// World coordinates are continuous (px); chunk coordinates are the integer
// floor of position / chunk size, so negative positions land in negative
// chunks rather than sharing chunk 0 with positive ones.
package chunk

import (
	"errors"
	"math"
)

var (
	// ErrChunkSize is returned when a chunk dimension is zero or negative.
	ErrChunkSize = errors.New("chunk: chunk dimensions must be positive")
	// ErrNegativeRadius is returned when a query radius is negative.
	ErrNegativeRadius = errors.New("chunk: radius must be non-negative")
)

// Coord identifies one chunk on the global plane.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CoordOf returns the chunk coordinate containing a world-space value.
// size must be positive; callers validate at their API boundary.
func CoordOf(value, size float64) int {
	return int(math.Floor(value / size))
}

// Origin returns the world-space origin (min corner) of a chunk.
func Origin(cx, cy int, chunkW, chunkH float64) (float64, float64) {
	return float64(cx) * chunkW, float64(cy) * chunkH
}

// WorldToLocal converts a world position to its chunk coordinate plus the
// local offset within that chunk. Origin(coord) + offset recovers the
// original position.
func WorldToLocal(x, y, chunkW, chunkH float64) (Coord, float64, float64) {
	c := Coord{X: CoordOf(x, chunkW), Y: CoordOf(y, chunkH)}
	ox, oy := Origin(c.X, c.Y, chunkW, chunkH)
	return c, x - ox, y - oy
}

// ForRadius enumerates every chunk whose rectangle intersects the circle of
// the given radius centered at (x, y). The coarse pass walks the bounding
// box of center ± radius; the precise pass clamps the center to each
// chunk's rectangle and compares squared distances, which discards the
// corner chunks the bounding box over-includes.
func ForRadius(x, y, radius, chunkW, chunkH float64) ([]Coord, error) {
	if chunkW <= 0 || chunkH <= 0 {
		return nil, ErrChunkSize
	}
	if radius < 0 {
		return nil, ErrNegativeRadius
	}

	minCX := CoordOf(x-radius, chunkW)
	maxCX := CoordOf(x+radius, chunkW)
	minCY := CoordOf(y-radius, chunkH)
	maxCY := CoordOf(y+radius, chunkH)

	rr := radius * radius
	out := make([]Coord, 0, (maxCX-minCX+1)*(maxCY-minCY+1))
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			ox, oy := Origin(cx, cy, chunkW, chunkH)
			nx := clamp(x, ox, ox+chunkW)
			ny := clamp(y, oy, oy+chunkH)
			dx := x - nx
			dy := y - ny
			if dx*dx+dy*dy <= rr {
				out = append(out, Coord{X: cx, Y: cy})
			}
		}
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
