package structure

import (
	"fmt"
	"math"
)

// keyScale is the number of key units per length unit.  Coordinates are first
// rounded to keyDecimals places so that text round-tripping (PDB keeps three
// decimals) cannot move a coordinate across a key boundary by itself.
const (
	keyScale    = 50
	keyDecimals = 1e4
)

// Vec3 is a point or displacement in Cartesian space, in Ångström.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite reports whether all three components are finite numbers.
func (v Vec3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Vec3) float64 {
	return a.Sub(b).Norm()
}

// PositionKey is the quantized identity of a point in space.  Two atoms are
// treated as the same point iff their keys are equal.
type PositionKey [3]int64

func (k PositionKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k[0], k[1], k[2])
}

// KeyOf derives the PositionKey of p.  Each coordinate is rounded to four
// decimal places, scaled by 50 and truncated toward zero.  The result depends
// on the position only.
func KeyOf(p Vec3) PositionKey {
	return PositionKey{quantize(p.X), quantize(p.Y), quantize(p.Z)}
}

func quantize(c float64) int64 {
	rounded := math.Round(c*keyDecimals) / keyDecimals
	return int64(rounded * keyScale)
}

//Personal.AI order the ending
