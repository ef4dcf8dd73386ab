package audio

import (
	"fmt"
	"math"
	"strings"
)

// Vector is a point or direction in the engine's left-handed coordinate
// system: +X right, +Y up, +Z forward.
type Vector struct {
	X, Y, Z float64
}

// Common listener orientation defaults.
var (
	Origin         = Vector{}
	DefaultForward = Vector{Z: 1}
	DefaultUp      = Vector{Y: 1}
)

// Add returns v+o.
func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*f.
func (v Vector) Scale(f float64) Vector { return Vector{v.X * f, v.Y * f, v.Z * f} }

// Dot returns the dot product of v and o.
func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product v×o.
func (v Vector) Cross(o Vector) Vector {
	return Vector{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Length returns the Euclidean length of v.
func (v Vector) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns v scaled to unit length, or the zero vector when v has
// no length.
func (v Vector) Normalize() Vector {
	l := v.Length()
	if l == 0 {
		return Vector{}
	}
	return v.Scale(1 / l)
}

// String renders v as "x,y,z" with two decimals.
func (v Vector) String() string {
	return fmt.Sprintf("%.2f,%.2f,%.2f", v.X, v.Y, v.Z)
}

// ListenerAttributes describes the single listener of a [Session].
type ListenerAttributes struct {
	Position Vector
	Velocity Vector
	Forward  Vector
	Up       Vector
}

// DefaultListener is the listener at the origin looking down +Z.
func DefaultListener() ListenerAttributes {
	return ListenerAttributes{
		Position: Origin,
		Forward:  DefaultForward,
		Up:       DefaultUp,
	}
}

// Right returns the listener's right-hand direction derived from Up×Forward.
func (l ListenerAttributes) Right() Vector {
	return l.Up.Cross(l.Forward).Normalize()
}

// Mode is a bit set of asset creation flags passed to [Session.CreateSound].
type Mode uint32

const (
	// Mode2D creates a non-spatial sound that supports stereo panning.
	Mode2D Mode = 1 << iota

	// Mode3D creates a spatial sound positioned relative to the listener.
	Mode3D

	// ModeLoopNormal makes the asset loop-capable. The actual number of loops
	// is set per channel via [Channel.SetLoopCount].
	ModeLoopNormal

	// ModeLinearRolloff attenuates 3D sounds linearly between the min and
	// max distance, reaching silence at max.
	ModeLinearRolloff

	// ModeCreateStream streams the asset from disk instead of decoding it
	// into memory up front.
	ModeCreateStream
)

// Has reports whether all flags in f are set in m.
func (m Mode) Has(f Mode) bool { return m&f == f }

// String returns the flag names joined with "|".
func (m Mode) String() string {
	names := []struct {
		flag Mode
		name string
	}{
		{Mode2D, "2D"},
		{Mode3D, "3D"},
		{ModeLoopNormal, "LOOP_NORMAL"},
		{ModeLinearRolloff, "LINEAR_ROLLOFF"},
		{ModeCreateStream, "CREATE_STREAM"},
	}
	var parts []string
	for _, n := range names {
		if m.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ClampVolume limits v to [0, 1].
func ClampVolume(v float64) float64 { return clamp(v, 0, 1) }

// ClampPan limits p to [-1, 1].
func ClampPan(p float64) float64 { return clamp(p, -1, 1) }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
