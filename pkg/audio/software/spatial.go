package software

import "github.com/MrWong99/soundstage/pkg/audio"

// spatialize returns the left and right gains of a source at pos heard by l.
// Distance attenuation is linear between minDist (full volume) and maxDist
// (silence); direction splits the result across the stereo field using the
// listener's right vector.
func spatialize(l audio.ListenerAttributes, pos audio.Vector, minDist, maxDist float64) (left, right float64) {
	d := pos.Sub(l.Position)
	dist := d.Length()
	att := rolloff(dist, minDist, maxDist)
	if dist == 0 {
		return att, att
	}
	dot := l.Right().Dot(d.Scale(1 / dist))
	left = clamp01((1 - dot) * att)
	right = clamp01((1 + dot) * att)
	return left, right
}

func rolloff(dist, minDist, maxDist float64) float64 {
	switch {
	case dist <= minDist:
		return 1
	case dist >= maxDist:
		return 0
	default:
		return 1 - (dist-minDist)/(maxDist-minDist)
	}
}

func clamp01(v float64) float64 { return max(0, min(1, v)) }
