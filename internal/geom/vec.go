package geom

import "math"

// Vec is a point or vector in field coordinates.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec) Sub(o Vec) Vec {
	return Vec{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec) Scale(f float64) Vec {
	return Vec{X: v.X * f, Y: v.Y * f}
}

// Lerp moves v toward to by fraction t.
func (v Vec) Lerp(to Vec, t float64) Vec {
	return Vec{X: v.X + (to.X-v.X)*t, Y: v.Y + (to.Y-v.Y)*t}
}

func (v Vec) Dist(o Vec) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// Finite reports whether both components are neither NaN nor infinite.
func (v Vec) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// Within reports whether v is finite and both components have magnitude <= bound.
func (v Vec) Within(bound float64) bool {
	return v.Finite() && math.Abs(v.X) <= bound && math.Abs(v.Y) <= bound
}
