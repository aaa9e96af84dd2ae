package spatial

import "math"

type Vec3 struct{ X, Y, Z float64 }

func (a Vec3) Add(b Vec3) Vec3       { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3       { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3  { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64    { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) LengthSq() float64     { return a.Dot(a) }
func (a Vec3) Length() float64       { return math.Sqrt(a.LengthSq()) }
func (a Vec3) DistSq(b Vec3) float64 { return b.Sub(a).LengthSq() }

func (a Vec3) IsFinite() bool {
	for _, v := range [3]float64{a.X, a.Y, a.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Normalize returns the unit vector, or zero when a is degenerate.
func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l < 1e-9 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// MoveToward steps from a toward b by at most maxStep without overshoot.
func (a Vec3) MoveToward(b Vec3, maxStep float64) Vec3 {
	d := b.Sub(a)
	l := d.Length()
	if l <= maxStep || l < 1e-9 {
		return b
	}
	return a.Add(d.Scale(maxStep / l))
}
