package types

import "github.com/chewxy/math32"

// Vec3 is a float32 3-vector used for positions, rotations (Euler radians)
// and scales. JSON field names follow the editor wire format.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// V3 is a shorthand constructor.
func V3(x, y, z float32) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Length returns the Euclidean norm.
func (v Vec3) Length() float32 {
	return math32.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns |v - o|.
func (v Vec3) Distance(o Vec3) float32 {
	return v.Sub(o).Length()
}

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Transform is the placement of a scene object. Rotation is XYZ Euler in
// radians, matching the editor's look-down-negative-Z camera convention.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// IdentityTransform returns a transform at the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{Scale: V3(1, 1, 1)}
}

// TransformPatch is a partial transform update; nil fields are left as-is.
type TransformPatch struct {
	Position *Vec3 `json:"position,omitempty"`
	Rotation *Vec3 `json:"rotation,omitempty"`
	Scale    *Vec3 `json:"scale,omitempty"`
}

// Apply merges the patch into t.
func (p TransformPatch) Apply(t *Transform) {
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.Rotation != nil {
		t.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		t.Scale = *p.Scale
	}
}

// IsZero reports whether the patch carries no fields.
func (p TransformPatch) IsZero() bool {
	return p.Position == nil && p.Rotation == nil && p.Scale == nil
}
