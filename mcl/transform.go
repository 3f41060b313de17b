package mcl

import "math"

// Vec3 is a translation in meters.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum of two vectors.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns the vector multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Quaternion is a rotation. Constructors keep it unit-length, so the
// algebra below never needs to renormalize.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion returns the no-rotation quaternion.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// QuaternionFromRPY builds a quaternion from roll, pitch, yaw (radians),
// applied in ZYX order (yaw, then pitch, then roll).
func QuaternionFromRPY(roll, pitch, yaw float64) Quaternion {
	cr := math.Cos(roll / 2)
	sr := math.Sin(roll / 2)
	cp := math.Cos(pitch / 2)
	sp := math.Sin(pitch / 2)
	cy := math.Cos(yaw / 2)
	sy := math.Sin(yaw / 2)

	return Quaternion{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// Mul composes two rotations: applying the result is equivalent to
// applying o first, then q. Non-commutative.
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Conjugate returns the inverse rotation for a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Rotate applies the rotation to a vector.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	// v' = q * (v, 0) * q^-1, expanded to avoid the intermediate products.
	tx := 2 * (q.Y*v.Z - q.Z*v.Y)
	ty := 2 * (q.Z*v.X - q.X*v.Z)
	tz := 2 * (q.X*v.Y - q.Y*v.X)
	return Vec3{
		X: v.X + q.W*tx + (q.Y*tz - q.Z*ty),
		Y: v.Y + q.W*ty + (q.Z*tx - q.X*tz),
		Z: v.Z + q.W*tz + (q.X*ty - q.Y*tx),
	}
}

// RPY extracts roll, pitch, yaw (radians) in ZYX convention.
func (q Quaternion) RPY() (roll, pitch, yaw float64) {
	// Rotation matrix elements needed for the extraction.
	sinp := 2 * (q.W*q.Y - q.Z*q.X)

	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	if math.Abs(sinp) >= 1 {
		// Gimbal lock: pitch saturates at ±90°.
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}
	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return roll, pitch, yaw
}

// Yaw returns just the heading component of the rotation.
func (q Quaternion) Yaw() float64 {
	_, _, yaw := q.RPY()
	return yaw
}

// Transform is a rigid-body pose: translation plus orientation.
// Composition is associative and non-commutative, and every transform
// has an inverse, so frame chains like map←base ∘ base←sensor compose
// by plain multiplication.
type Transform struct {
	Translation Vec3       `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// IdentityTransform returns the transform that maps every pose to itself.
func IdentityTransform() Transform {
	return Transform{Rotation: IdentityQuaternion()}
}

// NewTransform builds a transform from a translation and rotation.
func NewTransform(t Vec3, r Quaternion) Transform {
	return Transform{Translation: t, Rotation: r}
}

// FromXYYaw builds a planar pose: translation in the XY plane plus heading.
func FromXYYaw(x, y, yaw float64) Transform {
	return Transform{
		Translation: Vec3{X: x, Y: y},
		Rotation:    QuaternionFromRPY(0, 0, yaw),
	}
}

// Compose returns a ∘ b: the transform that applies b in a's frame.
// Equivalent to applying b first, then a.
func (a Transform) Compose(b Transform) Transform {
	return Transform{
		Translation: a.Translation.Add(a.Rotation.Rotate(b.Translation)),
		Rotation:    a.Rotation.Mul(b.Rotation),
	}
}

// Inverse returns the transform t^-1 such that t ∘ t^-1 is the identity.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Conjugate()
	return Transform{
		Translation: inv.Rotate(t.Translation.Scale(-1)),
		Rotation:    inv,
	}
}

// Apply maps a point expressed in t's frame into the parent frame.
func (t Transform) Apply(p Vec3) Vec3 {
	return t.Translation.Add(t.Rotation.Rotate(p))
}

// RPY extracts the orientation as roll, pitch, yaw.
func (t Transform) RPY() (roll, pitch, yaw float64) {
	return t.Rotation.RPY()
}

// Yaw returns the heading component of the pose.
func (t Transform) Yaw() float64 {
	return t.Rotation.Yaw()
}
