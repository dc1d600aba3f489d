package geom

import "math"

type Vector4 struct {
	X Element
	Y Element
	Z Element
	W Element
}

// Quaternion components are stored X, Y, Z, W.
type Quaternion = Vector4

func NewVector4(x, y, z, w Element) *Vector4 {
	return &Vector4{X: x, Y: y, Z: z, W: w}
}

func NewQuaternion(x, y, z, w Element) *Vector4 {
	return &Vector4{X: x, Y: y, Z: z, W: w}
}

func NewIdentityQuaternion() *Quaternion {
	return &Quaternion{W: 1}
}

func NewQuaternionFromArray(arr [4]Element) *Vector4 {
	return &Vector4{X: arr[0], Y: arr[1], Z: arr[2], W: arr[3]}
}

// NewQuaternionFromAxisAngle returns the rotation of angle radians around axis.
func NewQuaternionFromAxisAngle(axis *Vector3, angle Element) *Quaternion {
	a := *axis
	a.Normalize()
	s := math.Sin(angle / 2)
	return &Quaternion{X: a.X * s, Y: a.Y * s, Z: a.Z * s, W: math.Cos(angle / 2)}
}

// NewQuaternionFromMatrix4 extracts the rotation of m. Scale is removed first
// and the result is canonicalized to W >= 0.
func NewQuaternionFromMatrix4(m *Matrix4) *Quaternion {
	c0 := NewVector3(m[0], m[1], m[2]).Normalize()
	c1 := NewVector3(m[4], m[5], m[6]).Normalize()
	c2 := NewVector3(m[8], m[9], m[10]).Normalize()
	if c0.Cross(c1).Dot(c2) < 0 {
		c0, c1, c2 = c0.Scale(-1), c1.Scale(-1), c2.Scale(-1)
	}
	// rIJ is row I, column J.
	r00, r10, r20 := c0.X, c0.Y, c0.Z
	r01, r11, r21 := c1.X, c1.Y, c1.Z
	r02, r12, r22 := c2.X, c2.Y, c2.Z

	q := &Quaternion{}
	tr := r00 + r11 + r22
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q.W = 0.25 * s
		q.X = (r21 - r12) / s
		q.Y = (r02 - r20) / s
		q.Z = (r10 - r01) / s
	case r00 > r11 && r00 > r22:
		s := math.Sqrt(1+r00-r11-r22) * 2
		q.W = (r21 - r12) / s
		q.X = 0.25 * s
		q.Y = (r01 + r10) / s
		q.Z = (r02 + r20) / s
	case r11 > r22:
		s := math.Sqrt(1+r11-r00-r22) * 2
		q.W = (r02 - r20) / s
		q.X = (r01 + r10) / s
		q.Y = 0.25 * s
		q.Z = (r12 + r21) / s
	default:
		s := math.Sqrt(1+r22-r00-r11) * 2
		q.W = (r10 - r01) / s
		q.X = (r02 + r20) / s
		q.Y = (r12 + r21) / s
		q.Z = 0.25 * s
	}
	q.Normalize()
	if q.W < 0 {
		q = q.Scale(-1)
	}
	return q
}

func (v *Vector4) Add(v2 *Vector4) *Vector4 {
	return &Vector4{X: v.X + v2.X, Y: v.Y + v2.Y, Z: v.Z + v2.Z, W: v.W + v2.W}
}

func (v *Vector4) Sub(v2 *Vector4) *Vector4 {
	return &Vector4{X: v.X - v2.X, Y: v.Y - v2.Y, Z: v.Z - v2.Z, W: v.W - v2.W}
}

func (v *Vector4) Scale(s Element) *Vector4 {
	return &Vector4{X: v.X * s, Y: v.Y * s, Z: v.Z * s, W: v.W * s}
}

func (v *Vector4) Dot(v2 *Vector4) Element {
	return v.X*v2.X + v.Y*v2.Y + v.Z*v2.Z + v.W*v2.W
}

func (v *Vector4) Len() Element {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z + v.W*v.W)
}

func (v *Vector4) LenSqr() Element {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z + v.W*v.W
}

// Normalize normalizes v in place. A zero quaternion becomes the identity.
func (v *Vector4) Normalize() *Vector4 {
	l := v.Len()
	if l > 0 {
		v.X /= l
		v.Y /= l
		v.Z /= l
		v.W /= l
	} else {
		v.W = 1
	}
	return v
}

// Inverse returns the conjugate, which is the inverse of a unit quaternion.
func (v *Vector4) Inverse() *Vector4 {
	return &Vector4{X: -v.X, Y: -v.Y, Z: -v.Z, W: v.W}
}

// Mul returns the Hamilton product q * q2 (q2 is applied first).
func (q *Quaternion) Mul(q2 *Quaternion) *Quaternion {
	return &Quaternion{
		X: q.W*q2.X + q.X*q2.W + q.Y*q2.Z - q.Z*q2.Y,
		Y: q.W*q2.Y - q.X*q2.Z + q.Y*q2.W + q.Z*q2.X,
		Z: q.W*q2.Z + q.X*q2.Y - q.Y*q2.X + q.Z*q2.W,
		W: q.W*q2.W - q.X*q2.X - q.Y*q2.Y - q.Z*q2.Z,
	}
}

func (q *Quaternion) ApplyTo(v *Vector3) *Vector3 {
	r := q.Mul(&Quaternion{X: v.X, Y: v.Y, Z: v.Z}).Mul(q.Inverse())
	return &Vector3{X: r.X, Y: r.Y, Z: r.Z}
}

// RotationDifference returns d such that q * d == q2.
func (q *Quaternion) RotationDifference(q2 *Quaternion) *Quaternion {
	l := q.LenSqr()
	if l == 0 {
		return q2.Scale(1)
	}
	return q.Inverse().Scale(1 / l).Mul(q2)
}

// AxisAngle returns the rotation axis and angle in radians.
func (q *Quaternion) AxisAngle() (*Vector3, Element) {
	n := *q
	n.Normalize()
	w := math.Max(-1, math.Min(n.W, 1))
	angle := 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < 1e-9 {
		return NewVector3(0, 1, 0), angle
	}
	return NewVector3(n.X/s, n.Y/s, n.Z/s), angle
}

// Slerp interpolates between q and q2 along the shortest arc.
func (q *Quaternion) Slerp(q2 *Quaternion, t Element) *Quaternion {
	b := *q2
	cos := q.Dot(&b)
	if cos < 0 {
		b = *b.Scale(-1)
		cos = -cos
	}
	if cos > 0.9995 {
		return q.Add(b.Sub(q).Scale(t)).Normalize()
	}
	theta := math.Acos(cos)
	sin := math.Sin(theta)
	s0 := math.Sin((1-t)*theta) / sin
	s1 := math.Sin(t*theta) / sin
	return q.Scale(s0).Add(b.Scale(s1))
}

// IsIdentity reports whether q is a rotation of less than eps radians.
func (q *Quaternion) IsIdentity(eps Element) bool {
	_, a := q.AxisAngle()
	return a < eps || 2*math.Pi-a < eps
}

// Equivalent reports whether q and q2 describe the same rotation.
func (q *Quaternion) Equivalent(q2 *Quaternion, eps Element) bool {
	return Abs(Abs(q.Dot(q2))-1) < eps
}
