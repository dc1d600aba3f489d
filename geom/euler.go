package geom

import "math"

type RotationOrder int

// Axes are applied in the named order: XYZ rotates about X first.
const (
	RotationOrderXYZ RotationOrder = iota
	RotationOrderYXZ
	RotationOrderZXY
	RotationOrderZYX
	RotationOrderXZY
	RotationOrderYZX
)

var rotationOrderNames = [...]string{"XYZ", "YXZ", "ZXY", "ZYX", "XZY", "YZX"}

func (o RotationOrder) String() string {
	if o < 0 || int(o) >= len(rotationOrderNames) {
		return "XYZ"
	}
	return rotationOrderNames[o]
}

func ParseRotationOrder(s string) (RotationOrder, bool) {
	for i, n := range rotationOrderNames {
		if n == s {
			return RotationOrder(i), true
		}
	}
	return RotationOrderXYZ, false
}

// axes returns the axis sequence and whether it is an odd permutation.
func (o RotationOrder) axes() ([3]int, bool) {
	switch o {
	case RotationOrderXZY:
		return [3]int{0, 2, 1}, true
	case RotationOrderYXZ:
		return [3]int{1, 0, 2}, true
	case RotationOrderYZX:
		return [3]int{1, 2, 0}, false
	case RotationOrderZXY:
		return [3]int{2, 0, 1}, false
	case RotationOrderZYX:
		return [3]int{2, 1, 0}, true
	default:
		return [3]int{0, 1, 2}, false
	}
}

type EulerAngles struct {
	Vector3
	Order RotationOrder
}

func NewEuler(x, y, z Element, order RotationOrder) *EulerAngles {
	return &EulerAngles{Vector3: Vector3{x, y, z}, Order: order}
}

func NewEulerFromQuaternion(q *Quaternion, order RotationOrder) *EulerAngles {
	return NewEulerFromMatrix4(NewRotationMatrix4FromQuaternion(q), order)
}

func NewEulerFromMatrix4(mat *Matrix4, order RotationOrder) *EulerAngles {
	const eps = 1e-7
	rot := mat.Rotation()
	// at(c, r) is column c, row r.
	at := func(c, r int) Element { return rot[c*4+r] }
	ax, parity := order.axes()
	i, j, k := ax[0], ax[1], ax[2]

	var e [3]Element
	cy := math.Hypot(at(i, i), at(i, j))
	if cy > eps {
		e[i] = math.Atan2(at(j, k), at(k, k))
		e[j] = math.Atan2(-at(i, k), cy)
		e[k] = math.Atan2(at(i, j), at(i, i))
	} else {
		e[i] = math.Atan2(-at(k, j), at(j, j))
		e[j] = math.Atan2(-at(i, k), cy)
		e[k] = 0
	}
	if parity {
		e[0], e[1], e[2] = -e[0], -e[1], -e[2]
	}
	return &EulerAngles{Vector3: Vector3{e[0], e[1], e[2]}, Order: order}
}

func (v *EulerAngles) ToQuaternion() *Quaternion {
	ax, _ := v.Order.axes()
	angles := v.ToArray()
	unit := [3]*Vector3{NewVector3(1, 0, 0), NewVector3(0, 1, 0), NewVector3(0, 0, 1)}
	q := NewIdentityQuaternion()
	for _, a := range ax {
		q = NewQuaternionFromAxisAngle(unit[a], angles[a]).Mul(q)
	}
	return q
}

func (v *EulerAngles) ToMatrix4() *Matrix4 {
	return NewRotationMatrix4FromQuaternion(v.ToQuaternion())
}
