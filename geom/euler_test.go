package geom

import (
	"math"
	"testing"
)

func TestEuler(t *testing.T) {
	const eps = 0.000001

	for i, c := range []struct {
		order   RotationOrder
		x, y, z Element
	}{
		{RotationOrderXYZ, 10, 20, 30},
		{RotationOrderXYZ, 10, 90, 0},
		{RotationOrderYXZ, 10, 20, 30},
		{RotationOrderYXZ, 90, 10, 0},
		{RotationOrderZXY, 10, 20, 30},
		{RotationOrderZXY, 90, 0, 10},
		{RotationOrderZYX, 10, 20, 30},
		{RotationOrderZYX, 0, 90, 10},
		{RotationOrderXZY, 10, 20, 30},
		{RotationOrderYZX, 10, 20, 30},
	} {
		e1 := NewEuler(Radians(c.x), Radians(c.y), Radians(c.z), c.order)
		q := e1.ToQuaternion()
		e2 := NewEulerFromQuaternion(q, c.order)

		if e1.Vector3.Sub(&e2.Vector3).Len() > eps {
			t.Error("euler: ", i, e1, e2)
		}
		if Abs(q.Len()-1) > eps {
			t.Error("Quaternion.Len() != 1", e1)
		}
	}
}

func TestEulerAxisOrder(t *testing.T) {
	const eps = 0.000001

	// XYZ applies X first: (0, 1, 0) -> X90 -> (0, 0, 1) -> Z90 -> (0, 0, 1)
	q := NewEuler(math.Pi/2, 0, math.Pi/2, RotationOrderXYZ).ToQuaternion()
	v := q.ApplyTo(NewVector3(0, 1, 0))
	if v.Sub(NewVector3(0, 0, 1)).Len() > eps {
		t.Error("XYZ: ", v)
	}

	// ZYX applies Z first: (0, 1, 0) -> Z90 -> (-1, 0, 0) -> X90 -> (-1, 0, 0)
	q = NewEuler(math.Pi/2, 0, math.Pi/2, RotationOrderZYX).ToQuaternion()
	v = q.ApplyTo(NewVector3(0, 1, 0))
	if v.Sub(NewVector3(-1, 0, 0)).Len() > eps {
		t.Error("ZYX: ", v)
	}

	for _, name := range []string{"XYZ", "ZXY", "YZX"} {
		o, ok := ParseRotationOrder(name)
		if !ok || o.String() != name {
			t.Error("ParseRotationOrder: ", name, o)
		}
	}
}
