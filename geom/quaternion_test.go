package geom

import (
	"math"
	"testing"
)

func TestQuaternion(t *testing.T) {
	const eps = 0.000001

	{
		q := NewEuler(0, 0, 0, RotationOrderXYZ).ToQuaternion()
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > eps {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q := NewEuler(2*math.Pi, 0, 0, RotationOrderXYZ).ToQuaternion()
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > eps {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q := NewEuler(math.Pi, 0, 0, RotationOrderXYZ).ToQuaternion()
		q = q.Mul(q)
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > eps {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q := NewEuler(1, 2, 3, RotationOrderXYZ).ToQuaternion()
		q = q.Mul(q.Inverse())
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > eps {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q1 := NewEuler(0.4, 0.1, -0.7, RotationOrderZXY).ToQuaternion()
		q2 := NewEuler(-1.2, 0.5, 0.3, RotationOrderZXY).ToQuaternion()
		d := q1.RotationDifference(q2)
		if !q1.Mul(d).Equivalent(q2, eps) {
			t.Error("q1 * diff != q2: ", q1.Mul(d), q2)
		}
	}

	{
		q := NewQuaternionFromAxisAngle(NewVector3(0, 0, 2), math.Pi/3)
		axis, angle := q.AxisAngle()
		if axis.Sub(NewVector3(0, 0, 1)).Len() > eps || Abs(angle-math.Pi/3) > eps {
			t.Error("axis angle: ", axis, angle)
		}
		q2 := NewQuaternionFromMatrix4(NewRotationMatrix4FromQuaternion(q))
		if q.Sub(q2).Len() > eps {
			t.Error("from matrix: ", q, q2)
		}
	}

	{
		// canonical form keeps W >= 0
		q := NewQuaternion(0, 0, -0.7071068, -0.7071068)
		q2 := NewQuaternionFromMatrix4(NewRotationMatrix4FromQuaternion(q))
		if q2.W < 0 || !q.Equivalent(q2, eps) {
			t.Error("canonical: ", q2)
		}
	}

	{
		a := NewIdentityQuaternion()
		b := NewQuaternionFromAxisAngle(NewVector3(1, 0, 0), math.Pi/2)
		mid := a.Slerp(b, 0.5)
		if !mid.Equivalent(NewQuaternionFromAxisAngle(NewVector3(1, 0, 0), math.Pi/4), eps) {
			t.Error("slerp: ", mid)
		}
	}
}
