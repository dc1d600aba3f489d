package geom

import (
	"testing"
)

const matEps = 0.000001

func TestTRSRoundTrip(t *testing.T) {
	pos := NewVector3(1, 2, 3)
	rot := NewQuaternionFromAxisAngle(NewVector3(0, 0, 1), Radians(30))
	scale := NewVector3(1.5, 1.6, 1.7)

	p, r, s := NewTRSMatrix4(pos, rot, scale).Decompose()
	if pos.Sub(p).Len() > matEps || !rot.Equivalent(r, matEps) || scale.Sub(s).Len() > matEps {
		t.Error("decompose: ", p, r, s)
	}

	_, r, s = NewRotationMatrix4FromQuaternion(rot).Decompose()
	if !rot.Equivalent(r, matEps) || s.Sub(NewVector3(1, 1, 1)).Len() > matEps {
		t.Error("rotation only: ", r, s)
	}
}

func TestMatrixInverse(t *testing.T) {
	m := NewTRSMatrix4(NewVector3(0, 1, 0), NewQuaternionFromAxisAngle(NewVector3(1, 0, 0), Radians(90)), NewVector3(2, 2, 2))
	if !m.Mul(m.Inverse()).ApproxEqual(NewMatrix4(), matEps) {
		t.Error("m * inv(m) != I", m.Mul(m.Inverse()))
	}
	if *NewScaleMatrix4(0, 1, 1).Inverse() != (Matrix4{}) {
		t.Error("singular inverse should be zero")
	}

	v := m.ApplyTo(NewVector3(0, 1, 0))
	if v.Sub(NewVector3(0, 1, 2)).Len() > matEps {
		t.Error("ApplyTo: ", v)
	}
	if d := m.ApplyToDirection(NewVector3(0, 1, 0)); d.Sub(NewVector3(0, 0, 2)).Len() > matEps {
		t.Error("ApplyToDirection: ", d)
	}
}

func TestMatrixBlend(t *testing.T) {
	a := NewTranslateMatrix4(0, 0, 0)
	b := NewTRSMatrix4(NewVector3(2, 0, 0), NewQuaternionFromAxisAngle(NewVector3(0, 1, 0), Radians(90)), NewVector3(1, 1, 1))

	if !a.Blend(b, 0).ApproxEqual(a, matEps) || !a.Blend(b, 1).ApproxEqual(b, matEps) {
		t.Error("blend endpoints")
	}
	p, r, _ := a.Blend(b, 0.5).Decompose()
	if p.Sub(NewVector3(1, 0, 0)).Len() > matEps {
		t.Error("blend translation: ", p)
	}
	axis, angle := r.AxisAngle()
	if Abs(Degrees(angle)-45) > 0.0001 || axis.Sub(NewVector3(0, 1, 0)).Len() > matEps {
		t.Error("blend rotation: ", axis, Degrees(angle))
	}
}

func TestMatrixFloat32(t *testing.T) {
	m := NewTranslateMatrix4(1, 2, 3).WithTranslation(NewVector3(4, 5, 6))
	f := m.ToFloat32()
	if f[12] != 4 || f[13] != 5 || f[14] != 6 || f[15] != 1 {
		t.Error("column-major translation: ", f)
	}
	if *NewMatrix4FromFloat32(f) != *m {
		t.Error("float32 round trip")
	}
	if *m.Axis(1) != *NewVector3(0, 1, 0) {
		t.Error("Axis: ", m.Axis(1))
	}
}
