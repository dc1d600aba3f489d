package armature

import (
	"github.com/mektools/rigtools/geom"
)

// Evaluator computes constrained pose matrices. Results are cached, so an
// Evaluator must not outlive a change to any bone it has seen.
type Evaluator struct {
	pose     map[*Bone]*geom.Matrix4
	visiting map[*Bone]bool
}

func NewEvaluator() *Evaluator {
	return &Evaluator{pose: map[*Bone]*geom.Matrix4{}, visiting: map[*Bone]bool{}}
}

// PoseMatrix returns the armature-space pose matrix of b with every unmuted
// constraint applied.
func (e *Evaluator) PoseMatrix(b *Bone) *geom.Matrix4 {
	if m, ok := e.pose[b]; ok {
		return m
	}
	if e.visiting[b] {
		// dependency cycle between constraints
		return unconstrained(b)
	}
	e.visiting[b] = true
	m := e.ParentFrame(b).Mul(b.Basis())
	for _, c := range b.Constraints {
		if c.Mute || c.Influence <= 0 {
			continue
		}
		m = e.solve(c, b, m)
	}
	delete(e.visiting, b)
	e.pose[b] = m
	return m
}

// ParentFrame returns the matrix the bone's basis is applied to.
func (e *Evaluator) ParentFrame(b *Bone) *geom.Matrix4 {
	if b.parent == nil {
		return b.Rest.Clone()
	}
	return e.PoseMatrix(b.parent).Mul(b.RestRelative())
}

func unconstrained(b *Bone) *geom.Matrix4 {
	if b.parent == nil {
		return b.Rest.Mul(b.Basis())
	}
	return unconstrained(b.parent).Mul(b.RestRelative()).Mul(b.Basis())
}

func (e *Evaluator) world(b *Bone) *geom.Matrix4 {
	if b.armature == nil {
		return geom.NewMatrix4()
	}
	return &b.armature.World
}

func (e *Evaluator) toSpace(b *Bone, m *geom.Matrix4, s Space) *geom.Matrix4 {
	switch s {
	case SpaceWorld:
		return e.world(b).Mul(m)
	case SpaceLocal, SpaceLocalOwnerOrient:
		return e.ParentFrame(b).Inverse().Mul(m)
	default:
		return m.Clone()
	}
}

func (e *Evaluator) fromSpace(b *Bone, m *geom.Matrix4, s Space) *geom.Matrix4 {
	switch s {
	case SpaceWorld:
		return e.world(b).Inverse().Mul(m)
	case SpaceLocal, SpaceLocalOwnerOrient:
		return e.ParentFrame(b).Mul(m)
	default:
		return m.Clone()
	}
}

func (a *Armature) PoseMatrix(b *Bone) *geom.Matrix4 {
	return NewEvaluator().PoseMatrix(b)
}

func (a *Armature) WorldMatrix(b *Bone) *geom.Matrix4 {
	return a.World.Mul(a.PoseMatrix(b))
}

// ConvertSpace re-expresses m, given in space from for bone b, in space to.
func (a *Armature) ConvertSpace(b *Bone, m *geom.Matrix4, from, to Space) *geom.Matrix4 {
	e := NewEvaluator()
	return e.toSpace(b, e.fromSpace(b, m, from), to)
}

// SetPoseMatrix sets the basis of b so that its pose matrix (ignoring its
// own constraints) becomes m.
func (a *Armature) SetPoseMatrix(b *Bone, m *geom.Matrix4) {
	b.SetBasis(a.ConvertSpace(b, m, SpacePose, SpaceLocal))
}

// ApplyVisualTransform bakes the constrained pose of b into its basis.
func (a *Armature) ApplyVisualTransform(b *Bone) {
	e := NewEvaluator()
	m := e.PoseMatrix(b)
	b.SetBasis(e.ParentFrame(b).Inverse().Mul(m))
}
