package armature

import (
	"github.com/mektools/rigtools/geom"
)

// solve applies a single constraint to the pose-space matrix m of owner.
// IK and Spline IK are left to the host solver and pass m through.
func (e *Evaluator) solve(c *Constraint, owner *Bone, m *geom.Matrix4) *geom.Matrix4 {
	if !c.Type.IsCopy() {
		return m
	}
	target := c.TargetBone()
	if target == nil || target == owner {
		return m
	}
	tm := e.targetMatrix(c, owner, target)
	om := e.toSpace(owner, m, c.OwnerSpace)

	var nm *geom.Matrix4
	switch c.Type {
	case CopyRotation:
		nm = copyRotation(c, om, tm)
	case CopyLocation:
		nm = copyLocation(c, om, tm)
	case CopyTransforms:
		nm = copyTransforms(c, om, tm)
	}
	res := e.fromSpace(owner, nm, c.OwnerSpace)
	if c.Influence < 1 {
		return m.Blend(res, c.Influence)
	}
	return res
}

func (e *Evaluator) targetMatrix(c *Constraint, owner, target *Bone) *geom.Matrix4 {
	pm := e.PoseMatrix(target)
	var tm *geom.Matrix4
	switch c.TargetSpace {
	case SpaceWorld:
		tm = e.world(target).Mul(pm)
	case SpacePose:
		tm = pm
		if target.armature != owner.armature {
			tm = e.world(owner).Inverse().Mul(e.world(target)).Mul(pm)
		}
	case SpaceLocal:
		tm = e.ParentFrame(target).Inverse().Mul(pm)
	case SpaceLocalOwnerOrient:
		local := e.ParentFrame(target).Inverse().Mul(pm)
		o := e.world(owner).Mul(&owner.Rest).Rotation()
		t := e.world(target).Mul(&target.Rest).Rotation()
		swap := o.Inverse().Mul(t)
		tm = swap.Mul(local).Mul(swap.Inverse())
	}
	if c.RemoveTargetShear {
		tm = geom.NewTRSMatrix4(tm.Decompose())
	}
	return tm
}

func copyRotation(c *Constraint, om, tm *geom.Matrix4) *geom.Matrix4 {
	loc, orot, size := om.Decompose()
	own := geom.NewEulerFromQuaternion(orot, c.EulerOrder).ToArray()
	eul := geom.NewEulerFromMatrix4(tm, c.EulerOrder).ToArray()

	use := [3]bool{c.UseX, c.UseY, c.UseZ}
	inv := [3]bool{c.InvertX, c.InvertY, c.InvertZ}
	for i := range eul {
		if !use[i] {
			if c.MixMode == MixReplace {
				eul[i] = own[i]
			} else {
				eul[i] = 0
			}
			continue
		}
		if inv[i] {
			eul[i] = -eul[i]
		}
	}

	var rot *geom.Quaternion
	switch c.MixMode {
	case MixAdd, MixOffset:
		rot = geom.NewEuler(eul[0]+own[0], eul[1]+own[1], eul[2]+own[2], c.EulerOrder).ToQuaternion()
	case MixBefore:
		rot = geom.NewEuler(eul[0], eul[1], eul[2], c.EulerOrder).ToQuaternion().Mul(orot)
	case MixAfter:
		rot = orot.Mul(geom.NewEuler(eul[0], eul[1], eul[2], c.EulerOrder).ToQuaternion())
	default:
		rot = geom.NewEuler(eul[0], eul[1], eul[2], c.EulerOrder).ToQuaternion()
	}
	return geom.NewTRSMatrix4(loc, rot, size)
}

func copyLocation(c *Constraint, om, tm *geom.Matrix4) *geom.Matrix4 {
	own := om.Translation().ToArray()
	t := tm.Translation().ToArray()
	use := [3]bool{c.UseX, c.UseY, c.UseZ}
	inv := [3]bool{c.InvertX, c.InvertY, c.InvertZ}
	out := own
	for i := range out {
		if !use[i] {
			continue
		}
		v := t[i]
		if inv[i] {
			v = -v
		}
		if c.UseOffset {
			v += own[i]
		}
		out[i] = v
	}
	return om.WithTranslation(geom.NewVector3FromArray(out))
}

func copyTransforms(c *Constraint, om, tm *geom.Matrix4) *geom.Matrix4 {
	switch c.MixMode {
	case MixBefore:
		return tm.Mul(om)
	case MixAfter:
		return om.Mul(tm)
	default:
		return tm.Clone()
	}
}
