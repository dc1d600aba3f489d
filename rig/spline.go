package rig

import (
	"fmt"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
	"github.com/mektools/rigtools/scene"
)

const (
	TailCurveName  = "TailCurve"
	TailTargetName = "IK_Target_Tail"
	TailPoleName   = "Pole_Target_Tail"
)

// TailBones are the tail bones of the game skeleton, root to tip.
var TailBones = []string{"n_sippo_a", "n_sippo_b", "n_sippo_c", "n_sippo_d", "n_sippo_e"}

type TailRig struct {
	IKBones      []string
	ControlBones []string
	SplineBones  []string
	Curve        scene.Handle
}

// GenerateTailSplineIK builds a spline IK tail on the armature object h:
// an IK chain along the reference bones with a target and pole, control
// bones that drive a hooked bezier curve, a spline IK chain following the
// curve, and Copy Rotation constraints from each reference bone to its
// spline bone. The last reference bone follows the IK target.
func GenerateTailSplineIK(s *scene.Scene, h scene.Handle, refs []string, curveName string) (*TailRig, error) {
	o, ok := s.Get(h)
	if !ok {
		return nil, scene.ErrGone
	}
	a := o.Armature
	if a == nil {
		return nil, fmt.Errorf("%s is not an armature", o.Name)
	}
	if len(refs) < 3 {
		return nil, fmt.Errorf("spline tail needs at least 3 bones, got %d", len(refs))
	}
	heads := make([]*geom.Vector3, len(refs))
	for i, n := range refs {
		b := a.Bone(n)
		if b == nil {
			return nil, fmt.Errorf("%w: %s", armature.ErrBoneNotFound, n)
		}
		heads[i] = b.Head()
	}
	n := len(refs)
	last := n - 1
	rig := &TailRig{}

	add := func(name string, head, tail *geom.Vector3, parent *armature.Bone) (*armature.Bone, error) {
		b := armature.NewBoneFromHeadTail(name, head, tail, 0)
		if err := a.AddBone(b, parent); err != nil {
			return nil, err
		}
		return b, nil
	}

	// IK chain, bending slightly towards -Y so the solver has a preferred side.
	offset := geom.NewVector3(0, -0.005, 0)
	var ikBones []*armature.Bone
	var prev *armature.Bone
	for i := 0; i < last; i++ {
		f := float64(last-i) / float64(last)
		tail := heads[i+1].Add(offset.Scale(1 - f*f))
		b, err := add("IK_bone_"+refs[i], heads[i], tail, prev)
		if err != nil {
			return nil, err
		}
		ikBones = append(ikBones, b)
		rig.IKBones = append(rig.IKBones, b.Name)
		prev = b
	}

	up := geom.NewVector3(0, 0.1, 0)
	target, err := add(TailTargetName, heads[last], heads[last].Add(up), nil)
	if err != nil {
		return nil, err
	}
	poleHead := heads[2].Add(geom.NewVector3(0, 0.3, 0))
	if _, err := add(TailPoleName, poleHead, poleHead.Add(up), nil); err != nil {
		return nil, err
	}

	if len(ikBones) > 1 {
		ik := armature.NewConstraint(armature.IK, a, TailTargetName)
		ik.PoleTarget, ik.PoleSubtarget = a, TailPoleName
		ik.ChainCount = len(ikBones)
		ik.PoleAngle = geom.Radians(90)
		ikBones[len(ikBones)-1].AddConstraint(ik)
	}

	for i, ref := range refs {
		rb := a.Bone(ref)
		parent := target
		if i < last {
			parent = ikBones[i]
		}
		b, err := add("SplineCtrl_bone_"+ref, rb.Head(), rb.Tail(), parent)
		if err != nil {
			return nil, err
		}
		rig.ControlBones = append(rig.ControlBones, b.Name)
	}

	curve := &scene.Curve{Dimensions3D: true}
	for _, hd := range heads {
		curve.Points = append(curve.Points, scene.BezierPoint{Co: *a.World.ApplyTo(hd), AutoHandles: true})
	}
	curve.RecalcHandles()
	co := scene.NewCurveObject(curveName, curve)
	for i, ctrl := range rig.ControlBones {
		co.AddModifier(&scene.Modifier{
			Name:      "Hook_" + ctrl,
			Kind:      scene.ModifierHook,
			Object:    h,
			Subtarget: ctrl,
			Points:    []int{i},
		})
	}
	rig.Curve = s.Add(co, s.CollectionOf(h))

	// The tip has no following head, so the spline chain ends one bone early.
	prev = nil
	for i := 0; i < last; i++ {
		b, err := add("SplineIK_bone_"+refs[i], heads[i], heads[i+1], prev)
		if err != nil {
			return nil, err
		}
		rig.SplineBones = append(rig.SplineBones, b.Name)
		prev = b
	}
	sik := armature.NewConstraint(armature.SplineIK, nil, "")
	sik.Curve = co.Name
	sik.ChainCount = len(rig.SplineBones)
	sik.UseEvenDivisions = true
	sik.YScaleMode = armature.ScaleBoneOriginal
	sik.XZScaleMode = armature.ScaleBoneOriginal
	prev.AddConstraint(sik)

	for i, ref := range refs {
		sub := TailTargetName
		if i < last {
			sub = rig.SplineBones[i]
		}
		c := armature.NewConstraint(armature.CopyRotation, a, sub)
		c.TargetSpace = armature.SpaceLocalOwnerOrient
		c.OwnerSpace = armature.SpaceLocal
		c.MixMode = armature.MixAfter
		c.EulerOrder = geom.RotationOrderZXY
		a.Bone(ref).AddConstraint(c)
	}
	return rig, nil
}
