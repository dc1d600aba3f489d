package armature

import (
	"fmt"

	"github.com/mektools/rigtools/geom"
)

type ConstraintType int

const (
	CopyRotation ConstraintType = iota
	CopyLocation
	CopyTransforms
	IK
	SplineIK
)

var constraintTypeNames = [...]string{"COPY_ROTATION", "COPY_LOCATION", "COPY_TRANSFORMS", "IK", "SPLINE_IK"}
var constraintDisplayNames = [...]string{"Copy Rotation", "Copy Location", "Copy Transforms", "IK", "Spline IK"}

func (t ConstraintType) String() string {
	return constraintTypeNames[t]
}

func (t ConstraintType) DisplayName() string {
	return constraintDisplayNames[t]
}

// IsCopy reports whether t copies a transform from its target.
func (t ConstraintType) IsCopy() bool {
	return t == CopyRotation || t == CopyLocation || t == CopyTransforms
}

func ParseConstraintType(s string) (ConstraintType, error) {
	for i, n := range constraintTypeNames {
		if n == s {
			return ConstraintType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown constraint type %q", s)
}

type Space int

const (
	SpaceWorld Space = iota
	SpacePose
	SpaceLocal
	SpaceLocalOwnerOrient
)

var spaceNames = [...]string{"WORLD", "POSE", "LOCAL", "LOCAL_OWNER_ORIENT"}

func (s Space) String() string {
	return spaceNames[s]
}

func ParseSpace(s string) (Space, error) {
	for i, n := range spaceNames {
		if n == s {
			return Space(i), nil
		}
	}
	return 0, fmt.Errorf("unknown space %q", s)
}

type MixMode int

const (
	MixReplace MixMode = iota
	MixAdd
	MixBefore
	MixAfter
	MixOffset
)

var mixModeNames = [...]string{"REPLACE", "ADD", "BEFORE", "AFTER", "OFFSET"}

func (m MixMode) String() string {
	return mixModeNames[m]
}

func ParseMixMode(s string) (MixMode, error) {
	// Copy Transforms spells its modes with a _FULL suffix.
	switch s {
	case "BEFORE_FULL":
		return MixBefore, nil
	case "AFTER_FULL":
		return MixAfter, nil
	}
	for i, n := range mixModeNames {
		if n == s {
			return MixMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mix mode %q", s)
}

type ScaleMode int

const (
	ScaleNone ScaleMode = iota
	ScaleFitCurve
	ScaleBoneOriginal
)

var scaleModeNames = [...]string{"NONE", "FIT_CURVE", "BONE_ORIGINAL"}

func (m ScaleMode) String() string {
	return scaleModeNames[m]
}

func ParseScaleMode(s string) (ScaleMode, error) {
	for i, n := range scaleModeNames {
		if n == s {
			return ScaleMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scale mode %q", s)
}

// Constraint is a transform operator attached to a bone. A constraint whose
// target does not resolve to a bone is inert.
type Constraint struct {
	Name      string
	Type      ConstraintType
	Target    *Armature
	Subtarget string

	TargetSpace Space
	OwnerSpace  Space
	Influence   geom.Element
	Mute        bool

	UseX, UseY, UseZ          bool
	InvertX, InvertY, InvertZ bool
	UseOffset                 bool
	MixMode                   MixMode
	EulerOrder                geom.RotationOrder
	RemoveTargetShear         bool

	// IK
	PoleTarget    *Armature
	PoleSubtarget string
	PoleAngle     geom.Element
	ChainCount    int

	// Spline IK; the curve is referenced by object name.
	Curve            string
	UseEvenDivisions bool
	YScaleMode       ScaleMode
	XZScaleMode      ScaleMode
}

// NewConstraint returns a constraint of type t with the host defaults.
func NewConstraint(t ConstraintType, target *Armature, subtarget string) *Constraint {
	return &Constraint{
		Type:        t,
		Target:      target,
		Subtarget:   subtarget,
		TargetSpace: SpaceWorld,
		OwnerSpace:  SpaceWorld,
		Influence:   1,
		UseX:        true,
		UseY:        true,
		UseZ:        true,
		ChainCount:  0,
		YScaleMode:  ScaleFitCurve,
	}
}

// TargetBone resolves the target bone, or nil when the constraint is inert.
func (c *Constraint) TargetBone() *Bone {
	if c.Target == nil || c.Subtarget == "" {
		return nil
	}
	return c.Target.Bone(c.Subtarget)
}

func (c *Constraint) PoleBone() *Bone {
	if c.PoleTarget == nil || c.PoleSubtarget == "" {
		return nil
	}
	return c.PoleTarget.Bone(c.PoleSubtarget)
}

func (c *Constraint) Clone() *Constraint {
	n := *c
	return &n
}

// RetargetArmature points every reference to from at to.
func (c *Constraint) RetargetArmature(from, to *Armature) {
	if c.Target == from {
		c.Target = to
	}
	if c.PoleTarget == from {
		c.PoleTarget = to
	}
}

// Reversed returns a constraint for target that copies owner with the same
// settings, used to bake a driven pose back onto the driver.
func (c *Constraint) Reversed(owner *Bone) *Constraint {
	r := c.Clone()
	r.Name = c.Type.DisplayName()
	r.Target = owner.Armature()
	r.Subtarget = owner.Name
	r.Mute = false
	r.PoleTarget, r.PoleSubtarget = nil, ""
	return r
}
