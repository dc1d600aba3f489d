package rig

import (
	"log/slog"
	"strings"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/scene"
)

const (
	HairShape   = "cs.hair"
	HairPalette = "THEME01"
)

var (
	HairKeywords    = []string{"j_ex", "j_kami"}
	PhysicsKeywords = []string{"phys"}
	IVCSKeywords    = []string{"iv_"}

	// PoleBones are the IK pole targets of the Mekrig limbs.
	PoleBones = []string{"IK_Arm_Pole.R", "IK_Arm_Pole.L", "IK_Leg_Pole.R", "IK_Leg_Pole.L"}
)

// AssignBonesToCollection adds every bone whose name contains one of the
// keywords to the named collection, creating it if needed. Nil keywords
// select every bone. The collection's visibility is set either way.
func AssignBonesToCollection(a *armature.Armature, name string, visible bool, keywords []string) []string {
	col := a.EnsureCollection(name)
	var assigned []string
	for _, b := range a.Bones() {
		if keywords != nil && !containsAny(b.Name, keywords) {
			continue
		}
		col.Assign(b)
		assigned = append(assigned, b.Name)
	}
	col.Visible = visible
	return assigned
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SetBoneDisplay sets the custom shape and colour palette of the named
// bones. The shape is only used when an object of that name exists.
func SetBoneDisplay(s *scene.Scene, a *armature.Armature, bones []string, shape, palette string) {
	if shape != "" {
		if _, ok := s.Find(shape); !ok {
			slog.Debug("custom shape object not found", "shape", shape)
			shape = ""
		}
	}
	for _, n := range bones {
		b := a.Bone(n)
		if b == nil {
			continue
		}
		if shape != "" {
			b.CustomShape = shape
		}
		if palette != "" {
			b.Palette = palette
		}
	}
}

// RemoveCustomShapes clears the custom shape of every bone.
func RemoveCustomShapes(a *armature.Armature) int {
	n := 0
	for _, b := range a.Bones() {
		if b.CustomShape != "" {
			b.CustomShape = ""
			n++
		}
	}
	return n
}

// RemovePoleParents unparents the limb pole bones in rest space.
func RemovePoleParents(a *armature.Armature) []string {
	var r []string
	for _, n := range PoleBones {
		b := a.Bone(n)
		if b == nil || b.Parent() == nil {
			continue
		}
		if err := a.SetParent(b, nil); err == nil {
			r = append(r, n)
		}
	}
	return r
}
