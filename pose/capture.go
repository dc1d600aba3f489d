package pose

import (
	"fmt"
	"log/slog"

	"github.com/mektools/rigtools/armature"
)

type CaptureOptions struct {
	Root string
	// Bones limits the capture to the named bones. Nil captures every bone.
	Bones  []string
	Fields Fields
}

// findBone resolves name exactly, then by its suffix-stripped form.
func findBone(a *armature.Armature, name string) *armature.Bone {
	if b := a.Bone(name); b != nil {
		return b
	}
	key := armature.StripSuffix(name)
	for _, b := range a.Bones() {
		if armature.StripSuffix(b.Name) == key {
			return b
		}
	}
	return nil
}

// Capture records the evaluated transform of each bone relative to the
// root bone's world transform. Keys are suffix-stripped bone names.
func Capture(a *armature.Armature, opts CaptureOptions) (*Record, error) {
	rootName := opts.Root
	if rootName == "" {
		rootName = DefaultRoot
	}
	root := findBone(a, rootName)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, rootName)
	}
	fields := opts.Fields
	if fields.IsZero() {
		fields = AllFields
	}

	bones := a.HierarchyOrder()
	if opts.Bones != nil {
		bones = nil
		for _, n := range opts.Bones {
			b := a.Bone(n)
			if b == nil {
				slog.Warn("bone not found", "bone", n)
				continue
			}
			bones = append(bones, b)
		}
	}

	e := armature.NewEvaluator()
	inv := a.World.Mul(e.PoseMatrix(root)).Inverse()
	rec := NewRecord()
	for _, b := range bones {
		rel := inv.Mul(a.World.Mul(e.PoseMatrix(b)))
		pos, rot, scale := rel.Decompose()

		key := armature.StripSuffix(b.Name)
		if _, dup := rec.Bones[key]; dup {
			slog.Warn("bones share a name after suffix removal", "bone", b.Name, "key", key)
		}
		t := &Transform{}
		if fields.Position {
			t.Position = pos
		}
		if fields.Rotation {
			t.Rotation = rot
		}
		if fields.Scale {
			t.Scale = scale
		}
		rec.Bones[key] = t
	}
	return rec, nil
}
