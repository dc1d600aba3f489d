package pose

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
)

var ErrNothingSelected = errors.New("no bones selected")

// CollectionReset names bone collections whose rotations return to identity
// after a pose is applied. Without Force only bones that carry a Copy-*
// constraint are reset.
type CollectionReset struct {
	Names []string
	Force bool
}

var DefaultResets = []CollectionReset{
	{Names: []string{"Base Bones", "DT Face Bones"}},
	{Names: []string{"IK MCH Bones", "Mouth Controls"}, Force: true},
}

type ApplyOptions struct {
	Root string
	// Fields defaults to RotationOnly.
	Fields Fields
	// Resets defaults to DefaultResets. Use an empty slice to skip.
	Resets []CollectionReset
	// KeepMuted leaves constraints that were muted before Apply muted.
	// By default every constraint is enabled afterwards.
	KeepMuted bool
}

type Result struct {
	// Applied lists the bones posed from the record.
	Applied []string
	// Missing lists record keys without a matching bone.
	Missing []string
	// Reversed lists the bones that received a baked constraint reversal.
	Reversed []string
	// Poles lists the pole bones that were moved.
	Poles []string
}

// Apply poses a from rec. The root bone is resolved before anything is
// touched; a missing root leaves the armature unchanged.
func Apply(rec *Record, a *armature.Armature, opts ApplyOptions) (*Result, error) {
	if rec == nil || rec.Bones == nil {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidFile)
	}
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
		fields = RotationOnly
	}
	resets := opts.Resets
	if resets == nil {
		resets = DefaultResets
	}

	res := &Result{}
	a.ResetPose()
	rootPose := a.PoseMatrix(root)

	muted := muteAll(a)

	used := map[string]bool{}
	for _, b := range a.HierarchyOrder() {
		t, ok := rec.Lookup(b.Name)
		if !ok {
			continue
		}
		used[armature.StripSuffix(b.Name)] = true
		if assign(a, b, t, rootPose, fields) {
			res.Applied = append(res.Applied, b.Name)
		}
	}
	for key := range rec.Bones {
		if !used[key] {
			res.Missing = append(res.Missing, key)
		}
	}
	sort.Strings(res.Missing)
	for _, key := range res.Missing {
		slog.Warn("bone not found in armature", "bone", key)
	}

	res.Reversed = ReverseConstraints(a)
	res.Poles = SetPoleTargets(a)
	if opts.KeepMuted {
		muted.restore()
	} else {
		muted.enable()
	}

	for _, r := range resets {
		ResetCollections(a, r.Names, r.Force)
	}
	root.Rotation = *geom.NewIdentityQuaternion()
	return res, nil
}

// assign poses b so that its transform relative to the root matrix matches
// the requested fields of t. Fields not requested keep their current value.
func assign(a *armature.Armature, b *armature.Bone, t *Transform, root *geom.Matrix4, fields Fields) bool {
	pos, rot, scale := root.Inverse().Mul(a.PoseMatrix(b)).Decompose()
	changed := false
	if fields.Position && t.Position != nil {
		pos, changed = t.Position, true
	}
	if fields.Rotation && t.Rotation != nil {
		rot, changed = t.Rotation, true
	}
	if fields.Scale && t.Scale != nil {
		scale, changed = t.Scale, true
	}
	if changed {
		a.SetPoseMatrix(b, root.Mul(geom.NewTRSMatrix4(pos, rot, scale)))
	}
	return changed
}

type muteState map[*armature.Constraint]bool

// muteAll mutes every constraint and remembers the previous state.
func muteAll(a *armature.Armature) muteState {
	m := muteState{}
	for _, b := range a.Bones() {
		for _, c := range b.Constraints {
			m[c] = c.Mute
			c.Mute = true
		}
	}
	return m
}

func (m muteState) restore() {
	for c, mute := range m {
		c.Mute = mute
	}
}

func (m muteState) enable() {
	for c := range m {
		c.Mute = false
	}
}

// ReverseConstraints bakes every Copy-* relationship backwards: for a bone
// whose constraint copies a target, the target temporarily copies the bone
// with the same settings and that visual transform is applied to it. All
// other constraints of a and of the target's armature are muted during the
// bake. Bones are visited parents first.
func ReverseConstraints(a *armature.Armature) []string {
	var baked []string
	for _, b := range a.HierarchyOrder() {
		for _, c := range b.Constraints {
			if !c.Type.IsCopy() {
				continue
			}
			target := c.TargetBone()
			if target == nil {
				slog.Warn("constraint has no valid target", "bone", b.Name, "constraint", c.Name)
				continue
			}
			if target == b {
				continue
			}
			ta := target.Armature()
			muted := muteAll(a)
			if ta != a {
				for k, m := range muteAll(ta) {
					muted[k] = m
				}
			}
			tmp := target.AddConstraint(c.Reversed(b))
			ta.ApplyVisualTransform(target)
			target.RemoveConstraint(tmp)
			muted.restore()
			baked = append(baked, target.Name)
		}
	}
	return baked
}

// SetPoleTargets moves the pole bone of every IK constraint to the head of
// the bone carrying it. Only the position changes.
func SetPoleTargets(a *armature.Armature) []string {
	var moved []string
	for _, b := range a.HierarchyOrder() {
		for _, c := range b.Constraints {
			if c.Type != armature.IK {
				continue
			}
			pole := c.PoleBone()
			if pole == nil {
				slog.Debug("IK constraint without pole target", "bone", b.Name, "constraint", c.Name)
				continue
			}
			pa := pole.Armature()
			head := pa.World.Inverse().ApplyTo(a.WorldMatrix(b).Translation())
			pa.SetPoseMatrix(pole, pa.PoseMatrix(pole).WithTranslation(head))
			moved = append(moved, pole.Name)
		}
	}
	return moved
}

// ResetCollections returns the rotation of bones in the named collections to
// identity. Hidden collections are made visible. It returns the number of
// bones reset.
func ResetCollections(a *armature.Armature, names []string, force bool) int {
	n := 0
	for _, name := range names {
		col := a.Collection(name)
		if col == nil {
			slog.Debug("bone collection not found", "collection", name)
			continue
		}
		col.Visible = true
		for _, b := range col.Bones() {
			if force || b.HasCopyConstraint() {
				b.Rotation = *geom.NewIdentityQuaternion()
				n++
			}
		}
	}
	return n
}

// RootDiff returns the orientation of the root bone with an identity basis.
func RootDiff(a *armature.Armature, rootName string) (*geom.Quaternion, error) {
	root := findBone(a, rootName)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, rootName)
	}
	_, q, _ := armature.NewEvaluator().ParentFrame(root).Decompose()
	return q, nil
}

// LoadBone applies the recorded rotation of a single bone, composed with
// diff. Both the bone and the record entry are matched without suffix.
func LoadBone(rec *Record, a *armature.Armature, name string, diff *geom.Quaternion) error {
	key := armature.StripSuffix(name)
	b := findBone(a, key)
	if b == nil {
		return fmt.Errorf("%w: %s", armature.ErrBoneNotFound, key)
	}
	t, ok := rec.Lookup(key)
	if !ok || t.Rotation == nil {
		return fmt.Errorf("%w: %s has no rotation in the pose", armature.ErrBoneNotFound, key)
	}
	assign(a, b, t, geom.NewRotationMatrix4FromQuaternion(diff), RotationOnly)
	return nil
}

// Reset clears the pose of every bone.
func Reset(a *armature.Armature) {
	a.ResetPose()
}

// ResetSelected clears the pose of the named bones.
func ResetSelected(a *armature.Armature, names []string) error {
	n := 0
	for _, name := range names {
		b := a.Bone(name)
		if b == nil {
			slog.Warn("bone not found", "bone", name)
			continue
		}
		b.ResetPose()
		n++
	}
	if n == 0 {
		return ErrNothingSelected
	}
	return nil
}

// ImportFile reads and applies a pose file. Every bone collection is shown
// while the pose is applied and its visibility restored afterwards. The file
// is validated before the armature is touched.
func ImportFile(path string, a *armature.Armature, opts ApplyOptions) (*Result, error) {
	rec, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	visible := make(map[*armature.BoneCollection]bool, len(a.Collections))
	for _, c := range a.Collections {
		visible[c] = c.Visible
		c.Visible = true
	}
	defer func() {
		for c, v := range visible {
			c.Visible = v
		}
	}()
	return Apply(rec, a, opts)
}
