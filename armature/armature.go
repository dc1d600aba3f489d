package armature

import (
	"errors"
	"fmt"
	"math"

	"github.com/mektools/rigtools/geom"
)

var (
	ErrBoneNotFound  = errors.New("bone not found")
	ErrDuplicateBone = errors.New("duplicate bone name")
	ErrCycle         = errors.New("parent chain would form a cycle")
	ErrForeignBone   = errors.New("bone belongs to another armature")
)

const defaultBoneLength = 0.1

type Bone struct {
	Name string

	// Rest is the rest transform in armature space. The translation is the
	// head and the Y axis points at the tail.
	Rest   geom.Matrix4
	Length geom.Element

	// Pose basis, relative to the rest pose.
	Location geom.Vector3
	Rotation geom.Quaternion
	Scale    geom.Vector3

	Constraints []*Constraint

	CustomShape string
	Palette     string

	parent   *Bone
	children []*Bone
	armature *Armature
}

func NewBone(name string, rest *geom.Matrix4, length geom.Element) *Bone {
	if length <= 0 {
		length = defaultBoneLength
	}
	return &Bone{
		Name:     name,
		Rest:     *rest,
		Length:   length,
		Rotation: geom.Quaternion{W: 1},
		Scale:    geom.Vector3{X: 1, Y: 1, Z: 1},
	}
}

// NewBoneFromHeadTail builds a bone whose Y axis runs from head to tail,
// rolled by roll radians around that axis.
func NewBoneFromHeadTail(name string, head, tail *geom.Vector3, roll geom.Element) *Bone {
	dir := tail.Sub(head)
	length := dir.Len()
	return NewBone(name, restFromDirection(head, dir, roll), length)
}

func restFromDirection(head, dir *geom.Vector3, roll geom.Element) *geom.Matrix4 {
	y := geom.NewVector3(0, 1, 0)
	nor := *dir
	nor.Normalize()

	var align *geom.Quaternion
	axis := y.Cross(&nor)
	switch {
	case axis.Len() > 1e-9:
		align = geom.NewQuaternionFromAxisAngle(axis, math.Acos(geom.Clamp(y.Dot(&nor), -1, 1)))
	case nor.Y < 0:
		align = geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), math.Pi)
	default:
		align = geom.NewIdentityQuaternion()
	}
	if roll != 0 {
		align = geom.NewQuaternionFromAxisAngle(&nor, roll).Mul(align)
	}
	return geom.NewTRSMatrix4(head, align, geom.NewVector3(1, 1, 1))
}

func (b *Bone) Parent() *Bone {
	return b.parent
}

func (b *Bone) Children() []*Bone {
	return append([]*Bone(nil), b.children...)
}

func (b *Bone) Armature() *Armature {
	return b.armature
}

func (b *Bone) Head() *geom.Vector3 {
	return b.Rest.Translation()
}

func (b *Bone) Tail() *geom.Vector3 {
	return b.Head().Add(b.Rest.Axis(1).Normalize().Scale(b.Length))
}

// SetHeadTail moves the bone in rest space keeping its roll around the new axis.
func (b *Bone) SetHeadTail(head, tail *geom.Vector3, roll geom.Element) {
	dir := tail.Sub(head)
	b.Rest = *restFromDirection(head, dir, roll)
	b.Length = dir.Len()
}

// RestRelative returns the rest transform relative to the parent's rest.
func (b *Bone) RestRelative() *geom.Matrix4 {
	if b.parent == nil {
		return b.Rest.Clone()
	}
	return b.parent.Rest.Inverse().Mul(&b.Rest)
}

func (b *Bone) Basis() *geom.Matrix4 {
	return geom.NewTRSMatrix4(&b.Location, &b.Rotation, &b.Scale)
}

// SetBasis decomposes m into the bone's location, rotation and scale.
func (b *Bone) SetBasis(m *geom.Matrix4) {
	t, r, s := m.Decompose()
	b.Location, b.Rotation, b.Scale = *t, *r, *s
}

func (b *Bone) ResetPose() {
	b.Location = geom.Vector3{}
	b.Rotation = geom.Quaternion{W: 1}
	b.Scale = geom.Vector3{X: 1, Y: 1, Z: 1}
}

func (b *Bone) IsAncestorOf(o *Bone) bool {
	for p := o.parent; p != nil; p = p.parent {
		if p == b {
			return true
		}
	}
	return false
}

// Constraint returns the first constraint of type t, or nil.
func (b *Bone) Constraint(t ConstraintType) *Constraint {
	for _, c := range b.Constraints {
		if c.Type == t {
			return c
		}
	}
	return nil
}

func (b *Bone) AddConstraint(c *Constraint) *Constraint {
	if c.Name == "" {
		c.Name = c.Type.DisplayName()
	}
	c.Name = UniqueName(c.Name, func(n string) bool {
		for _, o := range b.Constraints {
			if o.Name == n {
				return true
			}
		}
		return false
	})
	b.Constraints = append(b.Constraints, c)
	return c
}

func (b *Bone) RemoveConstraint(c *Constraint) bool {
	for i, o := range b.Constraints {
		if o == c {
			b.Constraints = append(b.Constraints[:i], b.Constraints[i+1:]...)
			return true
		}
	}
	return false
}

// HasCopyConstraint reports whether any Copy-* constraint is attached.
func (b *Bone) HasCopyConstraint() bool {
	for _, c := range b.Constraints {
		if c.Type.IsCopy() {
			return true
		}
	}
	return false
}

type BoneCollection struct {
	Name    string
	Visible bool
	Parent  string
	bones   []*Bone
}

func (c *BoneCollection) Bones() []*Bone {
	return append([]*Bone(nil), c.bones...)
}

func (c *BoneCollection) Contains(b *Bone) bool {
	for _, o := range c.bones {
		if o == b {
			return true
		}
	}
	return false
}

func (c *BoneCollection) Assign(b *Bone) {
	if !c.Contains(b) {
		c.bones = append(c.bones, b)
	}
}

func (c *BoneCollection) Unassign(b *Bone) {
	for i, o := range c.bones {
		if o == b {
			c.bones = append(c.bones[:i], c.bones[i+1:]...)
			return
		}
	}
}

type Armature struct {
	Name string
	// World is the object-to-world transform of the owning object.
	World       geom.Matrix4
	Collections []*BoneCollection

	bones  []*Bone
	byName map[string]*Bone
}

func New(name string) *Armature {
	return &Armature{
		Name:   name,
		World:  *geom.NewMatrix4(),
		byName: map[string]*Bone{},
	}
}

func (a *Armature) Bone(name string) *Bone {
	return a.byName[name]
}

// Bones returns the bones in insertion order.
func (a *Armature) Bones() []*Bone {
	return append([]*Bone(nil), a.bones...)
}

func (a *Armature) Len() int {
	return len(a.bones)
}

func (a *Armature) Names() map[string]bool {
	names := make(map[string]bool, len(a.bones))
	for _, b := range a.bones {
		names[b.Name] = true
	}
	return names
}

// AddBone adds b under parent (nil for a root).
func (a *Armature) AddBone(b *Bone, parent *Bone) error {
	if _, ok := a.byName[b.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBone, b.Name)
	}
	if b.armature != nil {
		return fmt.Errorf("%w: %s", ErrForeignBone, b.Name)
	}
	if parent != nil && parent.armature != a {
		return fmt.Errorf("%w: parent %s", ErrForeignBone, parent.Name)
	}
	b.armature = a
	a.bones = append(a.bones, b)
	a.byName[b.Name] = b
	if parent != nil {
		b.parent = parent
		parent.children = append(parent.children, b)
	}
	return nil
}

// RemoveBone deletes b. Its children become roots.
func (a *Armature) RemoveBone(b *Bone) {
	if b.armature != a {
		return
	}
	for _, c := range b.children {
		c.parent = nil
	}
	b.children = nil
	a.detach(b)
	for i, o := range a.bones {
		if o == b {
			a.bones = append(a.bones[:i], a.bones[i+1:]...)
			break
		}
	}
	delete(a.byName, b.Name)
	for _, c := range a.Collections {
		c.Unassign(b)
	}
	b.armature = nil
}

func (a *Armature) detach(b *Bone) {
	if p := b.parent; p != nil {
		for i, c := range p.children {
			if c == b {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	b.parent = nil
}

// SetParent re-parents b in rest space; rest matrices are unchanged.
func (a *Armature) SetParent(b, parent *Bone) error {
	if b.armature != a || (parent != nil && parent.armature != a) {
		return ErrForeignBone
	}
	if parent == b || (parent != nil && b.IsAncestorOf(parent)) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, b.Name, parent.Name)
	}
	a.detach(b)
	if parent != nil {
		b.parent = parent
		parent.children = append(parent.children, b)
	}
	return nil
}

func (a *Armature) Rename(b *Bone, name string) error {
	if b.armature != a {
		return ErrForeignBone
	}
	if name == b.Name {
		return nil
	}
	if _, ok := a.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBone, name)
	}
	delete(a.byName, b.Name)
	b.Name = name
	a.byName[name] = b
	return nil
}

func (a *Armature) Roots() []*Bone {
	var roots []*Bone
	for _, b := range a.bones {
		if b.parent == nil {
			roots = append(roots, b)
		}
	}
	return roots
}

// HierarchyOrder returns every bone so that a parent precedes its children.
func (a *Armature) HierarchyOrder() []*Bone {
	order := make([]*Bone, 0, len(a.bones))
	var walk func(b *Bone)
	walk = func(b *Bone) {
		order = append(order, b)
		for _, c := range b.children {
			walk(c)
		}
	}
	for _, r := range a.Roots() {
		walk(r)
	}
	return order
}

// Collection returns the named bone collection or nil.
func (a *Armature) Collection(name string) *BoneCollection {
	for _, c := range a.Collections {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// EnsureCollection returns the named collection, creating a visible one if needed.
func (a *Armature) EnsureCollection(name string) *BoneCollection {
	if c := a.Collection(name); c != nil {
		return c
	}
	c := &BoneCollection{Name: name, Visible: true}
	a.Collections = append(a.Collections, c)
	return c
}

func (a *Armature) RemoveCollection(name string) {
	for i, c := range a.Collections {
		if c.Name == name {
			a.Collections = append(a.Collections[:i], a.Collections[i+1:]...)
			return
		}
	}
}

func (a *Armature) CollectionsOf(b *Bone) []*BoneCollection {
	var r []*BoneCollection
	for _, c := range a.Collections {
		if c.Contains(b) {
			r = append(r, c)
		}
	}
	return r
}

// ResetPose clears the pose basis of every bone.
func (a *Armature) ResetPose() {
	for _, b := range a.bones {
		b.ResetPose()
	}
}

// Clone returns a deep copy. Constraints that target a itself target the copy.
func (a *Armature) Clone() *Armature {
	c := New(a.Name)
	c.World = a.World
	for _, b := range a.bones {
		nb := *b
		nb.parent, nb.children, nb.armature = nil, nil, nil
		nb.Constraints = make([]*Constraint, len(b.Constraints))
		for i, con := range b.Constraints {
			nb.Constraints[i] = con.Clone()
		}
		_ = c.AddBone(&nb, nil)
	}
	for _, b := range a.bones {
		if b.parent != nil {
			_ = c.SetParent(c.byName[b.Name], c.byName[b.parent.Name])
		}
	}
	for _, b := range c.bones {
		for _, con := range b.Constraints {
			con.RetargetArmature(a, c)
		}
	}
	for _, col := range a.Collections {
		nc := c.EnsureCollection(col.Name)
		nc.Visible = col.Visible
		nc.Parent = col.Parent
		for _, b := range col.bones {
			nc.Assign(c.byName[b.Name])
		}
	}
	return c
}
