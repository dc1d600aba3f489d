// Package scene is an in-memory model of the host's scene: objects addressed
// by generation-stamped handles, collections, modifiers and data blocks.
package scene

import (
	"errors"
	"fmt"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
)

var (
	ErrGone        = errors.New("object no longer exists")
	ErrParentCycle = errors.New("parenting would form a cycle")
)

type Kind int

const (
	KindEmpty Kind = iota
	KindArmature
	KindMesh
	KindCurve
)

func (k Kind) String() string {
	switch k {
	case KindArmature:
		return "ARMATURE"
	case KindMesh:
		return "MESH"
	case KindCurve:
		return "CURVE"
	default:
		return "EMPTY"
	}
}

// Handle refers to an object. A handle outlives its object: Get reports
// false once the object has been removed, even if the slot was reused.
type Handle struct {
	index int
	gen   uint32
}

func (h Handle) IsZero() bool {
	return h.gen == 0
}

type AnimationData struct {
	Action    string
	NLATracks []string
}

type Object struct {
	Name string
	Kind Kind

	// Local is the transform relative to the parent after ParentInverse.
	Local         geom.Matrix4
	ParentInverse geom.Matrix4

	Armature *armature.Armature
	Mesh     *Mesh
	Curve    *Curve

	Modifiers []*Modifier
	Animation *AnimationData
	Hidden    bool

	handle Handle
	parent Handle
	rig    *RigInfo
}

func NewObject(name string, kind Kind) *Object {
	return &Object{
		Name:          name,
		Kind:          kind,
		Local:         *geom.NewMatrix4(),
		ParentInverse: *geom.NewMatrix4(),
	}
}

func NewArmatureObject(arm *armature.Armature) *Object {
	o := NewObject(arm.Name, KindArmature)
	o.Armature = arm
	o.Local = arm.World
	return o
}

func NewMeshObject(name string, mesh *Mesh) *Object {
	o := NewObject(name, KindMesh)
	o.Mesh = mesh
	return o
}

func NewCurveObject(name string, curve *Curve) *Object {
	o := NewObject(name, KindCurve)
	o.Curve = curve
	return o
}

func (o *Object) Handle() Handle {
	return o.handle
}

// Rig returns the rig metadata, if any was assigned.
func (o *Object) Rig() (RigInfo, bool) {
	if o.rig == nil {
		return RigInfo{}, false
	}
	return *o.rig, true
}

// SetRig validates and assigns rig metadata.
func (o *Object) SetRig(info RigInfo) error {
	if o.Kind != KindArmature {
		return fmt.Errorf("%w: %s is not an armature", ErrInvalidRigInfo, o.Name)
	}
	if err := info.Validate(); err != nil {
		return err
	}
	o.rig = &info
	return nil
}

// StripAnimation drops the active action and every NLA track.
func (o *Object) StripAnimation() bool {
	if o.Animation == nil || (o.Animation.Action == "" && len(o.Animation.NLATracks) == 0) {
		return false
	}
	o.Animation.Action = ""
	o.Animation.NLATracks = nil
	return true
}

type slot struct {
	gen uint32
	obj *Object
}

// Scene owns every object. It is passed explicitly to every operation.
type Scene struct {
	Root      *Collection
	Materials []*Material
	Images    []*Image
	Pins      []Handle

	slots []slot
}

func New() *Scene {
	return &Scene{Root: &Collection{Name: "Scene Collection"}}
}

// Add registers o and links it into col (the root collection when nil).
// The object's name is made unique.
func (s *Scene) Add(o *Object, col *Collection) Handle {
	o.Name = armature.UniqueName(o.Name, func(n string) bool {
		_, ok := s.Find(n)
		return ok
	})
	if o.Kind == KindArmature && o.Armature != nil {
		o.Armature.Name = o.Name
	}
	idx := -1
	for i, sl := range s.slots {
		if sl.obj == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.slots = append(s.slots, slot{})
		idx = len(s.slots) - 1
	}
	s.slots[idx].gen++
	s.slots[idx].obj = o
	o.handle = Handle{index: idx, gen: s.slots[idx].gen}
	if col == nil {
		col = s.Root
	}
	col.Link(o.handle)
	s.Update()
	return o.handle
}

// Get returns the object for h, or false when it is gone.
func (s *Scene) Get(h Handle) (*Object, bool) {
	if h.gen == 0 || h.index < 0 || h.index >= len(s.slots) {
		return nil, false
	}
	sl := s.slots[h.index]
	if sl.obj == nil || sl.gen != h.gen {
		return nil, false
	}
	return sl.obj, true
}

func (s *Scene) Alive(h Handle) bool {
	_, ok := s.Get(h)
	return ok
}

// Live filters out handles whose objects are gone.
func (s *Scene) Live(hs []Handle) []Handle {
	var r []Handle
	for _, h := range hs {
		if s.Alive(h) {
			r = append(r, h)
		}
	}
	return r
}

// Objects returns every live object in slot order.
func (s *Scene) Objects() []*Object {
	var r []*Object
	for _, sl := range s.slots {
		if sl.obj != nil {
			r = append(r, sl.obj)
		}
	}
	return r
}

func (s *Scene) Find(name string) (*Object, bool) {
	for _, sl := range s.slots {
		if sl.obj != nil && sl.obj.Name == name {
			return sl.obj, true
		}
	}
	return nil, false
}

// Rename gives the object name, suffixed if another object holds it.
func (s *Scene) Rename(h Handle, name string) (string, error) {
	o, ok := s.Get(h)
	if !ok {
		return "", ErrGone
	}
	if o.Name == name {
		return name, nil
	}
	o.Name = armature.UniqueName(name, func(n string) bool {
		other, ok := s.Find(n)
		return ok && other != o
	})
	if o.Armature != nil {
		o.Armature.Name = o.Name
	}
	return o.Name, nil
}

// Remove deletes the object. Children are unparented keeping their world
// transform and every collection link is dropped.
func (s *Scene) Remove(h Handle) error {
	o, ok := s.Get(h)
	if !ok {
		return ErrGone
	}
	for _, c := range s.Children(h) {
		_ = s.ClearParent(c.handle, true)
	}
	s.Root.unlinkAll(h)
	s.slots[h.index].obj = nil
	o.handle = Handle{}
	s.CleanupPins()
	return nil
}

func (s *Scene) Parent(h Handle) (*Object, bool) {
	o, ok := s.Get(h)
	if !ok {
		return nil, false
	}
	return s.Get(o.parent)
}

func (s *Scene) Children(h Handle) []*Object {
	var r []*Object
	for _, o := range s.Objects() {
		if o.parent == h {
			r = append(r, o)
		}
	}
	return r
}

func (s *Scene) WorldMatrix(o *Object) *geom.Matrix4 {
	if p, ok := s.Get(o.parent); ok {
		return s.WorldMatrix(p).Mul(&o.ParentInverse).Mul(&o.Local)
	}
	return o.Local.Clone()
}

// SetParent parents child to parent. With keepTransform the parent inverse
// is set to the inverse of the parent's world matrix.
func (s *Scene) SetParent(child, parent Handle, keepTransform bool) error {
	c, ok := s.Get(child)
	if !ok {
		return ErrGone
	}
	p, ok := s.Get(parent)
	if !ok {
		return ErrGone
	}
	for q := p; q != nil; q, _ = s.Get(q.parent) {
		if q == c {
			return fmt.Errorf("%w: %s -> %s", ErrParentCycle, c.Name, p.Name)
		}
	}
	c.parent = parent
	if keepTransform {
		c.ParentInverse = *s.WorldMatrix(p).Inverse()
	}
	s.Update()
	return nil
}

// ClearParent removes the parent, keeping the world transform when asked.
func (s *Scene) ClearParent(h Handle, keepTransform bool) error {
	o, ok := s.Get(h)
	if !ok {
		return ErrGone
	}
	if keepTransform {
		o.Local = *s.WorldMatrix(o)
	}
	o.parent = Handle{}
	o.ParentInverse = *geom.NewMatrix4()
	s.Update()
	return nil
}

// SetLocal replaces the local transform of h.
func (s *Scene) SetLocal(h Handle, m *geom.Matrix4) error {
	o, ok := s.Get(h)
	if !ok {
		return ErrGone
	}
	o.Local = *m
	s.Update()
	return nil
}

// Update propagates object transforms into armature world matrices.
func (s *Scene) Update() {
	for _, o := range s.Objects() {
		if o.Armature != nil {
			o.Armature.World = *s.WorldMatrix(o)
		}
	}
}

// Armatures returns every armature object.
func (s *Scene) Armatures() []*Object {
	var r []*Object
	for _, o := range s.Objects() {
		if o.Kind == KindArmature && o.Armature != nil {
			r = append(r, o)
		}
	}
	return r
}

// ArmatureObject finds the object owning arm.
func (s *Scene) ArmatureObject(arm *armature.Armature) (*Object, bool) {
	for _, o := range s.Armatures() {
		if o.Armature == arm {
			return o, true
		}
	}
	return nil, false
}
