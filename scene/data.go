package scene

import (
	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
)

type ModifierKind int

const (
	ModifierArmature ModifierKind = iota
	ModifierHook
)

type Modifier struct {
	Name   string
	Kind   ModifierKind
	Object Handle
	// Hook modifiers follow a bone of Object and move the listed curve points.
	Subtarget string
	Points    []int
}

func (o *Object) AddModifier(m *Modifier) *Modifier {
	m.Name = armature.UniqueName(m.Name, func(n string) bool {
		for _, x := range o.Modifiers {
			if x.Name == n {
				return true
			}
		}
		return false
	})
	o.Modifiers = append(o.Modifiers, m)
	return m
}

// ArmatureModifiers returns the armature modifiers of o.
func (o *Object) ArmatureModifiers() []*Modifier {
	var r []*Modifier
	for _, m := range o.Modifiers {
		if m.Kind == ModifierArmature {
			r = append(r, m)
		}
	}
	return r
}

type BezierPoint struct {
	Co          geom.Vector3
	HandleLeft  geom.Vector3
	HandleRight geom.Vector3
	AutoHandles bool
}

type Curve struct {
	Dimensions3D bool
	Points       []BezierPoint
}

// RecalcHandles places auto handles a third of the way to the neighbours.
func (c *Curve) RecalcHandles() {
	n := len(c.Points)
	for i := range c.Points {
		p := &c.Points[i]
		if !p.AutoHandles {
			continue
		}
		prev, next := p.Co, p.Co
		if i > 0 {
			prev = c.Points[i-1].Co
		}
		if i < n-1 {
			next = c.Points[i+1].Co
		}
		tangent := next.Sub(&prev).Scale(1.0 / 6)
		p.HandleLeft = *p.Co.Sub(tangent)
		p.HandleRight = *p.Co.Add(tangent)
	}
}

type Material struct {
	Name             string
	BaseColorTexture *Image
	Shader           string
	BackfaceCulling  bool
}

type Image struct {
	Name     string
	Path     string
	Packed   []byte
	MIMEType string
	Width    int
	Height   int
}

func (img *Image) IsPacked() bool {
	return len(img.Packed) > 0
}

func (s *Scene) FindMaterial(name string) *Material {
	for _, m := range s.Materials {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// EnsureMaterial returns the named material, creating it if needed.
func (s *Scene) EnsureMaterial(name string) *Material {
	if m := s.FindMaterial(name); m != nil {
		return m
	}
	m := &Material{Name: name, BackfaceCulling: true}
	s.Materials = append(s.Materials, m)
	return m
}

func (s *Scene) FindImage(name string) *Image {
	for _, img := range s.Images {
		if img.Name == name {
			return img
		}
	}
	return nil
}

// AddImage registers img under a unique name.
func (s *Scene) AddImage(img *Image) *Image {
	img.Name = armature.UniqueName(img.Name, func(n string) bool { return s.FindImage(n) != nil })
	s.Images = append(s.Images, img)
	return img
}

// DisableBackfaceCulling turns culling off on every material.
func (s *Scene) DisableBackfaceCulling() int {
	n := 0
	for _, m := range s.Materials {
		if m.BackfaceCulling {
			m.BackfaceCulling = false
			n++
		}
	}
	return n
}

// ClearCustomNormals drops custom split normals from the given meshes.
func (s *Scene) ClearCustomNormals(hs []Handle) int {
	n := 0
	for _, h := range hs {
		o, ok := s.Get(h)
		if !ok || o.Mesh == nil || !o.Mesh.CustomNormals {
			continue
		}
		o.Mesh.CustomNormals = false
		o.Mesh.RecalculateNormals()
		n++
	}
	return n
}

// ImportOptions are passed to model importers.
type ImportOptions struct {
	PackImages       bool
	DisableBoneShape bool
	MergeVertices    bool
}
