package rig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
)

// Template describes a rig armature. Bones are listed parents first.
type Template struct {
	Name        string          `yaml:"name"`
	Collection  string          `yaml:"collection,omitempty"`
	Bones       []BoneDef       `yaml:"bones"`
	Collections []CollectionDef `yaml:"collections,omitempty"`
}

type BoneDef struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
	// Matrix is the column-major rest matrix. When absent the rest is
	// derived from Head, Tail and Roll.
	Matrix []float64 `yaml:"matrix,omitempty,flow"`
	Length float64   `yaml:"length,omitempty"`
	Head   []float64 `yaml:"head,omitempty,flow"`
	Tail   []float64 `yaml:"tail,omitempty,flow"`
	Roll   float64   `yaml:"roll,omitempty"`

	CustomShape string          `yaml:"custom_shape,omitempty"`
	Palette     string          `yaml:"palette,omitempty"`
	Constraints []ConstraintDef `yaml:"constraints,omitempty"`
}

type ConstraintDef struct {
	Name string `yaml:"name,omitempty"`
	Type string `yaml:"type"`
	// Target names the armature object. Empty means the owning armature.
	Target      string   `yaml:"target,omitempty"`
	Subtarget   string   `yaml:"subtarget,omitempty"`
	TargetSpace string   `yaml:"target_space,omitempty"`
	OwnerSpace  string   `yaml:"owner_space,omitempty"`
	Influence   *float64 `yaml:"influence,omitempty"`
	Mute        bool     `yaml:"mute,omitempty"`

	UseX              *bool  `yaml:"use_x,omitempty"`
	UseY              *bool  `yaml:"use_y,omitempty"`
	UseZ              *bool  `yaml:"use_z,omitempty"`
	InvertX           bool   `yaml:"invert_x,omitempty"`
	InvertY           bool   `yaml:"invert_y,omitempty"`
	InvertZ           bool   `yaml:"invert_z,omitempty"`
	UseOffset         bool   `yaml:"use_offset,omitempty"`
	MixMode           string `yaml:"mix_mode,omitempty"`
	EulerOrder        string `yaml:"euler_order,omitempty"`
	RemoveTargetShear bool   `yaml:"remove_target_shear,omitempty"`

	PoleTarget    string  `yaml:"pole_target,omitempty"`
	PoleSubtarget string  `yaml:"pole_subtarget,omitempty"`
	PoleAngle     float64 `yaml:"pole_angle,omitempty"`
	ChainCount    int     `yaml:"chain_count,omitempty"`

	Curve            string `yaml:"curve,omitempty"`
	UseEvenDivisions bool   `yaml:"use_even_divisions,omitempty"`
	YScaleMode       string `yaml:"y_scale_mode,omitempty"`
	XZScaleMode      string `yaml:"xz_scale_mode,omitempty"`
}

type CollectionDef struct {
	Name    string   `yaml:"name"`
	Visible *bool    `yaml:"visible,omitempty"`
	Parent  string   `yaml:"parent,omitempty"`
	Bones   []string `yaml:"bones,omitempty"`
}

// Resolver maps an armature object name to its armature. It may return nil.
type Resolver func(name string) *armature.Armature

func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplate, path, err)
	}
	return &t, nil
}

func (t *Template) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Build creates the armature described by the template.
func (t *Template) Build() (*armature.Armature, error) {
	a := armature.New(t.Name)
	for _, d := range t.Bones {
		b, err := d.bone()
		if err != nil {
			return nil, err
		}
		var parent *armature.Bone
		if d.Parent != "" {
			if parent = a.Bone(d.Parent); parent == nil {
				return nil, fmt.Errorf("%w: %s: parent %s is not defined before it", ErrTemplate, d.Name, d.Parent)
			}
		}
		if err := a.AddBone(b, parent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
		}
	}
	self := func(name string) *armature.Armature {
		if name == "" || name == t.Name {
			return a
		}
		return nil
	}
	if err := t.applyBoneSettings(a, self); err != nil {
		return nil, err
	}
	t.applyCollections(a)
	return a, nil
}

func (d *BoneDef) bone() (*armature.Bone, error) {
	switch {
	case len(d.Matrix) == 16:
		return armature.NewBone(d.Name, geom.NewMatrix4FromSlice(d.Matrix), d.Length), nil
	case len(d.Head) == 3 && len(d.Tail) == 3:
		head := geom.NewVector3(d.Head[0], d.Head[1], d.Head[2])
		tail := geom.NewVector3(d.Tail[0], d.Tail[1], d.Tail[2])
		return armature.NewBoneFromHeadTail(d.Name, head, tail, d.Roll), nil
	}
	return nil, fmt.Errorf("%w: bone %s needs a matrix or a head and tail", ErrTemplate, d.Name)
}

// applyBoneSettings sets display settings and constraints on bones that
// already exist in a. Bones missing from a are skipped.
func (t *Template) applyBoneSettings(a *armature.Armature, resolve Resolver) error {
	for _, d := range t.Bones {
		b := a.Bone(d.Name)
		if b == nil {
			continue
		}
		if d.CustomShape != "" {
			b.CustomShape = d.CustomShape
		}
		if d.Palette != "" {
			b.Palette = d.Palette
		}
		for _, cd := range d.Constraints {
			c, err := cd.build(resolve)
			if err != nil {
				return fmt.Errorf("%w: bone %s: %v", ErrTemplate, d.Name, err)
			}
			b.AddConstraint(c)
		}
	}
	return nil
}

func (t *Template) applyCollections(a *armature.Armature) {
	for _, cd := range t.Collections {
		col := a.EnsureCollection(cd.Name)
		if cd.Visible != nil {
			col.Visible = *cd.Visible
		}
		col.Parent = cd.Parent
		for _, n := range cd.Bones {
			if b := a.Bone(n); b != nil {
				col.Assign(b)
			}
		}
	}
}

func (cd *ConstraintDef) build(resolve Resolver) (*armature.Constraint, error) {
	typ, err := armature.ParseConstraintType(cd.Type)
	if err != nil {
		return nil, err
	}
	c := armature.NewConstraint(typ, resolve(cd.Target), cd.Subtarget)
	c.Name = cd.Name
	if cd.TargetSpace != "" {
		if c.TargetSpace, err = armature.ParseSpace(cd.TargetSpace); err != nil {
			return nil, err
		}
	}
	if cd.OwnerSpace != "" {
		if c.OwnerSpace, err = armature.ParseSpace(cd.OwnerSpace); err != nil {
			return nil, err
		}
	}
	if cd.Influence != nil {
		c.Influence = *cd.Influence
	}
	c.Mute = cd.Mute
	if cd.UseX != nil {
		c.UseX = *cd.UseX
	}
	if cd.UseY != nil {
		c.UseY = *cd.UseY
	}
	if cd.UseZ != nil {
		c.UseZ = *cd.UseZ
	}
	c.InvertX, c.InvertY, c.InvertZ = cd.InvertX, cd.InvertY, cd.InvertZ
	c.UseOffset = cd.UseOffset
	if cd.MixMode != "" {
		if c.MixMode, err = armature.ParseMixMode(cd.MixMode); err != nil {
			return nil, err
		}
	}
	if cd.EulerOrder != "" {
		order, ok := geom.ParseRotationOrder(cd.EulerOrder)
		if !ok {
			return nil, fmt.Errorf("unknown euler order %q", cd.EulerOrder)
		}
		c.EulerOrder = order
	}
	c.RemoveTargetShear = cd.RemoveTargetShear
	if cd.PoleSubtarget != "" {
		c.PoleTarget = resolve(cd.PoleTarget)
		c.PoleSubtarget = cd.PoleSubtarget
	}
	c.PoleAngle = cd.PoleAngle
	c.ChainCount = cd.ChainCount
	c.Curve = cd.Curve
	c.UseEvenDivisions = cd.UseEvenDivisions
	if cd.YScaleMode != "" {
		if c.YScaleMode, err = armature.ParseScaleMode(cd.YScaleMode); err != nil {
			return nil, err
		}
	}
	if cd.XZScaleMode != "" {
		if c.XZScaleMode, err = armature.ParseScaleMode(cd.XZScaleMode); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func constraintDef(c *armature.Constraint, owner *armature.Armature) ConstraintDef {
	name := func(a *armature.Armature) string {
		if a == nil || a == owner {
			return ""
		}
		return a.Name
	}
	boolPtr := func(v bool) *bool {
		if v {
			return nil
		}
		return &v
	}
	d := ConstraintDef{
		Name:              c.Name,
		Type:              c.Type.String(),
		Target:            name(c.Target),
		Subtarget:         c.Subtarget,
		TargetSpace:       c.TargetSpace.String(),
		OwnerSpace:        c.OwnerSpace.String(),
		Mute:              c.Mute,
		UseX:              boolPtr(c.UseX),
		UseY:              boolPtr(c.UseY),
		UseZ:              boolPtr(c.UseZ),
		InvertX:           c.InvertX,
		InvertY:           c.InvertY,
		InvertZ:           c.InvertZ,
		UseOffset:         c.UseOffset,
		MixMode:           c.MixMode.String(),
		EulerOrder:        c.EulerOrder.String(),
		RemoveTargetShear: c.RemoveTargetShear,
		PoleSubtarget:     c.PoleSubtarget,
		PoleAngle:         c.PoleAngle,
		ChainCount:        c.ChainCount,
		Curve:             c.Curve,
		UseEvenDivisions:  c.UseEvenDivisions,
		YScaleMode:        c.YScaleMode.String(),
		XZScaleMode:       c.XZScaleMode.String(),
	}
	if c.PoleSubtarget != "" {
		d.PoleTarget = name(c.PoleTarget)
	}
	if c.Influence != 1 {
		inf := c.Influence
		d.Influence = &inf
	}
	return d
}

// TemplateFromArmature describes a as a template. Rest matrices are stored
// verbatim.
func TemplateFromArmature(a *armature.Armature) *Template {
	t := &Template{Name: a.Name}
	for _, b := range a.HierarchyOrder() {
		t.Bones = append(t.Bones, boneDef(b, a, true))
	}
	t.Collections = collectionDefs(a)
	return t
}

func boneDef(b *armature.Bone, a *armature.Armature, rest bool) BoneDef {
	d := BoneDef{
		Name:        b.Name,
		CustomShape: b.CustomShape,
		Palette:     b.Palette,
	}
	if rest {
		d.Matrix = append([]float64(nil), b.Rest[:]...)
		d.Length = b.Length
		if p := b.Parent(); p != nil {
			d.Parent = p.Name
		}
	}
	for _, c := range b.Constraints {
		d.Constraints = append(d.Constraints, constraintDef(c, a))
	}
	return d
}

func collectionDefs(a *armature.Armature) []CollectionDef {
	var r []CollectionDef
	for _, c := range a.Collections {
		vis := c.Visible
		cd := CollectionDef{Name: c.Name, Visible: &vis, Parent: c.Parent}
		for _, b := range c.Bones() {
			cd.Bones = append(cd.Bones, b.Name)
		}
		r = append(r, cd)
	}
	return r
}
