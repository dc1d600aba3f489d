package rig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
	"github.com/mektools/rigtools/scene"
)

// SidecarExtension is appended to the model path minus its extension.
const SidecarExtension = ".rig.yaml"

// Sidecar keeps the rig data a model file cannot carry: rig metadata,
// constraints, bone display, bone collections and hooked curves.
type Sidecar struct {
	Armatures []SidecarArmature `yaml:"armatures,omitempty"`
	Curves    []SidecarCurve    `yaml:"curves,omitempty"`
}

type SidecarArmature struct {
	Object      string          `yaml:"object"`
	Rig         *SidecarRig     `yaml:"rig,omitempty"`
	Bones       []BoneDef       `yaml:"bones,omitempty"`
	Collections []CollectionDef `yaml:"collections,omitempty"`
}

type SidecarRig struct {
	Type      string `yaml:"type"`
	Actor     bool   `yaml:"actor,omitempty"`
	ActorName string `yaml:"actor_name,omitempty"`
	Variant   string `yaml:"variant,omitempty"`
}

type SidecarCurve struct {
	Name       string        `yaml:"name"`
	Collection string        `yaml:"collection,omitempty"`
	Points     [][]float64   `yaml:"points,flow"`
	Hooks      []SidecarHook `yaml:"hooks,omitempty"`
}

type SidecarHook struct {
	Name      string `yaml:"name"`
	Object    string `yaml:"object"`
	Subtarget string `yaml:"subtarget"`
	Points    []int  `yaml:"points,flow"`
}

// SidecarPath returns the sidecar path for a model file.
func SidecarPath(model string) string {
	return strings.TrimSuffix(model, filepath.Ext(model)) + SidecarExtension
}

// BuildSidecar collects the rig data of every armature and curve in s.
// Bones without constraints or display settings are left out.
func BuildSidecar(s *scene.Scene) *Sidecar {
	sc := &Sidecar{}
	for _, o := range s.Armatures() {
		sa := SidecarArmature{Object: o.Name, Collections: collectionDefs(o.Armature)}
		if info, ok := o.Rig(); ok {
			sa.Rig = &SidecarRig{
				Type:      info.Type.String(),
				Actor:     info.Actor,
				ActorName: info.ActorName,
				Variant:   info.Variant,
			}
		}
		for _, b := range o.Armature.HierarchyOrder() {
			if len(b.Constraints) == 0 && b.CustomShape == "" && b.Palette == "" {
				continue
			}
			sa.Bones = append(sa.Bones, boneDef(b, o.Armature, false))
		}
		sc.Armatures = append(sc.Armatures, sa)
	}
	for _, o := range s.Objects() {
		if o.Kind != scene.KindCurve || o.Curve == nil {
			continue
		}
		c := SidecarCurve{Name: o.Name}
		if col := s.CollectionOf(o.Handle()); col != nil {
			c.Collection = col.Name
		}
		for _, p := range o.Curve.Points {
			c.Points = append(c.Points, []float64{p.Co.X, p.Co.Y, p.Co.Z})
		}
		for _, m := range o.Modifiers {
			if m.Kind != scene.ModifierHook {
				continue
			}
			target, ok := s.Get(m.Object)
			if !ok {
				continue
			}
			c.Hooks = append(c.Hooks, SidecarHook{
				Name:      m.Name,
				Object:    target.Name,
				Subtarget: m.Subtarget,
				Points:    m.Points,
			})
		}
		sc.Curves = append(sc.Curves, c)
	}
	return sc
}

// ApplySidecar restores sidecar data onto the objects of s, matched by
// name. Unknown objects and bones are skipped with a warning.
func ApplySidecar(s *scene.Scene, sc *Sidecar) error {
	for _, sa := range sc.Armatures {
		o, ok := s.Find(sa.Object)
		if !ok || o.Armature == nil {
			slog.Warn("sidecar armature not found", "object", sa.Object)
			continue
		}
		resolve := func(name string) *armature.Armature {
			if name == "" {
				return o.Armature
			}
			if t, ok := s.Find(name); ok {
				return t.Armature
			}
			return nil
		}
		if sa.Rig != nil {
			typ, err := scene.ParseArmatureType(sa.Rig.Type)
			if err != nil {
				return err
			}
			err = o.SetRig(scene.RigInfo{
				Type:      typ,
				Actor:     sa.Rig.Actor,
				ActorName: sa.Rig.ActorName,
				Variant:   sa.Rig.Variant,
			})
			if err != nil {
				return err
			}
		}
		for _, d := range sa.Bones {
			if o.Armature.Bone(d.Name) == nil {
				slog.Warn("sidecar bone not found", "armature", sa.Object, "bone", d.Name)
			}
		}
		t := &Template{Name: o.Name, Bones: sa.Bones, Collections: sa.Collections}
		if err := t.applyBoneSettings(o.Armature, resolve); err != nil {
			return err
		}
		t.applyCollections(o.Armature)
	}

	for _, cd := range sc.Curves {
		curve := &scene.Curve{Dimensions3D: true}
		for _, p := range cd.Points {
			if len(p) != 3 {
				return fmt.Errorf("%w: curve %s: point needs 3 coordinates", ErrTemplate, cd.Name)
			}
			curve.Points = append(curve.Points, scene.BezierPoint{
				Co:          *geom.NewVector3(p[0], p[1], p[2]),
				AutoHandles: true,
			})
		}
		curve.RecalcHandles()
		co := scene.NewCurveObject(cd.Name, curve)
		for _, hk := range cd.Hooks {
			target, ok := s.Find(hk.Object)
			if !ok {
				slog.Warn("hook target not found", "curve", cd.Name, "object", hk.Object)
				continue
			}
			co.AddModifier(&scene.Modifier{
				Name:      hk.Name,
				Kind:      scene.ModifierHook,
				Object:    target.Handle(),
				Subtarget: hk.Subtarget,
				Points:    hk.Points,
			})
		}
		var col *scene.Collection
		if cd.Collection != "" {
			if col = s.FindCollection(cd.Collection); col == nil {
				col = s.NewCollection(cd.Collection)
			}
		}
		s.Add(co, col)
	}
	return nil
}

// LoadSidecar reads a sidecar file. A missing file yields an empty sidecar.
func LoadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Sidecar{}, nil
	} else if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplate, path, err)
	}
	return &sc, nil
}

func (sc *Sidecar) Save(path string) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
