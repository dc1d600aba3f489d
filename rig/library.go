package rig

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mektools/rigtools/scene"
)

// DefaultCollection is the scene collection a template rig is placed in.
const DefaultCollection = "Mekrig"

// Loader adds a rig to the scene and returns its armature object.
type Loader func(s *scene.Scene) (scene.Handle, error)

// Library maps rig variants to loaders.
type Library struct {
	loaders map[Variant]Loader
}

func NewLibrary() *Library {
	return &Library{loaders: map[Variant]Loader{}}
}

// NewTemplateLibrary registers a template loader for every variant, reading
// from dir.
func NewTemplateLibrary(dir string) *Library {
	l := NewLibrary()
	for _, v := range Variants() {
		l.Register(v, TemplateLoader(filepath.Join(dir, v.TemplateFile()), v))
	}
	return l
}

func (l *Library) Register(v Variant, fn Loader) {
	l.loaders[v] = fn
}

func (l *Library) Loader(v Variant) (Loader, bool) {
	fn, ok := l.loaders[v]
	return fn, ok
}

// Append loads the rig matching a racial code.
func (l *Library) Append(s *scene.Scene, code string) (scene.Handle, error) {
	v, err := VariantForCode(code)
	if err != nil {
		return scene.Handle{}, err
	}
	fn, ok := l.loaders[v]
	if !ok {
		return scene.Handle{}, fmt.Errorf("%w: no loader for %s", ErrUnknownVariant, v)
	}
	slog.Info("appending rig", "code", code, "variant", v)
	return fn(s)
}

// TemplateLoader loads a template file into a new collection.
func TemplateLoader(path string, v Variant) Loader {
	return func(s *scene.Scene) (scene.Handle, error) {
		t, err := LoadTemplate(path)
		if err != nil {
			return scene.Handle{}, err
		}
		return AddTemplate(s, t, v)
	}
}

// AddTemplate builds t and links the armature into its own collection.
func AddTemplate(s *scene.Scene, t *Template, v Variant) (scene.Handle, error) {
	a, err := t.Build()
	if err != nil {
		return scene.Handle{}, err
	}
	name := t.Collection
	if name == "" {
		name = DefaultCollection
	}
	o := scene.NewArmatureObject(a)
	h := s.Add(o, s.NewCollection(name))
	if err := o.SetRig(scene.RigInfo{Type: scene.ArmatureMekrig, Variant: v.String()}); err != nil {
		return scene.Handle{}, err
	}
	return h, nil
}
