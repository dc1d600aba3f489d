package importer

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/mektools/rigtools/scene"
)

// LoadExclusions reads a YAML list of bone names.
func LoadExclusions(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("bone exclusions %s: %w", path, err)
	}
	return names, nil
}

// PruneExcluded removes the excluded bones of the armature object h that
// no bound mesh carries weights for. Children of a removed bone move up to
// its parent.
func PruneExcluded(s *scene.Scene, h scene.Handle, exclusions []string) []string {
	o, ok := s.Get(h)
	if !ok || o.Armature == nil || len(exclusions) == 0 {
		return nil
	}
	used := map[string]bool{}
	for _, m := range s.Objects() {
		if m.Mesh == nil || !boundTo(s, m, h) {
			continue
		}
		for g := range m.Mesh.WeightedGroups() {
			used[g] = true
		}
	}

	a := o.Armature
	var removed []string
	for _, name := range exclusions {
		b := a.Bone(name)
		if b == nil || used[name] {
			continue
		}
		for _, c := range b.Children() {
			if err := a.SetParent(c, b.Parent()); err != nil {
				slog.Warn("re-parenting child of excluded bone", "bone", c.Name, "err", err)
			}
		}
		a.RemoveBone(b)
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		slog.Debug("pruned excluded bones", "armature", a.Name, "count", len(removed))
	}
	return removed
}

func boundTo(s *scene.Scene, o *scene.Object, h scene.Handle) bool {
	for _, m := range o.ArmatureModifiers() {
		if m.Object == h {
			return true
		}
	}
	p, ok := s.Parent(o.Handle())
	return ok && p.Handle() == h
}
