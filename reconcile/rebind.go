package reconcile

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mektools/rigtools/scene"
)

type RebindResult struct {
	Retargeted []scene.Handle
	// MissingGroups maps mesh names to weighted vertex groups that name no
	// bone of the new skeleton.
	MissingGroups map[string][]string
}

// Rebind points every armature modifier and child mesh bound to from at to.
// Vertex groups are keyed by bone name, so weights carry over unchanged.
func Rebind(s *scene.Scene, from, to scene.Handle) (*RebindResult, error) {
	target, ok := s.Get(to)
	if !ok || target.Armature == nil {
		return nil, fmt.Errorf("rebind target: %w", scene.ErrGone)
	}
	res := &RebindResult{MissingGroups: map[string][]string{}}
	for _, o := range s.Objects() {
		if o.Kind != scene.KindMesh {
			continue
		}
		bound := false
		for _, m := range o.ArmatureModifiers() {
			if m.Object == from {
				m.Object = to
				bound = true
			}
		}
		if p, ok := s.Parent(o.Handle()); ok && p.Handle() == from {
			if err := s.SetParent(o.Handle(), to, true); err != nil {
				return nil, err
			}
			bound = true
		}
		if !bound {
			continue
		}
		res.Retargeted = append(res.Retargeted, o.Handle())
		if o.Mesh == nil {
			continue
		}
		var missing []string
		for g := range o.Mesh.WeightedGroups() {
			if target.Armature.Bone(g) == nil {
				missing = append(missing, g)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			res.MissingGroups[o.Name] = missing
			slog.Warn("mesh weights name bones missing from the merged skeleton",
				"mesh", o.Name, "groups", missing)
		}
	}
	return res, nil
}
