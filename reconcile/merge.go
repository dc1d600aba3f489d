package reconcile

import (
	"fmt"

	"github.com/mektools/rigtools/scene"
)

// PrunedCollectionName holds the bones an import added on top of the rig.
const PrunedCollectionName = "Not Mekrig Bones"

type MergeResult struct {
	*Result
	Rebind *RebindResult
}

// MergeArmatures merges the incoming armature object into the reference one.
// Meshes bound to incoming are re-bound, the reference's collection is moved
// under the incoming one and the incoming object is removed from the scene.
func MergeArmatures(s *scene.Scene, reference, incoming scene.Handle, opts Options) (*MergeResult, error) {
	ref, ok := s.Get(reference)
	if !ok || ref.Armature == nil {
		return nil, fmt.Errorf("reference armature: %w", scene.ErrGone)
	}
	inc, ok := s.Get(incoming)
	if !ok || inc.Armature == nil {
		return nil, fmt.Errorf("incoming armature: %w", scene.ErrGone)
	}
	if reference == incoming {
		return nil, fmt.Errorf("cannot merge %s into itself", ref.Name)
	}
	colA := s.CollectionOf(reference)
	colB := s.CollectionOf(incoming)

	s.Update()
	res := Reconcile(ref.Armature, inc.Armature, opts)
	rb, err := Rebind(s, incoming, reference)
	if err != nil {
		return nil, err
	}
	if err := s.Remove(incoming); err != nil {
		return nil, err
	}
	if colA != nil && colB != nil && colA != colB {
		if err := colB.LinkChild(colA); err != nil {
			return nil, err
		}
	}
	return &MergeResult{Result: res, Rebind: rb}, nil
}
