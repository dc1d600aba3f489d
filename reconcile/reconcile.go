// Package reconcile merges an imported skeleton into a reference rig.
package reconcile

import (
	"errors"
	"log/slog"

	"github.com/mektools/rigtools/armature"
)

// OrphanPolicy decides where a bone goes when its recorded parent is not in
// the merged skeleton. Duplicates removed by Reconcile always survive as the
// reference's bone of the same name, so orphans only come from bones the
// caller removed after taking Options.Record.
type OrphanPolicy int

const (
	// OrphanDetach leaves a bone whose recorded parent did not survive as a root.
	OrphanDetach OrphanPolicy = iota
	// OrphanNearestAncestor re-homes it under the closest recorded ancestor
	// that exists in the merged skeleton.
	OrphanNearestAncestor
)

type Options struct {
	Orphans OrphanPolicy
	// Record holds the parents of incoming taken before the caller removed
	// bones from it. When nil the parents are recorded on entry.
	Record *Record
	// PrunedCollection receives every grafted bone when non-empty.
	PrunedCollection string
	PrunedVisible    bool
}

// Record maps each bone name to the name of its parent before any deletion.
type Record struct {
	all     map[string]string
	pending map[string]string
	order   []string
}

func NewRecord(a *armature.Armature) *Record {
	r := &Record{all: map[string]string{}, pending: map[string]string{}}
	for _, b := range a.Bones() {
		if p := b.Parent(); p != nil {
			r.all[b.Name] = p.Name
			r.pending[b.Name] = p.Name
			r.order = append(r.order, b.Name)
		}
	}
	return r
}

// Forget drops the entry of a removed bone; its children keep theirs.
func (r *Record) Forget(name string) {
	delete(r.pending, name)
}

// Parent returns the recorded parent of name.
func (r *Record) Parent(name string) (string, bool) {
	p, ok := r.pending[name]
	return p, ok
}

func (r *Record) Len() int {
	return len(r.pending)
}

func (r *Record) each(fn func(bone, parent string)) {
	for _, n := range r.order {
		if p, ok := r.pending[n]; ok {
			fn(n, p)
		}
	}
}

type Result struct {
	Merged  *armature.Armature
	Removed []string
	Grafted []string
	// ReparentFailures lists bones whose recorded parent could not be restored.
	ReparentFailures []string
	// Disconnected is set when the skeletons shared no bone at all.
	Disconnected bool
}

// Reconcile removes from incoming every bone that reference already has,
// grafts the rest onto reference and restores their recorded parents.
// Reference wins every name clash. Incoming is left empty.
func Reconcile(reference, incoming *armature.Armature, opts Options) *Result {
	res := &Result{Merged: reference}
	referenceNames := reference.Names()
	rec := opts.Record
	if rec == nil {
		rec = NewRecord(incoming)
	}
	for _, n := range rec.order {
		if incoming.Bone(n) == nil {
			rec.Forget(n)
		}
	}

	for _, b := range incoming.Bones() {
		if referenceNames[b.Name] {
			rec.Forget(b.Name)
			incoming.RemoveBone(b)
			res.Removed = append(res.Removed, b.Name)
		}
	}
	res.Disconnected = len(res.Removed) == 0 && reference.Len() > 0 && incoming.Len() > 0
	if res.Disconnected {
		slog.Warn("skeletons share no bone; merging as a plain union",
			"reference", reference.Name, "incoming", incoming.Name)
	}

	moved := reference.Absorb(incoming)
	for _, b := range moved {
		res.Grafted = append(res.Grafted, b.Name)
	}
	if opts.PrunedCollection != "" && len(moved) > 0 {
		col := reference.EnsureCollection(opts.PrunedCollection)
		col.Visible = opts.PrunedVisible
		for _, b := range moved {
			col.Assign(b)
		}
	}

	rec.each(func(name, parentName string) {
		b := reference.Bone(name)
		if b == nil {
			res.ReparentFailures = append(res.ReparentFailures, name)
			return
		}
		p := reference.Bone(parentName)
		if p == nil && opts.Orphans == OrphanNearestAncestor {
			p = nearestAncestor(reference, rec, parentName)
		}
		if p == nil {
			slog.Warn("parent did not survive the merge; leaving bone at the root",
				"bone", name, "parent", parentName)
			res.ReparentFailures = append(res.ReparentFailures, name)
			return
		}
		if b.Parent() == p {
			return
		}
		if err := reference.SetParent(b, p); err != nil {
			if !errors.Is(err, armature.ErrCycle) {
				slog.Warn("restoring parent failed", "bone", name, "parent", parentName, "err", err)
			} else {
				slog.Warn("restoring parent would form a cycle; leaving bone at the root",
					"bone", name, "parent", parentName)
			}
			res.ReparentFailures = append(res.ReparentFailures, name)
		}
	})
	return res
}

func nearestAncestor(a *armature.Armature, rec *Record, name string) *armature.Bone {
	seen := map[string]bool{}
	for n, ok := rec.all[name]; ok && !seen[n]; n, ok = rec.all[n] {
		seen[n] = true
		if b := a.Bone(n); b != nil {
			return b
		}
	}
	return nil
}
