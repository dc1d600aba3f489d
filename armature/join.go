package armature

// Absorb moves every bone of src into a and empties src. Rest matrices are
// re-expressed in a's object space, parent links among moved bones are kept,
// bone collections merge by name and constraints pointing at src point at a.
// A moved bone whose name is taken in a gets a numeric suffix.
func (a *Armature) Absorb(src *Armature) []*Bone {
	xf := a.World.Inverse().Mul(&src.World)
	moved := src.Bones()

	parents := make(map[*Bone]*Bone, len(moved))
	collections := make(map[*Bone][]*BoneCollection, len(moved))
	for _, b := range moved {
		parents[b] = b.parent
		collections[b] = src.CollectionsOf(b)
	}

	for _, b := range moved {
		b.parent, b.children, b.armature = nil, nil, nil
		b.Rest = *xf.Mul(&b.Rest)
		b.Name = UniqueName(b.Name, func(n string) bool { return a.byName[n] != nil })
		_ = a.AddBone(b, nil)
	}
	for _, b := range moved {
		if p := parents[b]; p != nil {
			_ = a.SetParent(b, p)
		}
		for _, c := range collections[b] {
			dst := a.Collection(c.Name)
			if dst == nil {
				dst = a.EnsureCollection(c.Name)
				dst.Visible = c.Visible
				dst.Parent = c.Parent
			}
			dst.Assign(b)
		}
	}
	for _, b := range a.bones {
		for _, c := range b.Constraints {
			c.RetargetArmature(src, a)
		}
	}

	src.bones = nil
	src.byName = map[string]*Bone{}
	src.Collections = nil
	return moved
}
