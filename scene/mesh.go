package scene

import (
	"fmt"
	"strings"

	"github.com/mektools/rigtools/geom"
)

// Mesh is triangle geometry with per-vertex bone weights. Joints index into
// VertexGroups, whose entries are bone names.
type Mesh struct {
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Joints    [][4]uint16
	Weights   [][4]float32

	Indices       []uint32
	FaceMaterials []int
	Materials     []*Material
	VertexGroups  []string

	CustomNormals bool
}

func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

func (m *Mesh) GroupIndex(name string) int {
	for i, g := range m.VertexGroups {
		if g == name {
			return i
		}
	}
	return -1
}

func (m *Mesh) EnsureGroup(name string) int {
	if i := m.GroupIndex(name); i >= 0 {
		return i
	}
	m.VertexGroups = append(m.VertexGroups, name)
	return len(m.VertexGroups) - 1
}

// WeightedGroups returns the names of groups with a non-zero weight.
func (m *Mesh) WeightedGroups() map[string]bool {
	r := map[string]bool{}
	for v := range m.Joints {
		for k := 0; k < 4; k++ {
			if v < len(m.Weights) && m.Weights[v][k] > 0 {
				j := int(m.Joints[v][k])
				if j < len(m.VertexGroups) {
					r[m.VertexGroups[j]] = true
				}
			}
		}
	}
	return r
}

// MaterialSlot returns the slot holding mat, appending one if needed.
func (m *Mesh) MaterialSlot(mat *Material) int {
	for i, o := range m.Materials {
		if o == mat || (o != nil && mat != nil && o.Name == mat.Name) {
			return i
		}
	}
	m.Materials = append(m.Materials, mat)
	return len(m.Materials) - 1
}

// Append merges o into m. Vertices are transformed by xf; vertex groups and
// material slots are unified by name.
func (m *Mesh) Append(o *Mesh, xf *geom.Matrix4) {
	base := uint32(len(m.Positions))
	hasNormals := len(m.Normals) == len(m.Positions) && len(o.Normals) == len(o.Positions)
	hasUVs := len(m.UVs) == len(m.Positions) && len(o.UVs) == len(o.Positions)
	hasSkin := len(m.Joints) == len(m.Positions) && len(o.Joints) == len(o.Positions)
	if base == 0 {
		hasNormals = len(o.Normals) == len(o.Positions)
		hasUVs = len(o.UVs) == len(o.Positions)
		hasSkin = len(o.Joints) == len(o.Positions)
	}

	groupMap := make([]uint16, len(o.VertexGroups))
	for i, g := range o.VertexGroups {
		groupMap[i] = uint16(m.EnsureGroup(g))
	}
	for i, p := range o.Positions {
		m.Positions = append(m.Positions, xf.ApplyTo(geom.NewVector3FromFloat32(p)).ToFloat32())
		if hasNormals {
			n := xf.ApplyToDirection(geom.NewVector3FromFloat32(o.Normals[i])).Normalize()
			m.Normals = append(m.Normals, n.ToFloat32())
		}
		if hasUVs {
			m.UVs = append(m.UVs, o.UVs[i])
		}
		if hasSkin {
			var j [4]uint16
			for k, g := range o.Joints[i] {
				if int(g) < len(groupMap) {
					j[k] = groupMap[g]
				}
			}
			m.Joints = append(m.Joints, j)
			var w [4]float32
			if i < len(o.Weights) {
				w = o.Weights[i]
			}
			m.Weights = append(m.Weights, w)
		}
	}
	if !hasNormals {
		m.Normals = nil
	}
	if !hasUVs {
		m.UVs = nil
	}
	if !hasSkin {
		m.Joints, m.Weights = nil, nil
	}

	slots := make([]int, len(o.Materials))
	for i, mat := range o.Materials {
		slots[i] = m.MaterialSlot(mat)
	}
	for t := 0; t < o.TriangleCount(); t++ {
		for k := 0; k < 3; k++ {
			m.Indices = append(m.Indices, o.Indices[t*3+k]+base)
		}
		slot := 0
		if t < len(o.FaceMaterials) && o.FaceMaterials[t] < len(slots) {
			slot = slots[o.FaceMaterials[t]]
		} else if len(slots) > 0 {
			slot = slots[0]
		}
		m.FaceMaterials = append(m.FaceMaterials, slot)
	}
	m.CustomNormals = m.CustomNormals || o.CustomNormals
}

// Weld merges vertices whose attributes are identical and returns how many
// were removed.
func (m *Mesh) Weld() int {
	type key struct {
		p [3]float32
		n [3]float32
		u [2]float32
		j [4]uint16
		w [4]float32
	}
	index := map[key]uint32{}
	remap := make([]uint32, len(m.Positions))
	var out Mesh
	for i, p := range m.Positions {
		k := key{p: p}
		if i < len(m.Normals) {
			k.n = m.Normals[i]
		}
		if i < len(m.UVs) {
			k.u = m.UVs[i]
		}
		if i < len(m.Joints) {
			k.j = m.Joints[i]
		}
		if i < len(m.Weights) {
			k.w = m.Weights[i]
		}
		if v, ok := index[k]; ok {
			remap[i] = v
			continue
		}
		v := uint32(len(out.Positions))
		index[k] = v
		remap[i] = v
		out.Positions = append(out.Positions, p)
		if len(m.Normals) > 0 {
			out.Normals = append(out.Normals, k.n)
		}
		if len(m.UVs) > 0 {
			out.UVs = append(out.UVs, k.u)
		}
		if len(m.Joints) > 0 {
			out.Joints = append(out.Joints, k.j)
			out.Weights = append(out.Weights, k.w)
		}
	}
	removed := len(m.Positions) - len(out.Positions)
	for i, idx := range m.Indices {
		m.Indices[i] = remap[idx]
	}
	m.Positions, m.Normals, m.UVs, m.Joints, m.Weights = out.Positions, out.Normals, out.UVs, out.Joints, out.Weights
	return removed
}

// RecalculateNormals sets area-weighted smooth vertex normals.
func (m *Mesh) RecalculateNormals() {
	acc := make([]geom.Vector3, len(m.Positions))
	for t := 0; t < m.TriangleCount(); t++ {
		i0, i1, i2 := m.Indices[t*3], m.Indices[t*3+1], m.Indices[t*3+2]
		p0 := geom.NewVector3FromFloat32(m.Positions[i0])
		p1 := geom.NewVector3FromFloat32(m.Positions[i1])
		p2 := geom.NewVector3FromFloat32(m.Positions[i2])
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		for _, i := range []uint32{i0, i1, i2} {
			acc[i] = *acc[i].Add(n)
		}
	}
	m.Normals = make([][3]float32, len(acc))
	for i := range acc {
		m.Normals[i] = acc[i].Normalize().ToFloat32()
	}
}

// JoinMeshes merges the meshes of others into target and removes them.
func (s *Scene) JoinMeshes(target Handle, others []Handle) error {
	t, ok := s.Get(target)
	if !ok {
		return ErrGone
	}
	if t.Mesh == nil {
		return fmt.Errorf("join: %s is not a mesh", t.Name)
	}
	inv := s.WorldMatrix(t).Inverse()
	for _, h := range others {
		if h == target {
			continue
		}
		o, ok := s.Get(h)
		if !ok || o.Mesh == nil {
			continue
		}
		t.Mesh.Append(o.Mesh, inv.Mul(s.WorldMatrix(o)))
		if err := s.Remove(h); err != nil {
			return err
		}
	}
	return nil
}

// MergeByMaterial joins meshes that share their first material. It returns
// the surviving handles, non-mesh objects included.
func (s *Scene) MergeByMaterial(hs []Handle) ([]Handle, error) {
	groups := map[string][]Handle{}
	var order []string
	var rest []Handle
	for _, h := range s.Live(hs) {
		o, _ := s.Get(h)
		if o.Mesh == nil || len(o.Mesh.Materials) == 0 || o.Mesh.Materials[0] == nil {
			rest = append(rest, h)
			continue
		}
		name := o.Mesh.Materials[0].Name
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], h)
	}
	var out []Handle
	for _, name := range order {
		g := groups[name]
		if len(g) > 1 {
			if err := s.JoinMeshes(g[0], g[1:]); err != nil {
				return nil, err
			}
		}
		out = append(out, g[0])
	}
	return append(out, rest...), nil
}

// MergeByName joins every mesh whose name contains filter, case-insensitively.
func (s *Scene) MergeByName(hs []Handle, filter string) ([]Handle, error) {
	filter = strings.ToLower(filter)
	var matched, out []Handle
	for _, h := range s.Live(hs) {
		o, _ := s.Get(h)
		if o.Mesh != nil && strings.Contains(strings.ToLower(o.Name), filter) {
			matched = append(matched, h)
		} else {
			out = append(out, h)
		}
	}
	if len(matched) < 2 {
		return s.Live(hs), nil
	}
	if err := s.JoinMeshes(matched[0], matched[1:]); err != nil {
		return nil, err
	}
	return append(out, matched[0]), nil
}
