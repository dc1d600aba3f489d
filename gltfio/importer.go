// Package gltfio loads glTF/GLB models into a scene and writes scenes back
// as GLB.
package gltfio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
	"github.com/mektools/rigtools/scene"
	"github.com/mektools/rigtools/texture"
)

const (
	DefaultArmatureName = "Armature"
	shaderExtra         = "shader"
)

// Importer reads glTF and GLB files.
type Importer struct {
	// Packer packs images referenced by URI when PackImages is set. Images
	// embedded in the file are always packed.
	Packer *texture.Packer
}

func (imp *Importer) Import(s *scene.Scene, path string, opts scene.ImportOptions) ([]scene.Handle, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	r := &reader{
		doc:   doc,
		dir:   filepath.Dir(path),
		s:     s,
		opts:  opts,
		pack:  imp.Packer,
		nodes: make([]nodeInfo, len(doc.Nodes)),
	}
	if r.pack == nil {
		r.pack = &texture.Packer{}
	}
	return r.read()
}

type nodeInfo struct {
	parent int
	world  *geom.Matrix4
	// armature group of a joint node, or -1
	group  int
	bone   string
	object scene.Handle
}

type skeleton struct {
	joints map[int]bool
	root   int // node holding the armature transform, or -1
	object scene.Handle
	arm    *armature.Armature
}

type reader struct {
	doc  *gltf.Document
	dir  string
	s    *scene.Scene
	opts scene.ImportOptions
	pack *texture.Packer

	nodes     []nodeInfo
	order     []int
	skeletons []*skeleton
	skinGroup []int
	materials []*scene.Material
	images    map[uint32]*scene.Image
	created   []scene.Handle
}

func (r *reader) read() ([]scene.Handle, error) {
	r.walkNodes()
	r.groupSkins()
	if err := r.buildArmatures(); err != nil {
		return nil, err
	}
	r.readMaterials()
	for _, i := range r.order {
		n := r.doc.Nodes[i]
		if n.Mesh == nil {
			continue
		}
		if err := r.readMeshNode(i, n); err != nil {
			return nil, err
		}
	}
	r.readAnimations()
	return r.created, nil
}

func nodeLocal(n *gltf.Node) *geom.Matrix4 {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		return geom.NewMatrix4FromFloat32(m)
	}
	q := n.RotationOrDefault()
	return geom.NewTRSMatrix4(
		geom.NewVector3FromFloat32(n.Translation),
		geom.NewQuaternion(geom.Element(q[0]), geom.Element(q[1]), geom.Element(q[2]), geom.Element(q[3])),
		geom.NewVector3FromFloat32(n.ScaleOrDefault()),
	)
}

// walkNodes computes world matrices and a parent-first node order.
func (r *reader) walkNodes() {
	for i := range r.nodes {
		r.nodes[i].parent = -1
		r.nodes[i].group = -1
	}
	for i, n := range r.doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(r.nodes) {
				r.nodes[c].parent = i
			}
		}
	}
	var visit func(i int, parent *geom.Matrix4)
	visit = func(i int, parent *geom.Matrix4) {
		if r.nodes[i].world != nil {
			return
		}
		r.nodes[i].world = parent.Mul(nodeLocal(r.doc.Nodes[i]))
		r.order = append(r.order, i)
		for _, c := range r.doc.Nodes[i].Children {
			visit(int(c), r.nodes[i].world)
		}
	}
	for i := range r.nodes {
		if r.nodes[i].parent < 0 {
			visit(i, geom.NewMatrix4())
		}
	}
}

// groupSkins merges skins that share a joint into one skeleton.
func (r *reader) groupSkins() {
	r.skinGroup = make([]int, len(r.doc.Skins))
	for si, skin := range r.doc.Skins {
		g := -1
		for _, j := range skin.Joints {
			if int(j) < len(r.nodes) && r.nodes[j].group >= 0 {
				g = r.nodes[j].group
				break
			}
		}
		if g < 0 {
			g = len(r.skeletons)
			r.skeletons = append(r.skeletons, &skeleton{joints: map[int]bool{}, root: -1})
		}
		r.skinGroup[si] = g
		for _, j := range skin.Joints {
			if int(j) >= len(r.nodes) {
				continue
			}
			if old := r.nodes[j].group; old >= 0 && old != g {
				r.mergeSkeletons(g, old)
			}
			r.nodes[j].group = g
			r.skeletons[g].joints[int(j)] = true
		}
	}
}

func (r *reader) mergeSkeletons(into, from int) {
	for j := range r.skeletons[from].joints {
		r.nodes[j].group = into
		r.skeletons[into].joints[j] = true
	}
	r.skeletons[from].joints = map[int]bool{}
	for i, g := range r.skinGroup {
		if g == from {
			r.skinGroup[i] = into
		}
	}
}

func (r *reader) skeletonRoot(sk *skeleton) int {
	for _, i := range r.order {
		if !sk.joints[i] {
			continue
		}
		p := r.nodes[i].parent
		if p >= 0 && !sk.joints[p] && r.doc.Nodes[p].Mesh == nil && r.nodes[p].group < 0 {
			return p
		}
		return -1
	}
	return -1
}

func (r *reader) buildArmatures() error {
	for gi, sk := range r.skeletons {
		if len(sk.joints) == 0 {
			continue
		}
		sk.root = r.skeletonRoot(sk)
		name := DefaultArmatureName
		world := geom.NewMatrix4()
		if sk.root >= 0 {
			world = r.nodes[sk.root].world
			if n := r.doc.Nodes[sk.root].Name; n != "" {
				name = n
			}
		} else {
			for si, skin := range r.doc.Skins {
				if r.skinGroup[si] == gi && skin.Name != "" {
					name = skin.Name
					break
				}
			}
		}
		bind, err := r.bindWorlds(gi, sk)
		if err != nil {
			return err
		}
		a := armature.New(name)
		inv := world.Inverse()
		for _, i := range r.order {
			if !sk.joints[i] {
				continue
			}
			if err := r.addBone(a, sk, i, inv, bind); err != nil {
				return err
			}
		}
		jointOf := map[string]int{}
		for j := range sk.joints {
			jointOf[r.nodes[j].bone] = j
		}
		posed := 0
		for _, b := range a.HierarchyOrder() {
			m := inv.Mul(r.nodes[jointOf[b.Name]].world)
			if !m.ApproxEqual(&b.Rest, 1e-4) {
				a.SetPoseMatrix(b, m)
				posed++
			}
		}
		if posed > 0 {
			slog.Debug("restored pose from node transforms", "armature", name, "bones", posed)
		}
		o := scene.NewArmatureObject(a)
		o.Local = *world
		sk.arm = a
		sk.object = r.s.Add(o, nil)
		r.created = append(r.created, sk.object)
		for j := range sk.joints {
			r.nodes[j].object = sk.object
		}
		if sk.root >= 0 {
			r.nodes[sk.root].object = sk.object
		}
		slog.Debug("imported armature", "armature", o.Name, "bones", a.Len())
	}
	return nil
}

// bindWorlds returns the bind pose world matrix of every joint of sk. Joints
// without inverse bind matrices bind at their node transform.
func (r *reader) bindWorlds(gi int, sk *skeleton) (map[int]*geom.Matrix4, error) {
	bind := map[int]*geom.Matrix4{}
	for si, skin := range r.doc.Skins {
		if r.skinGroup[si] != gi {
			continue
		}
		ibm, err := bindMatrices(r.doc, skin)
		if err != nil {
			return nil, fmt.Errorf("skin %s: %w", skin.Name, err)
		}
		for j, m := range ibm {
			if _, ok := bind[j]; !ok && m.Det() != 0 {
				bind[j] = m.Inverse()
			}
		}
	}
	for j := range sk.joints {
		if _, ok := bind[j]; !ok {
			bind[j] = r.nodes[j].world
		}
	}
	return bind, nil
}

func (r *reader) addBone(a *armature.Armature, sk *skeleton, i int, inv *geom.Matrix4, bind map[int]*geom.Matrix4) error {
	n := r.doc.Nodes[i]
	name := n.Name
	if name == "" {
		name = fmt.Sprintf("node_%d", i)
	}
	name = armature.UniqueName(name, func(s string) bool { return a.Bone(s) != nil })

	t, q, _ := inv.Mul(bind[i]).Decompose()
	rest := geom.NewTRSMatrix4(t, q, geom.NewVector3(1, 1, 1))

	var length geom.Element
	for _, c := range n.Children {
		if sk.joints[int(c)] {
			ct := inv.Mul(bind[int(c)]).Translation()
			if l := ct.Sub(t).Len(); l > 1e-5 {
				length = l
				break
			}
		}
	}

	var parent *armature.Bone
	for p := r.nodes[i].parent; p >= 0; p = r.nodes[p].parent {
		if sk.joints[p] {
			parent = a.Bone(r.nodes[p].bone)
			break
		}
	}
	if err := a.AddBone(armature.NewBone(name, rest, length), parent); err != nil {
		return fmt.Errorf("bone %s: %w", name, err)
	}
	r.nodes[i].bone = name
	return nil
}

func (r *reader) readMaterials() {
	r.images = map[uint32]*scene.Image{}
	for i, m := range r.doc.Materials {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("material_%d", i)
		}
		mat := r.s.EnsureMaterial(name)
		mat.BackfaceCulling = !m.DoubleSided
		if sh := extraString(m.Extras, shaderExtra); sh != "" {
			mat.Shader = sh
		}
		if pbr := m.PBRMetallicRoughness; pbr != nil && pbr.BaseColorTexture != nil {
			mat.BaseColorTexture = r.textureImage(pbr.BaseColorTexture.Index)
		}
		r.materials = append(r.materials, mat)
	}
}

func (r *reader) textureImage(ti uint32) *scene.Image {
	if int(ti) >= len(r.doc.Textures) || r.doc.Textures[ti].Source == nil {
		return nil
	}
	src := *r.doc.Textures[ti].Source
	if img, ok := r.images[src]; ok {
		return img
	}
	img, err := r.readImage(src)
	if err != nil {
		slog.Warn("texture not loaded", "image", src, "err", err)
	} else {
		img = r.s.AddImage(img)
	}
	r.images[src] = img
	return img
}

func (r *reader) readImage(i uint32) (*scene.Image, error) {
	if int(i) >= len(r.doc.Images) {
		return nil, fmt.Errorf("image %d out of range", i)
	}
	gi := r.doc.Images[i]
	name := gi.Name
	if name == "" && gi.URI != "" && !gi.IsEmbeddedResource() {
		name = filepath.Base(gi.URI)
	}
	if name == "" {
		name = fmt.Sprintf("image_%d", i)
	}

	var data []byte
	switch {
	case gi.BufferView != nil:
		d, err := bufferViewData(r.doc, *gi.BufferView)
		if err != nil {
			return nil, err
		}
		data = d
	case gi.IsEmbeddedResource():
		d, err := gi.MarshalData()
		if err != nil {
			return nil, err
		}
		data = d
	case gi.URI != "":
		path := filepath.Join(r.dir, filepath.FromSlash(gi.URI))
		if !r.opts.PackImages {
			return &scene.Image{Name: name, Path: path, MIMEType: gi.MimeType}, nil
		}
		img, err := r.pack.PackFile(path)
		if err != nil {
			return nil, err
		}
		img.Name = name
		return img, nil
	default:
		return nil, fmt.Errorf("image %s has no data", name)
	}
	img, err := r.pack.Pack(name, append([]byte(nil), data...))
	if err != nil {
		return nil, err
	}
	if gi.MimeType != "" && img.MIMEType == "" {
		img.MIMEType = gi.MimeType
	}
	return img, nil
}

func bufferViewData(doc *gltf.Document, i uint32) ([]byte, error) {
	if int(i) >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d out of range", i)
	}
	bv := doc.BufferViews[i]
	if int(bv.Buffer) >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if int(end) > len(data) {
		return nil, fmt.Errorf("buffer view %d exceeds buffer", i)
	}
	return data[bv.ByteOffset:end], nil
}

func (r *reader) readMeshNode(i int, n *gltf.Node) error {
	if int(*n.Mesh) >= len(r.doc.Meshes) {
		return fmt.Errorf("node %s: mesh %d out of range", n.Name, *n.Mesh)
	}
	gm := r.doc.Meshes[*n.Mesh]
	mesh := &scene.Mesh{}
	var skin *gltf.Skin
	group := -1
	if n.Skin != nil && int(*n.Skin) < len(r.doc.Skins) {
		skin = r.doc.Skins[*n.Skin]
		group = r.skinGroup[*n.Skin]
		for _, j := range skin.Joints {
			mesh.VertexGroups = append(mesh.VertexGroups, r.nodes[j].bone)
		}
	}

	hasNormals := true
	bases := map[uint32]uint32{}
	for _, p := range gm.Primitives {
		ok, err := r.readPrimitive(mesh, p, skin != nil, bases)
		if err != nil {
			return fmt.Errorf("mesh %s: %w", gm.Name, err)
		}
		hasNormals = hasNormals && ok
	}
	if hasNormals && len(mesh.Normals) == len(mesh.Positions) {
		mesh.CustomNormals = true
	} else {
		mesh.RecalculateNormals()
	}
	if r.opts.MergeVertices {
		if removed := mesh.Weld(); removed > 0 {
			slog.Debug("merged vertices", "mesh", gm.Name, "removed", removed)
		}
	}

	name := n.Name
	if name == "" {
		name = gm.Name
	}
	if name == "" {
		name = fmt.Sprintf("mesh_%d", i)
	}
	o := scene.NewMeshObject(name, mesh)
	if skin == nil {
		o.Local = *r.nodes[i].world
	}
	h := r.s.Add(o, nil)
	r.nodes[i].object = h
	r.created = append(r.created, h)

	if group >= 0 {
		armH := r.skeletons[group].object
		o.AddModifier(&scene.Modifier{Name: DefaultArmatureName, Kind: scene.ModifierArmature, Object: armH})
		if err := r.s.SetParent(h, armH, true); err != nil {
			return err
		}
	}
	return nil
}

// readPrimitive appends one triangle primitive and reports whether it
// carried normals. Primitives sharing a POSITION accessor share vertices.
func (r *reader) readPrimitive(mesh *scene.Mesh, p *gltf.Primitive, skinned bool, bases map[uint32]uint32) (bool, error) {
	if p.Mode != gltf.PrimitiveTriangles {
		slog.Warn("skipping non-triangle primitive", "mode", p.Mode)
		return true, nil
	}
	pa, ok := p.Attributes["POSITION"]
	if !ok {
		return true, nil
	}
	hasNormals := true
	base, ok := bases[pa]
	if !ok {
		base = uint32(len(mesh.Positions))
		bases[pa] = base
		var err error
		if hasNormals, err = r.readVertices(mesh, p, skinned); err != nil {
			return false, err
		}
	}
	count := r.doc.Accessors[pa].Count

	var indices []uint32
	if p.Indices != nil {
		var err error
		if indices, err = modeler.ReadIndices(r.doc, r.doc.Accessors[*p.Indices], nil); err != nil {
			return false, err
		}
	} else {
		indices = make([]uint32, count)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	slot := 0
	if p.Material != nil && int(*p.Material) < len(r.materials) {
		slot = mesh.MaterialSlot(r.materials[*p.Material])
	} else if len(mesh.Materials) == 0 {
		mesh.Materials = append(mesh.Materials, nil)
	}
	for t := 0; t+2 < len(indices); t += 3 {
		if indices[t] >= count || indices[t+1] >= count || indices[t+2] >= count {
			return false, fmt.Errorf("index out of range in triangle %d", t/3)
		}
		mesh.Indices = append(mesh.Indices, base+indices[t], base+indices[t+1], base+indices[t+2])
		mesh.FaceMaterials = append(mesh.FaceMaterials, slot)
	}
	return hasNormals, nil
}

func (r *reader) readVertices(mesh *scene.Mesh, p *gltf.Primitive, skinned bool) (bool, error) {
	pos, err := modeler.ReadPosition(r.doc, r.doc.Accessors[p.Attributes["POSITION"]], nil)
	if err != nil {
		return false, err
	}
	count := len(pos)
	mesh.Positions = append(mesh.Positions, pos...)

	var normals [][3]float32
	if a, ok := p.Attributes["NORMAL"]; ok {
		if normals, err = modeler.ReadNormal(r.doc, r.doc.Accessors[a], nil); err != nil {
			return false, err
		}
	}
	hasNormals := len(normals) == count
	if hasNormals {
		mesh.Normals = append(mesh.Normals, normals...)
	} else {
		mesh.Normals = append(mesh.Normals, make([][3]float32, count)...)
	}

	uvs := make([][2]float32, count)
	if a, ok := p.Attributes["TEXCOORD_0"]; ok {
		t, err := modeler.ReadTextureCoord(r.doc, r.doc.Accessors[a], nil)
		if err != nil {
			return false, err
		}
		copy(uvs, t)
	}
	mesh.UVs = append(mesh.UVs, uvs...)

	if !skinned {
		return hasNormals, nil
	}
	joints := make([][4]uint16, count)
	weights := make([][4]float32, count)
	if a, ok := p.Attributes["JOINTS_0"]; ok {
		j, err := modeler.ReadJoints(r.doc, r.doc.Accessors[a], nil)
		if err != nil {
			return false, err
		}
		copy(joints, j)
	}
	if a, ok := p.Attributes["WEIGHTS_0"]; ok {
		w, err := modeler.ReadWeights(r.doc, r.doc.Accessors[a], nil)
		if err != nil {
			return false, err
		}
		copy(weights, w)
	}
	mesh.Joints = append(mesh.Joints, joints...)
	mesh.Weights = append(mesh.Weights, weights...)
	return hasNormals, nil
}

// readAnimations marks objects targeted by animation channels. The first
// animation becomes the active action, the rest NLA tracks.
func (r *reader) readAnimations() {
	for i, anim := range r.doc.Animations {
		name := anim.Name
		if name == "" {
			name = fmt.Sprintf("animation_%d", i)
		}
		seen := map[scene.Handle]bool{}
		for _, ch := range anim.Channels {
			if ch.Target.Node == nil || int(*ch.Target.Node) >= len(r.nodes) {
				continue
			}
			h := r.nodes[*ch.Target.Node].object
			o, ok := r.s.Get(h)
			if !ok || seen[h] {
				continue
			}
			seen[h] = true
			if o.Animation == nil {
				o.Animation = &scene.AnimationData{Action: name}
			} else {
				o.Animation.NLATracks = append(o.Animation.NLATracks, name)
			}
		}
	}
}

func extraString(extras interface{}, key string) string {
	var m map[string]interface{}
	switch e := extras.(type) {
	case map[string]interface{}:
		m = e
	case json.RawMessage:
		_ = json.Unmarshal(e, &m)
	case []byte:
		_ = json.Unmarshal(e, &m)
	}
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}
