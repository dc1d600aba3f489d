package gltfio

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
	"github.com/mektools/rigtools/scene"
	"github.com/mektools/rigtools/texture"
)

type writer struct {
	*gltf.Document
	s *scene.Scene

	skins     map[scene.Handle]*skinInfo
	materials map[*scene.Material]uint32
	textures  map[*scene.Image]*uint32
}

type skinInfo struct {
	index  uint32
	joints map[string]uint16
}

// Save writes every armature and mesh object of s to path as GLB. Bones
// are written in their evaluated pose; skins bind to the rest pose.
func Save(s *scene.Scene, path string) error {
	doc, err := Encode(s)
	if err != nil {
		return err
	}
	return gltf.SaveBinary(doc, path)
}

// Encode builds a glTF document from the scene.
func Encode(s *scene.Scene) (*gltf.Document, error) {
	w := &writer{
		Document:  gltf.NewDocument(),
		s:         s,
		skins:     map[scene.Handle]*skinInfo{},
		materials: map[*scene.Material]uint32{},
		textures:  map[*scene.Image]*uint32{},
	}
	for _, o := range s.Armatures() {
		w.addArmature(o)
	}
	for _, o := range s.Objects() {
		if o.Kind != scene.KindMesh || o.Mesh == nil || o.Mesh.VertexCount() == 0 {
			continue
		}
		if err := w.addMesh(o); err != nil {
			return nil, fmt.Errorf("mesh %s: %w", o.Name, err)
		}
	}
	if len(w.Textures) > 0 {
		w.Samplers = []*gltf.Sampler{{}}
	}
	return w.Document, nil
}

func (w *writer) addNode(n *gltf.Node, parent *gltf.Node) uint32 {
	i := uint32(len(w.Nodes))
	w.Nodes = append(w.Nodes, n)
	if parent == nil {
		w.Scenes[0].Nodes = append(w.Scenes[0].Nodes, i)
	} else {
		parent.Children = append(parent.Children, i)
	}
	return i
}

func trsNode(name string, m *geom.Matrix4) *gltf.Node {
	t, q, sc := m.Decompose()
	return &gltf.Node{
		Name:        name,
		Translation: t.ToFloat32(),
		Rotation:    [4]float32{float32(q.X), float32(q.Y), float32(q.Z), float32(q.W)},
		Scale:       sc.ToFloat32(),
	}
}

func (w *writer) addArmature(o *scene.Object) {
	world := w.s.WorldMatrix(o)
	root := trsNode(o.Name, world)
	rootIndex := w.addNode(root, nil)

	a := o.Armature
	e := armature.NewEvaluator()
	nodes := map[*armature.Bone]*gltf.Node{}
	info := &skinInfo{joints: map[string]uint16{}}
	var joints []uint32
	var invmats [][4][4]float32
	for _, b := range a.HierarchyOrder() {
		local := e.PoseMatrix(b)
		parent := root
		if p := b.Parent(); p != nil {
			local = e.PoseMatrix(p).Inverse().Mul(local)
			parent = nodes[p]
		}
		n := trsNode(b.Name, local)
		nodes[b] = n
		info.joints[b.Name] = uint16(len(joints))
		joints = append(joints, w.addNode(n, parent))
		invmats = append(invmats, toColumns(world.Mul(&b.Rest).Inverse()))
	}
	if len(joints) == 0 {
		return
	}
	w.Skins = append(w.Skins, &gltf.Skin{
		Name:                o.Name,
		Joints:              joints,
		Skeleton:            gltf.Index(rootIndex),
		InverseBindMatrices: gltf.Index(w.addMatrices(invmats)),
	})
	info.index = uint32(len(w.Skins) - 1)
	w.skins[o.Handle()] = info
}

func toColumns(m *geom.Matrix4) [4][4]float32 {
	a := m.ToFloat32()
	var r [4][4]float32
	for c := 0; c < 4; c++ {
		copy(r[c][:], a[c*4:c*4+4])
	}
	return r
}

func (w *writer) addMatrices(mat [][4][4]float32) uint32 {
	a := make([][4]float32, 0, len(mat)*4)
	for _, m := range mat {
		a = append(a, m[0], m[1], m[2], m[3])
	}
	acc := modeler.WriteTangent(w.Document, a)
	w.Accessors[acc].Type = gltf.AccessorMat4
	w.Accessors[acc].Count /= 4
	w.BufferViews[*w.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

// skinFor returns the skin of the armature deforming o.
func (w *writer) skinFor(o *scene.Object) *skinInfo {
	for _, m := range o.ArmatureModifiers() {
		if sk, ok := w.skins[m.Object]; ok {
			return sk
		}
	}
	return nil
}

func (w *writer) addMesh(o *scene.Object) error {
	mesh := o.Mesh
	world := w.s.WorldMatrix(o)
	skin := w.skinFor(o)
	n := &gltf.Node{Name: o.Name}

	positions := mesh.Positions
	normals := mesh.Normals
	if skin != nil {
		// skinned vertices are stored in world space
		positions = make([][3]float32, len(mesh.Positions))
		for i, p := range mesh.Positions {
			positions[i] = world.ApplyTo(geom.NewVector3FromFloat32(p)).ToFloat32()
		}
		normals = make([][3]float32, len(mesh.Normals))
		for i, v := range mesh.Normals {
			normals[i] = world.ApplyToDirection(geom.NewVector3FromFloat32(v)).Normalize().ToFloat32()
		}
	} else {
		n.Matrix = world.ToFloat32()
	}

	attributes := map[string]uint32{
		"POSITION": modeler.WritePosition(w.Document, positions),
	}
	if len(normals) == len(positions) {
		attributes["NORMAL"] = modeler.WriteNormal(w.Document, normals)
	}
	if len(mesh.UVs) == len(positions) {
		attributes["TEXCOORD_0"] = modeler.WriteTextureCoord(w.Document, mesh.UVs)
	}
	if skin != nil && len(mesh.Joints) == len(positions) {
		joints, weights := remapJoints(mesh, skin)
		attributes["JOINTS_0"] = modeler.WriteJoints(w.Document, joints)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(w.Document, weights)
		n.Skin = gltf.Index(skin.index)
	}

	slots := len(mesh.Materials)
	if slots == 0 {
		slots = 1
	}
	indices := make([][]uint32, slots)
	for t := 0; t < mesh.TriangleCount(); t++ {
		slot := 0
		if t < len(mesh.FaceMaterials) && mesh.FaceMaterials[t] < slots {
			slot = mesh.FaceMaterials[t]
		}
		indices[slot] = append(indices[slot], mesh.Indices[t*3:t*3+3]...)
	}

	gm := &gltf.Mesh{Name: o.Name}
	for slot, idx := range indices {
		if len(idx) == 0 {
			continue
		}
		p := &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(w.Document, idx)),
			Attributes: attributes,
		}
		if slot < len(mesh.Materials) && mesh.Materials[slot] != nil {
			p.Material = gltf.Index(w.addMaterial(mesh.Materials[slot]))
		}
		gm.Primitives = append(gm.Primitives, p)
	}
	if len(gm.Primitives) == 0 {
		return nil
	}
	n.Mesh = gltf.Index(uint32(len(w.Meshes)))
	w.Meshes = append(w.Meshes, gm)
	w.addNode(n, nil)
	return nil
}

// remapJoints rewrites vertex group indices into skin joint indices by
// bone name. Groups without a bone lose their weight.
func remapJoints(mesh *scene.Mesh, skin *skinInfo) ([][4]uint16, [][4]float32) {
	joints := make([][4]uint16, len(mesh.Joints))
	weights := make([][4]float32, len(mesh.Joints))
	for v, js := range mesh.Joints {
		for k, g := range js {
			var wt float32
			if v < len(mesh.Weights) {
				wt = mesh.Weights[v][k]
			}
			if wt == 0 || int(g) >= len(mesh.VertexGroups) {
				continue
			}
			j, ok := skin.joints[mesh.VertexGroups[g]]
			if !ok {
				continue
			}
			joints[v][k] = j
			weights[v][k] = wt
		}
	}
	return joints, weights
}

func (w *writer) addMaterial(m *scene.Material) uint32 {
	if i, ok := w.materials[m]; ok {
		return i
	}
	gm := &gltf.Material{
		Name:        m.Name,
		DoubleSided: !m.BackfaceCulling,
	}
	if m.Shader != "" {
		gm.Extras = map[string]interface{}{shaderExtra: m.Shader}
	}
	if m.BaseColorTexture != nil {
		if t := w.addTexture(m.BaseColorTexture); t != nil {
			gm.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{
				BaseColorTexture: &gltf.TextureInfo{Index: *t},
			}
		}
	}
	i := uint32(len(w.Materials))
	w.Materials = append(w.Materials, gm)
	w.materials[m] = i
	return i
}

func (w *writer) addTexture(img *scene.Image) *uint32 {
	if t, ok := w.textures[img]; ok {
		return t
	}
	data, mimeType := img.Packed, img.MIMEType
	if !img.IsPacked() {
		b, err := os.ReadFile(img.Path)
		if err != nil {
			slog.Warn("texture not embedded", "image", img.Name, "err", err)
			w.textures[img] = nil
			return nil
		}
		data = b
		mimeType = texture.MIMEType(b, img.Path)
	}
	if mimeType == "" {
		mimeType = texture.MIMEType(data, img.Name)
	}
	name := img.Name
	if name == "" {
		name = filepath.Base(img.Path)
	}
	src, err := modeler.WriteImage(w.Document, name, mimeType, bytes.NewReader(data))
	if err != nil {
		slog.Warn("texture not embedded", "image", img.Name, "err", err)
		w.textures[img] = nil
		return nil
	}
	w.Buffers[0].ByteLength = uint32(len(w.Buffers[0].Data))
	w.Textures = append(w.Textures, &gltf.Texture{Sampler: gltf.Index(0), Source: gltf.Index(src)})
	t := gltf.Index(uint32(len(w.Textures) - 1))
	w.textures[img] = t
	return t
}
