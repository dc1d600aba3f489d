package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
	"github.com/mektools/rigtools/scene"
)

// build creates an armature from name/parent pairs; bones are stacked on Y.
func build(t *testing.T, name string, pairs ...string) *armature.Armature {
	t.Helper()
	a := armature.New(name)
	for i := 0; i < len(pairs); i += 2 {
		b := armature.NewBone(pairs[i], geom.NewTranslateMatrix4(0, float64(i/2), 0), 1)
		require.NoError(t, a.AddBone(b, a.Bone(pairs[i+1])))
	}
	return a
}

func parentName(b *armature.Bone) string {
	if b.Parent() == nil {
		return ""
	}
	return b.Parent().Name
}

func TestReconcileScenarioA(t *testing.T) {
	ref := build(t, "Mekrig", "root", "", "spine", "root", "head", "spine")
	inc := build(t, "Import", "root", "", "spine", "root", "head", "spine", "hair1", "head")
	refHead := ref.Bone("head")

	res := Reconcile(ref, inc, Options{})

	assert.Same(t, ref, res.Merged)
	assert.Equal(t, 4, ref.Len())
	assert.ElementsMatch(t, []string{"root", "spine", "head"}, res.Removed)
	assert.Equal(t, []string{"hair1"}, res.Grafted)
	assert.Empty(t, res.ReparentFailures)
	assert.False(t, res.Disconnected)

	hair := ref.Bone("hair1")
	require.NotNil(t, hair)
	assert.Same(t, refHead, hair.Parent())
	assert.Equal(t, 0, inc.Len())
}

func TestReconcileKeepsSurvivingParents(t *testing.T) {
	ref := build(t, "Mekrig", "root", "", "head", "root")
	inc := build(t, "Import",
		"root", "",
		"head", "root",
		"j_kami_a", "head",
		"j_kami_b", "j_kami_a",
		"j_ex_top", "j_kami_b",
	)

	res := Reconcile(ref, inc, Options{})

	names := map[string]int{}
	for _, b := range ref.Bones() {
		names[b.Name]++
	}
	for n, c := range names {
		assert.Equal(t, 1, c, n)
	}
	assert.Equal(t, "head", parentName(ref.Bone("j_kami_a")))
	assert.Equal(t, "j_kami_a", parentName(ref.Bone("j_kami_b")))
	assert.Equal(t, "j_kami_b", parentName(ref.Bone("j_ex_top")))
	assert.Empty(t, res.ReparentFailures)
}

func TestReconcileReferenceWins(t *testing.T) {
	ref := build(t, "Mekrig", "root", "")
	ref.Bone("root").Rest = *geom.NewTranslateMatrix4(5, 0, 0)
	inc := build(t, "Import", "root", "", "extra", "root")

	Reconcile(ref, inc, Options{})
	assert.InDelta(t, 5, ref.Bone("root").Head().X, 1e-9)
	assert.Equal(t, "root", parentName(ref.Bone("extra")))
}

func TestReconcileDisconnected(t *testing.T) {
	ref := build(t, "Mekrig", "root", "")
	inc := build(t, "Import", "other", "", "child", "other")

	res := Reconcile(ref, inc, Options{})
	assert.True(t, res.Disconnected)
	assert.Equal(t, 3, ref.Len())
	assert.Equal(t, "other", parentName(ref.Bone("child")))
}

func TestReconcilePrunedCollection(t *testing.T) {
	ref := build(t, "Mekrig", "root", "")
	inc := build(t, "Import", "root", "", "hair", "root")

	Reconcile(ref, inc, Options{PrunedCollection: PrunedCollectionName})
	col := ref.Collection(PrunedCollectionName)
	require.NotNil(t, col)
	assert.False(t, col.Visible)
	assert.True(t, col.Contains(ref.Bone("hair")))
	assert.False(t, col.Contains(ref.Bone("root")))
}

func TestReconcileRetargetsConstraints(t *testing.T) {
	ref := build(t, "Mekrig", "root", "", "head", "root")
	inc := build(t, "Import", "root", "", "head", "root", "hair", "head")
	c := armature.NewConstraint(armature.CopyRotation, inc, "head")
	inc.Bone("hair").AddConstraint(c)

	Reconcile(ref, inc, Options{})
	assert.Same(t, ref, c.Target)
	assert.Same(t, ref.Bone("head"), c.TargetBone())
}

func TestReconcileObjectSpace(t *testing.T) {
	ref := build(t, "Mekrig", "root", "")
	inc := build(t, "Import", "root", "", "tail", "root")
	inc.World = *geom.NewTranslateMatrix4(0, 0, 2)

	Reconcile(ref, inc, Options{})
	assert.InDelta(t, 2, ref.Bone("tail").Head().Z, 1e-9)
}

func TestReconcileOrphans(t *testing.T) {
	for _, tc := range []struct {
		name   string
		policy OrphanPolicy
		parent string
	}{
		{"detach", OrphanDetach, ""},
		{"nearest ancestor", OrphanNearestAncestor, "spine"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ref := build(t, "Mekrig", "root", "", "spine", "root")
			inc := build(t, "Import", "root", "", "spine", "root", "n_scaffold", "spine", "tip", "n_scaffold")
			rec := NewRecord(inc)
			inc.RemoveBone(inc.Bone("n_scaffold"))

			res := Reconcile(ref, inc, Options{Orphans: tc.policy, Record: rec})
			require.NotNil(t, ref.Bone("tip"))
			assert.Equal(t, tc.parent, parentName(ref.Bone("tip")))
			assert.Nil(t, ref.Bone("n_scaffold"))
			assert.NotContains(t, res.ReparentFailures, "n_scaffold")
			if tc.policy == OrphanDetach {
				assert.Equal(t, []string{"tip"}, res.ReparentFailures)
			} else {
				assert.Empty(t, res.ReparentFailures)
			}
		})
	}
}

func TestNearestAncestor(t *testing.T) {
	src := build(t, "Import", "a", "", "b", "a", "c", "b", "d", "c")
	rec := NewRecord(src)
	merged := build(t, "Merged", "a", "", "d", "")

	p := nearestAncestor(merged, rec, "c")
	require.NotNil(t, p)
	assert.Equal(t, "a", p.Name)
	assert.Nil(t, nearestAncestor(merged, rec, "a"))
}

func TestMergeArmatures(t *testing.T) {
	s := scene.New()
	rigCol := s.NewCollection("Mekrig")
	importCol := s.NewCollection("Model_Import")

	ref := s.Add(scene.NewArmatureObject(build(t, "Mekrig", "root", "", "head", "root")), rigCol)
	incArm := build(t, "Import", "root", "", "head", "root", "hair", "head")
	inc := s.Add(scene.NewArmatureObject(incArm), importCol)

	mesh := &scene.Mesh{
		Positions:    [][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 0, 0}},
		Indices:      []uint32{0, 1, 2},
		Joints:       [][4]uint16{{0}, {1}, {2}},
		Weights:      [][4]float32{{1}, {1}, {1}},
		VertexGroups: []string{"root", "head", "hair"},
	}
	body := scene.NewMeshObject("body", mesh)
	body.AddModifier(&scene.Modifier{Name: "Armature", Kind: scene.ModifierArmature, Object: inc})
	bodyH := s.Add(body, importCol)
	require.NoError(t, s.SetParent(bodyH, inc, true))

	res, err := MergeArmatures(s, ref, inc, Options{PrunedCollection: PrunedCollectionName})
	require.NoError(t, err)

	assert.False(t, s.Alive(inc))
	assert.Equal(t, []scene.Handle{bodyH}, res.Rebind.Retargeted)
	assert.Empty(t, res.Rebind.MissingGroups)
	assert.Equal(t, ref, body.Modifiers[0].Object)
	p, ok := s.Parent(bodyH)
	require.True(t, ok)
	assert.Equal(t, ref, p.Handle())
	assert.Same(t, importCol, rigCol.Parent())

	refObj, _ := s.Get(ref)
	assert.Equal(t, 3, refObj.Armature.Len())
	assert.Equal(t, "head", parentName(refObj.Armature.Bone("hair")))
}

func TestMergeArmaturesReportsMissingGroups(t *testing.T) {
	s := scene.New()
	ref := s.Add(scene.NewArmatureObject(build(t, "Mekrig", "root", "")), nil)
	inc := s.Add(scene.NewArmatureObject(build(t, "Import", "root", "")), nil)
	body := scene.NewMeshObject("body", &scene.Mesh{
		Positions:    [][3]float32{{0, 0, 0}},
		Joints:       [][4]uint16{{0}},
		Weights:      [][4]float32{{1}},
		VertexGroups: []string{"ghost"},
	})
	body.AddModifier(&scene.Modifier{Name: "Armature", Kind: scene.ModifierArmature, Object: inc})
	s.Add(body, nil)

	res, err := MergeArmatures(s, ref, inc, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, res.Rebind.MissingGroups["body"])

	_, err = MergeArmatures(s, ref, inc, Options{})
	assert.ErrorIs(t, err, scene.ErrGone)
}
