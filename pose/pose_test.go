package pose

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
)

const eps = 1e-6

func newBody(t *testing.T) *armature.Armature {
	t.Helper()
	a := armature.New("Mekrig")
	add := func(b *armature.Bone, parent string) {
		require.NoError(t, a.AddBone(b, a.Bone(parent)))
	}
	add(armature.NewBone("n_throw", geom.NewMatrix4(), 1), "")
	add(armature.NewBoneFromHeadTail("j_kosi", geom.NewVector3(0, 1, 0), geom.NewVector3(0, 1.5, 0.2), 0), "n_throw")
	add(armature.NewBoneFromHeadTail("j_ude_a_l", geom.NewVector3(0.3, 1.4, 0), geom.NewVector3(0.8, 1.3, 0), 0.1), "j_kosi")
	add(armature.NewBoneFromHeadTail("j_te_l", geom.NewVector3(0.8, 1.3, 0), geom.NewVector3(1, 1.25, 0.05), 0), "j_ude_a_l")
	return a
}

func relativeTo(a *armature.Armature, root, b string) *geom.Matrix4 {
	return a.PoseMatrix(a.Bone(root)).Inverse().Mul(a.PoseMatrix(a.Bone(b)))
}

func TestEncode(t *testing.T) {
	rec := NewRecord()
	rec.Bones["n_throw"] = &Transform{Rotation: geom.NewIdentityQuaternion()}
	rec.Bones["j_kosi"] = &Transform{
		Position: geom.NewVector3(1, -2, 0.5),
		Scale:    geom.NewVector3(1, 1, 1),
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rec))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "{\n    \"FileExtension\": \".pose\",\n    \"TypeName\": \"Mektools Pose\",\n    \"FileVersion\": 2,"), out)
	assert.Contains(t, out, `"Rotation": "0.000000, 0.000000, 0.000000, 1.000000"`)
	assert.Contains(t, out, `"Position": "1.000000, -2.000000, 0.500000"`)
	assert.Contains(t, out, `"Scale": "1.00000000, 1.00000000, 1.00000000"`)
	assert.NotContains(t, out, `"Position": null`)

	back, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, FileVersion, back.FileVersion)
	assert.Nil(t, back.Bones["n_throw"].Position)
	assert.Nil(t, back.Bones["j_kosi"].Rotation)
	assert.InDelta(t, -2, back.Bones["j_kosi"].Position.Y, eps)
}

func TestDecodeSkipsMalformedFields(t *testing.T) {
	in := `{
		"FileExtension": ".pose",
		"Bones": {
			"n_throw": {"Rotation": "0.0,0.0,0.0,1.0", "Position": "bad", "Scale": 5},
			"j_kosi": null,
			"j_kubi": {"Rotation": "0, 0, 1"}
		}
	}`
	rec, err := Decode(strings.NewReader(in))
	require.NoError(t, err)

	root, ok := rec.Lookup("n_throw.004")
	require.True(t, ok)
	assert.True(t, root.Rotation.IsIdentity(eps))
	assert.Nil(t, root.Position)
	assert.Nil(t, root.Scale)

	_, ok = rec.Lookup("j_kosi")
	assert.False(t, ok)
	kubi, ok := rec.Lookup("j_kubi")
	require.True(t, ok)
	assert.Nil(t, kubi.Rotation)
}

func TestDecodeByteOrderMark(t *testing.T) {
	in := `{"Bones": {"j_kao": {"Rotation": "0.0, 0.0, 0.0, 1.0"}}}`

	rec, err := Decode(strings.NewReader("\ufeff" + in))
	require.NoError(t, err)
	assert.Contains(t, rec.Bones, "j_kao")

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(in)
	require.NoError(t, err)
	rec, err = Decode(strings.NewReader(utf16))
	require.NoError(t, err)
	assert.Contains(t, rec.Bones, "j_kao")
}

func TestDecodeInvalid(t *testing.T) {
	for _, in := range []string{"", "not json", `{"TypeName": "Mektools Pose"}`, `{"Bones": []}`} {
		_, err := Decode(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrInvalidFile, in)
	}
}

func TestCaptureRelativeToRoot(t *testing.T) {
	a := newBody(t)
	a.World = *geom.NewTranslateMatrix4(0, 0, 3)
	root := a.Bone("n_throw")
	root.Location = geom.Vector3{X: 0.5}
	root.Rotation = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), 0.7)

	rec, err := Capture(a, CaptureOptions{})
	require.NoError(t, err)
	require.Len(t, rec.Bones, 4)

	r := rec.Bones["n_throw"]
	assert.True(t, r.Rotation.IsIdentity(eps))
	assert.InDelta(t, 0, r.Position.Len(), eps)
	assert.InDelta(t, 1, r.Scale.X, eps)

	_, want, _ := relativeTo(a, "n_throw", "j_kosi").Decompose()
	assert.True(t, rec.Bones["j_kosi"].Rotation.Equivalent(want, eps))
}

func TestCaptureIgnoresSuffix(t *testing.T) {
	a := newBody(t)
	require.NoError(t, a.Rename(a.Bone("n_throw"), "n_throw.003"))
	require.NoError(t, a.Rename(a.Bone("j_kosi"), "j_kosi.001"))

	rec, err := Capture(a, CaptureOptions{Bones: []string{"j_kosi.001", "missing"}, Fields: RotationOnly})
	require.NoError(t, err)
	require.Len(t, rec.Bones, 1)
	assert.NotNil(t, rec.Bones["j_kosi"].Rotation)
	assert.Nil(t, rec.Bones["j_kosi"].Position)
}

func TestCaptureRootMissing(t *testing.T) {
	a := newBody(t)
	_, err := Capture(a, CaptureOptions{Root: "n_root"})
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestApplyRoundTrip(t *testing.T) {
	a := newBody(t)
	a.World = *geom.NewTranslateMatrix4(1, 0, 0)
	a.Bone("n_throw").Rotation = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), 0.3)
	a.Bone("j_kosi").Rotation = *geom.NewEuler(0.2, 0.1, -0.3, geom.RotationOrderXYZ).ToQuaternion()
	a.Bone("j_ude_a_l").Rotation = *geom.NewEuler(-0.5, 0.4, 0.2, geom.RotationOrderXYZ).ToQuaternion()
	a.Bone("j_ude_a_l").Location = geom.Vector3{X: 0.05, Y: -0.02}
	a.Bone("j_te_l").Scale = geom.Vector3{X: 1.1, Y: 1.1, Z: 1.1}

	rec, err := Capture(a, CaptureOptions{})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rec))
	rec, err = Decode(&buf)
	require.NoError(t, err)

	b := a.Clone()
	b.ResetPose()
	res, err := Apply(rec, b, ApplyOptions{Fields: AllFields})
	require.NoError(t, err)
	assert.Len(t, res.Applied, 4)
	assert.Empty(t, res.Missing)

	for _, name := range []string{"j_kosi", "j_ude_a_l", "j_te_l"} {
		want := relativeTo(a, "n_throw", name)
		got := relativeTo(b, "n_throw", name)
		assert.True(t, got.ApproxEqual(want, 1e-4), name)
	}
	assert.True(t, b.Bone("n_throw").Rotation.IsIdentity(eps))
}

func TestApplyScenarioB(t *testing.T) {
	a := armature.New("Mekrig")
	rest := geom.NewQuaternionFromAxisAngle(geom.NewVector3(1, 0, 0), math.Pi/2)
	root := armature.NewBone("n_throw", geom.NewRotationMatrix4FromQuaternion(rest), 1)
	require.NoError(t, a.AddBone(root, nil))
	child := armature.NewBone("j_kosi", geom.NewRotationMatrix4FromQuaternion(rest).Mul(geom.NewTranslateMatrix4(0, 1, 0)), 1)
	require.NoError(t, a.AddBone(child, root))
	root.Rotation = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 1, 0), 1)

	rec, err := Decode(strings.NewReader(`{"Bones": {
		"n_throw": {"Rotation": "0.0,0.0,0.0,1.0"},
		"j_kosi": {"Rotation": "0.0,0.0,0.0,1.0"}
	}}`))
	require.NoError(t, err)

	_, err = Apply(rec, a, ApplyOptions{})
	require.NoError(t, err)

	assert.True(t, root.Rotation.IsIdentity(eps))
	assert.True(t, a.PoseMatrix(root).ApproxEqual(&root.Rest, eps))

	_, rot, _ := a.PoseMatrix(child).Decompose()
	assert.True(t, rot.Equivalent(rest, eps), rot)
	assert.False(t, rot.IsIdentity(eps))
}

// newCopyPair returns a rig where x carries a Copy Rotation constraint
// targeting its sibling y, both in local space.
func newCopyPair(t *testing.T) (*armature.Armature, *armature.Constraint) {
	t.Helper()
	a := armature.New("Mekrig")
	root := armature.NewBone("root", geom.NewMatrix4(), 1)
	require.NoError(t, a.AddBone(root, nil))
	require.NoError(t, a.AddBone(armature.NewBone("x", geom.NewTranslateMatrix4(1, 0, 0), 1), root))
	require.NoError(t, a.AddBone(armature.NewBone("y", geom.NewTranslateMatrix4(-1, 0, 0), 1), root))
	c := armature.NewConstraint(armature.CopyRotation, a, "y")
	c.TargetSpace, c.OwnerSpace = armature.SpaceLocal, armature.SpaceLocal
	a.Bone("x").AddConstraint(c)
	return a, c
}

func TestApplyScenarioC(t *testing.T) {
	qx := geom.NewEuler(0.3, 0.2, 0.1, geom.RotationOrderXYZ).ToQuaternion()
	qy := geom.NewEuler(-0.2, 0.5, 0.4, geom.RotationOrderXYZ).ToQuaternion()
	rec := NewRecord()
	rec.Bones["root"] = &Transform{Rotation: geom.NewIdentityQuaternion()}
	rec.Bones["x"] = &Transform{Rotation: qx}
	rec.Bones["y"] = &Transform{Rotation: qy}

	t.Run("all axes", func(t *testing.T) {
		a, c := newCopyPair(t)
		res, err := Apply(rec, a, ApplyOptions{Root: "root"})
		require.NoError(t, err)

		y := a.Bone("y")
		assert.Equal(t, []string{"y"}, res.Reversed)
		assert.Empty(t, y.Constraints)
		assert.True(t, y.Rotation.Equivalent(qx, eps), y.Rotation)
		assert.False(t, c.Mute)

		_, rot, _ := a.PoseMatrix(a.Bone("x")).Decompose()
		assert.True(t, rot.Equivalent(qx, eps))
	})

	t.Run("disabled axis", func(t *testing.T) {
		a, c := newCopyPair(t)
		c.UseY = false
		_, err := Apply(rec, a, ApplyOptions{Root: "root"})
		require.NoError(t, err)

		want := geom.NewEuler(0.3, 0.5, 0.1, geom.RotationOrderXYZ).ToQuaternion()
		assert.True(t, a.Bone("y").Rotation.Equivalent(want, eps), a.Bone("y").Rotation)
	})
}

func TestApplyIdempotent(t *testing.T) {
	a, _ := newCopyPair(t)
	rec := NewRecord()
	rec.Bones["x"] = &Transform{Rotation: geom.NewEuler(0.1, -0.4, 0.7, geom.RotationOrderXYZ).ToQuaternion()}
	rec.Bones["y"] = &Transform{Rotation: geom.NewEuler(0.6, 0.2, -0.1, geom.RotationOrderXYZ).ToQuaternion()}

	_, err := Apply(rec, a, ApplyOptions{Root: "root"})
	require.NoError(t, err)
	first := map[string]*geom.Matrix4{}
	for _, b := range a.Bones() {
		first[b.Name] = a.PoseMatrix(b)
	}

	_, err = Apply(rec, a, ApplyOptions{Root: "root"})
	require.NoError(t, err)
	for _, b := range a.Bones() {
		assert.True(t, a.PoseMatrix(b).ApproxEqual(first[b.Name], 1e-9), b.Name)
	}
}

func TestApplyRootMissing(t *testing.T) {
	a, c := newCopyPair(t)
	a.Bone("x").Rotation = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), 0.2)
	before := a.Bone("x").Rotation

	_, err := Apply(NewRecord(), a, ApplyOptions{})
	assert.ErrorIs(t, err, ErrRootNotFound)
	assert.Equal(t, before, a.Bone("x").Rotation)
	assert.False(t, c.Mute)
}

func TestApplyReportsMissingAndEnablesConstraints(t *testing.T) {
	a, c := newCopyPair(t)
	c.Mute = true
	rec := NewRecord()
	rec.Bones["ghost"] = &Transform{Rotation: geom.NewIdentityQuaternion()}
	rec.Bones["x"] = &Transform{Rotation: geom.NewIdentityQuaternion()}

	res, err := Apply(rec, a, ApplyOptions{Root: "root"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, res.Missing)
	assert.Equal(t, []string{"x"}, res.Applied)
	assert.False(t, c.Mute)

	c.Mute = true
	_, err = Apply(rec, a, ApplyOptions{Root: "root", KeepMuted: true})
	require.NoError(t, err)
	assert.True(t, c.Mute)
}

func TestReverseConstraintsOtherArmature(t *testing.T) {
	a := armature.New("Mekrig")
	require.NoError(t, a.AddBone(armature.NewBone("x", geom.NewMatrix4(), 1), nil))
	b := armature.New("Gear")
	require.NoError(t, b.AddBone(armature.NewBone("y", geom.NewMatrix4(), 1), nil))
	require.NoError(t, b.AddBone(armature.NewBone("z", geom.NewMatrix4(), 1), nil))

	c := armature.NewConstraint(armature.CopyRotation, b, "y")
	c.TargetSpace, c.OwnerSpace = armature.SpaceLocal, armature.SpaceLocal
	a.Bone("x").AddConstraint(c)
	follow := armature.NewConstraint(armature.CopyLocation, b, "z")
	follow.TargetSpace, follow.OwnerSpace = armature.SpaceLocal, armature.SpaceLocal
	b.Bone("y").AddConstraint(follow)

	qx := geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), 0.4)
	a.Bone("x").Rotation = *qx
	b.Bone("z").Location = geom.Vector3{Y: 2}

	assert.Equal(t, []string{"y"}, ReverseConstraints(a))
	y := b.Bone("y")
	assert.True(t, y.Rotation.Equivalent(qx, eps), y.Rotation)
	// the gear's own constraint does not leak into the baked basis
	assert.InDelta(t, 0, y.Location.Len(), eps)
	assert.False(t, follow.Mute)
	assert.False(t, c.Mute)
	assert.Len(t, y.Constraints, 1)
}

func TestSetPoleTargets(t *testing.T) {
	a := armature.New("Mekrig")
	root := armature.NewBone("root", geom.NewMatrix4(), 1)
	require.NoError(t, a.AddBone(root, nil))
	upper := armature.NewBone("upper", geom.NewTranslateMatrix4(0, 1, 0), 1)
	require.NoError(t, a.AddBone(upper, root))
	lower := armature.NewBone("lower", geom.NewTranslateMatrix4(0, 2, 0), 1)
	require.NoError(t, a.AddBone(lower, upper))
	pole := armature.NewBone("IK_Arm_Pole.L", geom.NewTranslateMatrix4(0, 1.5, -1), 0.2)
	require.NoError(t, a.AddBone(pole, root))

	ik := armature.NewConstraint(armature.IK, nil, "")
	ik.PoleTarget, ik.PoleSubtarget = a, pole.Name
	lower.AddConstraint(ik)
	upper.Rotation = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), 0.5)

	assert.Equal(t, []string{pole.Name}, SetPoleTargets(a))
	want := a.WorldMatrix(lower).Translation()
	got := a.WorldMatrix(pole).Translation()
	assert.InDelta(t, 0, got.Sub(want).Len(), eps)
	assert.True(t, pole.Rotation.IsIdentity(eps))
}

func TestResetCollections(t *testing.T) {
	a, _ := newCopyPair(t)
	turn := *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 1, 0), 0.4)
	for _, b := range a.Bones() {
		b.Rotation = turn
	}
	base := a.EnsureCollection("Base Bones")
	base.Visible = false
	base.Assign(a.Bone("x"))
	base.Assign(a.Bone("y"))

	assert.Equal(t, 1, ResetCollections(a, []string{"Base Bones", "Missing"}, false))
	assert.True(t, base.Visible)
	assert.True(t, a.Bone("x").Rotation.IsIdentity(eps))
	assert.False(t, a.Bone("y").Rotation.IsIdentity(eps))

	assert.Equal(t, 2, ResetCollections(a, []string{"Base Bones"}, true))
	assert.True(t, a.Bone("y").Rotation.IsIdentity(eps))
}

func TestLoadBone(t *testing.T) {
	a := newBody(t)
	require.NoError(t, a.Rename(a.Bone("j_kosi"), "j_kosi.002"))
	q := geom.NewQuaternionFromAxisAngle(geom.NewVector3(1, 0, 0), 0.25)
	rec := NewRecord()
	rec.Bones["j_kosi"] = &Transform{Rotation: q}

	diff, err := RootDiff(a, DefaultRoot)
	require.NoError(t, err)
	require.NoError(t, LoadBone(rec, a, "j_kosi", diff))
	_, rot, _ := a.PoseMatrix(a.Bone("j_kosi.002")).Decompose()
	assert.True(t, rot.Equivalent(q, eps))

	assert.ErrorIs(t, LoadBone(rec, a, "j_kubi", diff), armature.ErrBoneNotFound)
	assert.ErrorIs(t, LoadBone(rec, a, "j_te_l", diff), armature.ErrBoneNotFound)
}

func TestResetSelected(t *testing.T) {
	a := newBody(t)
	a.Bone("j_kosi").Location = geom.Vector3{X: 1}
	a.Bone("j_te_l").Location = geom.Vector3{X: 1}

	require.NoError(t, ResetSelected(a, []string{"j_kosi"}))
	assert.Equal(t, geom.Vector3{}, a.Bone("j_kosi").Location)
	assert.Equal(t, geom.Vector3{X: 1}, a.Bone("j_te_l").Location)
	assert.ErrorIs(t, ResetSelected(a, []string{"nope"}), ErrNothingSelected)

	Reset(a)
	assert.Equal(t, geom.Vector3{}, a.Bone("j_te_l").Location)
}

func TestImportFile(t *testing.T) {
	a := newBody(t)
	face := a.EnsureCollection("Face")
	face.Visible = false
	q := geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), 0.3)
	rec := NewRecord()
	rec.Bones["j_kosi"] = &Transform{Rotation: q}

	path := filepath.Join(t.TempDir(), "idle")
	require.NoError(t, WriteFile(path, rec))
	path += FileExtension

	res, err := ImportFile(path, a, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"j_kosi"}, res.Applied)
	assert.False(t, face.Visible)

	bad := filepath.Join(t.TempDir(), "bad.pose")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	before := a.Bone("j_kosi").Rotation
	_, err = ImportFile(bad, a, ApplyOptions{})
	assert.ErrorIs(t, err, ErrInvalidFile)
	assert.Equal(t, before, a.Bone("j_kosi").Rotation)
}

func TestGroupsSelect(t *testing.T) {
	a := newBody(t)
	for _, n := range []string{"j_kami_a", "j_ex_top_a_l", "j_kao", "n_sippo_a"} {
		require.NoError(t, a.AddBone(armature.NewBone(n, geom.NewMatrix4(), 0.1), a.Bone("j_kosi")))
	}
	g := DefaultGroups()

	hair, err := g.Select(a, GroupHair)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"j_kami_a", "j_ex_top_a_l"}, hair)

	hands, err := g.Select(a, GroupHandL, GroupTail)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"j_te_l", "n_sippo_a"}, hands)

	_, err = g.Select(a, "Wings")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestExport(t *testing.T) {
	a := newBody(t)
	path := filepath.Join(t.TempDir(), "hand.pose")

	rec, err := Export(path, a, ExportOptions{Groups: []string{GroupHandL}, Fields: RotationOnly})
	require.NoError(t, err)
	assert.Len(t, rec.Bones, 1)

	back, err := ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, back.Bones, "j_te_l")
	assert.Nil(t, back.Bones["j_te_l"].Scale)

	_, err = Export(path, a, ExportOptions{Groups: []string{GroupTail}})
	assert.ErrorIs(t, err, ErrNothingSelected)
}
