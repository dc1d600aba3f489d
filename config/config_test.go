package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mektools/rigtools/pose"
	"github.com/mektools/rigtools/scene"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, "n_throw", p.Pose.RootBone)
	assert.Equal(t, []string{"j_ex", "j_kami"}, p.HairKeywords)
	assert.Equal(t, []string{"phys"}, p.PhysicsKeywords)
	assert.Equal(t, []string{"iv_"}, p.IVCSKeywords)
	assert.True(t, p.PinsEnabled)

	require.Len(t, p.Pose.ResetCollections, 2)
	assert.Equal(t, []string{"Base Bones", "DT Face Bones"}, p.Pose.ResetCollections[0].Names)
	assert.False(t, p.Pose.ResetCollections[0].Force)
	assert.True(t, p.Pose.ResetCollections[1].Force)

	opts, err := p.ImportOptions()
	require.NoError(t, err)
	assert.Equal(t, scene.ArmatureMekrig, opts.ArmatureType)
	assert.True(t, opts.PackImages)
	assert.True(t, opts.MergeSkin)
	assert.False(t, opts.SplineTail)
}

func TestLoadMissing(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	def := Default()
	require.NoError(t, def.expandPaths())
	assert.Equal(t, def, p)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_pose_import_path: ~/poses
pins_enabled: false
pose:
  root_bone: n_root
  reset_collections:
    - names: [Face]
      force: true
import:
  armature_type: vanilla
  spline_tail: true
  max_texture_resolution: 2048
hair_keywords: [j_kami]
`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "poses"), p.DefaultPoseImportPath)
	assert.False(t, p.PinsEnabled)
	assert.Equal(t, []string{"j_kami"}, p.HairKeywords)
	assert.Equal(t, []string{"phys"}, p.PhysicsKeywords)
	assert.Equal(t, 2048, p.Import.MaxTextureResolution)
	// untouched keys keep their defaults
	assert.True(t, p.Import.MergeSkin)

	opts, err := p.ImportOptions()
	require.NoError(t, err)
	assert.Equal(t, scene.ArmatureVanilla, opts.ArmatureType)
	assert.True(t, opts.SplineTail)

	ao := p.ApplyOptions()
	assert.Equal(t, "n_root", ao.Root)
	assert.Equal(t, []pose.CollectionReset{{Names: []string{"Face"}, Force: true}}, ao.Resets)

	kw := p.Keywords()
	assert.Equal(t, []string{"j_kami"}, kw.Hair)
	assert.Equal(t, []string{"iv_"}, kw.IVCS)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"syntax":   "pose: [",
		"unknown":  "no_such_key: 1",
		"armature": "import:\n  armature_type: custom\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "prefs.yaml")
	p := Default()
	p.Import.SplineTail = true
	p.BoneExclusionFile = "/data/exclusions.yaml"
	require.NoError(t, p.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.True(t, got.Import.SplineTail)
	assert.Equal(t, "/data/exclusions.yaml", got.BoneExclusionFile)
}

func TestBoneGroupsAndExclusions(t *testing.T) {
	p := Default()
	g, err := p.BoneGroups()
	require.NoError(t, err)
	assert.NotEmpty(t, g)

	ex, err := p.Exclusions()
	require.NoError(t, err)
	assert.Nil(t, ex)

	path := filepath.Join(t.TempDir(), "exclusions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- n_scaffold\n- j_kami_a\n"), 0o644))
	p.BoneExclusionFile = path
	ex, err = p.Exclusions()
	require.NoError(t, err)
	assert.Equal(t, []string{"n_scaffold", "j_kami_a"}, ex)
}
