// Package config holds user preferences: default paths, pose and import
// defaults and the bone keyword lists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"

	"github.com/mektools/rigtools/importer"
	"github.com/mektools/rigtools/pose"
	"github.com/mektools/rigtools/rig"
	"github.com/mektools/rigtools/scene"
)

// DefaultFile is where preferences are read from when no path is given.
const DefaultFile = "~/.mektools/preferences.yaml"

type ResetConfig struct {
	Names []string `yaml:"names"`
	Force bool     `yaml:"force"`
}

type PoseConfig struct {
	RootBone         string        `yaml:"root_bone"`
	ResetCollections []ResetConfig `yaml:"reset_collections"`
}

type ImportConfig struct {
	PackImages           bool   `yaml:"pack_images"`
	MergeVertices        bool   `yaml:"merge_vertices"`
	KeepImportCollection bool   `yaml:"keep_import_collection"`
	MergeSkin            bool   `yaml:"merge_skin"`
	MergeByMaterial      bool   `yaml:"merge_by_material"`
	WithShaders          bool   `yaml:"with_shaders"`
	DisableBoneShape     bool   `yaml:"disable_bone_shape"`
	ArmatureType         string `yaml:"armature_type"`
	RemovePoleParents    bool   `yaml:"remove_pole_parents"`
	SplineTail           bool   `yaml:"spline_tail"`
	SplineGear           bool   `yaml:"spline_gear"`
	Pinned               bool   `yaml:"pinned"`
	// MaxTextureResolution limits packed images; zero keeps them as is.
	MaxTextureResolution int `yaml:"max_texture_resolution"`
}

type Preferences struct {
	DefaultPoseImportPath   string `yaml:"default_pose_import_path"`
	DefaultPoseExportPath   string `yaml:"default_pose_export_path"`
	DefaultMeddleImportPath string `yaml:"default_meddle_import_path"`
	RigTemplateDir          string `yaml:"rig_template_dir"`
	BoneGroupsFile          string `yaml:"bone_groups_file"`
	BoneExclusionFile       string `yaml:"bone_exclusion_file"`
	PinsEnabled             bool   `yaml:"pins_enabled"`

	Pose   PoseConfig   `yaml:"pose"`
	Import ImportConfig `yaml:"import"`

	HairKeywords    []string `yaml:"hair_keywords"`
	PhysicsKeywords []string `yaml:"physics_keywords"`
	IVCSKeywords    []string `yaml:"ivcs_keywords"`
}

func Default() *Preferences {
	p := &Preferences{
		RigTemplateDir:  "~/.mektools/rigs",
		PinsEnabled:     true,
		Pose:            PoseConfig{RootBone: pose.DefaultRoot},
		HairKeywords:    append([]string(nil), rig.HairKeywords...),
		PhysicsKeywords: append([]string(nil), rig.PhysicsKeywords...),
		IVCSKeywords:    append([]string(nil), rig.IVCSKeywords...),
	}
	for _, r := range pose.DefaultResets {
		p.Pose.ResetCollections = append(p.Pose.ResetCollections, ResetConfig{
			Names: append([]string(nil), r.Names...),
			Force: r.Force,
		})
	}
	opts := importer.DefaultOptions()
	p.Import = ImportConfig{
		PackImages:           opts.PackImages,
		MergeVertices:        opts.MergeVertices,
		KeepImportCollection: opts.KeepImportCollection,
		MergeSkin:            opts.MergeSkin,
		MergeByMaterial:      opts.MergeByMaterial,
		WithShaders:          opts.WithShaders,
		DisableBoneShape:     opts.DisableBoneShape,
		ArmatureType:         opts.ArmatureType.String(),
		RemovePoleParents:    opts.RemovePoleParents,
		SplineTail:           opts.SplineTail,
		SplineGear:           opts.SplineGear,
		Pinned:               opts.Pinned,
	}
	return p
}

// Load reads preferences from path. A missing file yields the defaults;
// keys absent from the file keep their default values.
func Load(path string) (*Preferences, error) {
	p := Default()
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, fs.ErrNotExist) {
		return p, p.expandPaths()
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(data, p); err != nil {
		return nil, fmt.Errorf("preferences %s: %w", path, err)
	}
	if _, err := scene.ParseArmatureType(p.Import.ArmatureType); err != nil {
		return nil, fmt.Errorf("preferences %s: %w", path, err)
	}
	return p, p.expandPaths()
}

func (p *Preferences) expandPaths() error {
	for _, s := range []*string{
		&p.DefaultPoseImportPath,
		&p.DefaultPoseExportPath,
		&p.DefaultMeddleImportPath,
		&p.RigTemplateDir,
		&p.BoneGroupsFile,
		&p.BoneExclusionFile,
	} {
		v, err := homedir.Expand(*s)
		if err != nil {
			return err
		}
		*s = v
	}
	return nil
}

func (p *Preferences) Save(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o644)
}

// ImportOptions converts the import defaults.
func (p *Preferences) ImportOptions() (importer.Options, error) {
	t, err := scene.ParseArmatureType(p.Import.ArmatureType)
	if err != nil {
		return importer.Options{}, err
	}
	return importer.Options{
		PackImages:           p.Import.PackImages,
		MergeVertices:        p.Import.MergeVertices,
		KeepImportCollection: p.Import.KeepImportCollection,
		MergeSkin:            p.Import.MergeSkin,
		MergeByMaterial:      p.Import.MergeByMaterial,
		WithShaders:          p.Import.WithShaders,
		DisableBoneShape:     p.Import.DisableBoneShape,
		ArmatureType:         t,
		RemovePoleParents:    p.Import.RemovePoleParents,
		SplineTail:           p.Import.SplineTail,
		SplineGear:           p.Import.SplineGear,
		Pinned:               p.Import.Pinned,
	}, nil
}

// Keywords returns the bone keyword lists for the import pipeline.
func (p *Preferences) Keywords() importer.Keywords {
	return importer.Keywords{
		Hair:    p.HairKeywords,
		Physics: p.PhysicsKeywords,
		IVCS:    p.IVCSKeywords,
	}
}

func (p *Preferences) Resets() []pose.CollectionReset {
	r := make([]pose.CollectionReset, 0, len(p.Pose.ResetCollections))
	for _, c := range p.Pose.ResetCollections {
		r = append(r, pose.CollectionReset{Names: c.Names, Force: c.Force})
	}
	return r
}

func (p *Preferences) ApplyOptions() pose.ApplyOptions {
	return pose.ApplyOptions{Root: p.Pose.RootBone, Resets: p.Resets()}
}

// BoneGroups loads the bone group override file, or the built-in groups
// when none is configured.
func (p *Preferences) BoneGroups() (pose.Groups, error) {
	if p.BoneGroupsFile == "" {
		return pose.DefaultGroups(), nil
	}
	return pose.LoadGroups(p.BoneGroupsFile)
}

// Exclusions loads the bone exclusion list, if one is configured.
func (p *Preferences) Exclusions() ([]string, error) {
	if p.BoneExclusionFile == "" {
		return nil, nil
	}
	return importer.LoadExclusions(p.BoneExclusionFile)
}
