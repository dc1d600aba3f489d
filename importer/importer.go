// Package importer runs the character import: a model file is loaded into
// the scene, cleaned up and, for Mekrig imports, fused with the rig
// template that matches the character's race.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mektools/rigtools/armature"
	"github.com/mektools/rigtools/geom"
	"github.com/mektools/rigtools/reconcile"
	"github.com/mektools/rigtools/rig"
	"github.com/mektools/rigtools/scene"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoArmature        = errors.New("no armature in imported objects")
)

const (
	ImportCollectionName = "Model_Import"
	// RacialCodeID marks the eye objects and materials carrying the racial code.
	RacialCodeID = "iri"
	SkinFilter   = "skin"
)

// ModelImporter loads a model file and returns the objects it created.
type ModelImporter interface {
	Import(s *scene.Scene, path string, opts scene.ImportOptions) ([]scene.Handle, error)
}

// ShaderApplier assigns shaders from a shader cache directory.
type ShaderApplier interface {
	ApplyShaders(s *scene.Scene, hs []scene.Handle, cacheDir string) error
}

// MaterialFixer is the fallback used when shaders are disabled or fail.
type MaterialFixer interface {
	FixMaterials(s *scene.Scene, hs []scene.Handle) error
}

type Options struct {
	PackImages           bool
	MergeVertices        bool
	KeepImportCollection bool
	MergeSkin            bool
	MergeByMaterial      bool
	WithShaders          bool
	DisableBoneShape     bool
	ArmatureType         scene.ArmatureType
	RemovePoleParents    bool
	SplineTail           bool
	SplineGear           bool
	Pinned               bool
	ObjectName           string
}

func DefaultOptions() Options {
	return Options{
		PackImages:       true,
		MergeSkin:        true,
		MergeByMaterial:  true,
		WithShaders:      true,
		DisableBoneShape: true,
		ArmatureType:     scene.ArmatureMekrig,
		Pinned:           true,
	}
}

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Report is a message for the user about one step of the import.
type Report struct {
	Level   Level
	Message string
}

type Result struct {
	Armature   scene.Handle
	Objects    []scene.Handle
	RacialCode string
	Merge      *reconcile.MergeResult
	Tail       *rig.TailRig
	Excluded   []string
	Reports    []Report
}

func (r *Result) report(l Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch l {
	case Error:
		slog.Error(msg)
	case Warning:
		slog.Warn(msg)
	default:
		slog.Info(msg)
	}
	r.Reports = append(r.Reports, Report{Level: l, Message: msg})
}

// Keywords are the bone name fragments used to fill the Hair, Physic and
// IVCS bone collections. Nil lists use the rig defaults.
type Keywords struct {
	Hair    []string
	Physics []string
	IVCS    []string
}

func (k Keywords) orDefault() Keywords {
	if k.Hair == nil {
		k.Hair = rig.HairKeywords
	}
	if k.Physics == nil {
		k.Physics = rig.PhysicsKeywords
	}
	if k.IVCS == nil {
		k.IVCS = rig.IVCSKeywords
	}
	return k
}

type Pipeline struct {
	// Importers are keyed by lower-case file extension, for example ".glb".
	Importers map[string]ModelImporter
	Shaders   ShaderApplier
	Fallback  MaterialFixer
	Rigs      *rig.Library
	// Exclusions names scaffolding bones that are dropped when no mesh uses them.
	Exclusions  []string
	Keywords    Keywords
	PinsEnabled bool
}

// Run imports path into s.
func (p *Pipeline) Run(s *scene.Scene, path string, opts Options) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	imp, ok := p.Importers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	res := &Result{}

	importCol := s.NewCollection(ImportCollectionName)
	importCol.Color = scene.Color05
	objs, err := imp.Import(s, path, scene.ImportOptions{
		PackImages:       opts.PackImages,
		DisableBoneShape: opts.DisableBoneShape,
		MergeVertices:    opts.MergeVertices,
	})
	if err != nil {
		s.RemoveCollection(importCol)
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	s.MoveToCollection(objs, importCol)

	code, hasCode := rig.DetectRacialCode(s, objs, RacialCodeID)
	res.RacialCode = code

	armH, ok := findArmature(s, objs)
	if !ok {
		for _, h := range s.Live(objs) {
			_ = s.Remove(h)
		}
		s.RemoveCollection(importCol)
		return nil, ErrNoArmature
	}
	armObj, _ := s.Get(armH)

	if opts.MergeByMaterial {
		if objs, err = s.MergeByMaterial(objs); err != nil {
			return nil, err
		}
	}
	if opts.MergeSkin {
		if objs, err = s.MergeByName(objs, SkinFilter); err != nil {
			return nil, err
		}
	}

	scales := boneScales(armObj.Armature)
	for _, h := range s.Live(objs) {
		o, _ := s.Get(h)
		o.StripAnimation()
	}

	p.applyShaders(s, objs, filepath.Join(filepath.Dir(path), "cache"), opts, res)

	if opts.ArmatureType == scene.ArmatureMekrig && !hasCode {
		res.report(Error, "no racial code found; keeping the imported armature")
		opts.ArmatureType = scene.ArmatureVanilla
	}
	if opts.ArmatureType == scene.ArmatureMekrig && p.Rigs == nil {
		res.report(Error, "no rig library configured; keeping the imported armature")
		opts.ArmatureType = scene.ArmatureVanilla
	}

	if opts.ArmatureType == scene.ArmatureMekrig {
		parents := reconcile.NewRecord(armObj.Armature)
		res.Excluded = PruneExcluded(s, armH, p.Exclusions)
		h, err := p.attachRig(s, armH, objs, code, parents, opts, res)
		if err != nil {
			return nil, err
		}
		armH = h
	} else if err := armObj.SetRig(scene.RigInfo{Type: scene.ArmatureVanilla}); err != nil {
		return nil, err
	}

	if opts.ObjectName != "" {
		if _, err := s.Rename(armH, opts.ObjectName); err != nil {
			return nil, err
		}
	}
	armObj, ok = s.Get(armH)
	if !ok {
		return nil, fmt.Errorf("armature: %w", scene.ErrGone)
	}
	restoreBoneScales(armObj.Armature, scales)

	if opts.Pinned && p.PinsEnabled {
		if err := s.Pin(armH); err != nil {
			return nil, err
		}
	}
	if !opts.KeepImportCollection {
		s.DissolveCollection(importCol)
	}

	res.Armature = armH
	res.Objects = s.Live(objs)
	res.report(Info, "model imported and processed successfully")
	return res, nil
}

func (p *Pipeline) applyShaders(s *scene.Scene, objs []scene.Handle, cacheDir string, opts Options, res *Result) {
	if opts.WithShaders && p.Shaders != nil {
		var meshes []scene.Handle
		for _, h := range s.Live(objs) {
			if o, _ := s.Get(h); o.Kind == scene.KindMesh {
				meshes = append(meshes, h)
			}
		}
		err := p.Shaders.ApplyShaders(s, meshes, cacheDir)
		if err == nil {
			return
		}
		res.report(Error, "failed to import shaders, applying default shaders instead: %v", err)
	}
	if p.Fallback == nil {
		return
	}
	if err := p.Fallback.FixMaterials(s, s.Live(objs)); err != nil {
		res.report(Warning, "fixing materials: %v", err)
	}
}

// attachRig appends the rig for code, merges the imported armature into it
// and moves the imported objects under the rig.
func (p *Pipeline) attachRig(s *scene.Scene, armH scene.Handle, objs []scene.Handle, code string, parents *reconcile.Record, opts Options, res *Result) (scene.Handle, error) {
	for _, h := range s.Live(objs) {
		if err := s.ClearParent(h, true); err != nil {
			return scene.Handle{}, err
		}
	}
	rigH, err := p.Rigs.Append(s, code)
	if err != nil {
		return scene.Handle{}, fmt.Errorf("append rig %s: %w", code, err)
	}
	inc, _ := s.Get(armH)
	inc.Armature.ResetPose()

	mr, err := reconcile.MergeArmatures(s, rigH, armH, reconcile.Options{
		Orphans:          reconcile.OrphanNearestAncestor,
		Record:           parents,
		PrunedCollection: reconcile.PrunedCollectionName,
	})
	if err != nil {
		return scene.Handle{}, err
	}
	res.Merge = mr
	if len(mr.ReparentFailures) > 0 {
		res.report(Warning, "%d bones lost their parent in the merge", len(mr.ReparentFailures))
	}

	rigObj, _ := s.Get(rigH)
	a := rigObj.Armature
	kw := p.Keywords.orDefault()
	hair := rig.AssignBonesToCollection(a, "Hair", true, kw.Hair)
	rig.AssignBonesToCollection(a, "Physic", false, kw.Physics)
	rig.AssignBonesToCollection(a, "IVCS", false, kw.IVCS)
	rig.SetBoneDisplay(s, a, hair, rig.HairShape, rig.HairPalette)

	rigCol := s.CollectionOf(rigH)
	if rigCol == nil {
		rigCol = s.NewCollection(rig.DefaultCollection)
		s.MoveToCollection([]scene.Handle{rigH}, rigCol)
	}
	rigCol.Color = scene.Color01

	live := s.Live(objs)
	s.MoveToCollection(live, rigCol)
	for _, h := range live {
		if h == rigH {
			continue
		}
		if err := s.SetParent(h, rigH, true); err != nil {
			return scene.Handle{}, err
		}
	}

	if opts.RemovePoleParents {
		rig.RemovePoleParents(a)
	}
	if opts.SplineTail {
		tail, err := rig.GenerateTailSplineIK(s, rigH, rig.TailBones, rig.TailCurveName)
		if err != nil {
			res.report(Warning, "spline tail: %v", err)
		} else {
			res.Tail = tail
		}
	}
	if opts.SplineGear {
		res.report(Warning, "spline gear is not implemented")
	}

	info, _ := rigObj.Rig()
	info.Type = scene.ArmatureMekrig
	if err := rigObj.SetRig(info); err != nil {
		return scene.Handle{}, err
	}
	return rigH, nil
}

func findArmature(s *scene.Scene, hs []scene.Handle) (scene.Handle, bool) {
	for _, h := range s.Live(hs) {
		if o, _ := s.Get(h); o.Kind == scene.KindArmature && o.Armature != nil {
			return h, true
		}
	}
	return scene.Handle{}, false
}

func boneScales(a *armature.Armature) map[string]geom.Vector3 {
	r := map[string]geom.Vector3{}
	for _, b := range a.Bones() {
		r[b.Name] = b.Scale
	}
	return r
}

func restoreBoneScales(a *armature.Armature, scales map[string]geom.Vector3) {
	for _, b := range a.Bones() {
		if sc, ok := scales[b.Name]; ok {
			b.Scale = sc
		}
	}
}
