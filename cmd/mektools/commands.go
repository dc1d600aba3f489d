package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mektools/rigtools/config"
	"github.com/mektools/rigtools/gltfio"
	"github.com/mektools/rigtools/importer"
	"github.com/mektools/rigtools/pose"
	"github.com/mektools/rigtools/reconcile"
	"github.com/mektools/rigtools/rig"
	"github.com/mektools/rigtools/scene"
	"github.com/mektools/rigtools/texture"
)

// resolveInput looks for a relative path under dir when it does not exist
// as given.
func resolveInput(path, dir string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(dir, path)
}

func runImport(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	opts, err := prefs.ImportOptions()
	if err != nil {
		return err
	}
	armType := fs.String("type", opts.ArmatureType.String(), "armature type: vanilla or mekrig")
	fs.StringVar(&opts.ObjectName, "name", "", "rename the imported armature")
	fs.BoolVar(&opts.SplineTail, "spline-tail", opts.SplineTail, "generate a spline IK tail")
	fs.BoolVar(&opts.SplineGear, "spline-gear", opts.SplineGear, "generate a spline IK for gear")
	fs.BoolVar(&opts.RemovePoleParents, "remove-pole-parents", opts.RemovePoleParents, "unparent IK pole bones")
	fs.BoolVar(&opts.KeepImportCollection, "keep-collection", opts.KeepImportCollection, "keep the Model_Import collection")
	fs.BoolVar(&opts.WithShaders, "shaders", opts.WithShaders, "use the shader cache next to the model")
	fs.BoolVar(&opts.MergeVertices, "merge-vertices", opts.MergeVertices, "merge identical vertices")
	fs.BoolVar(&opts.Pinned, "pin", opts.Pinned, "pin the imported armature")
	fixBackface := fs.Bool("fix-backface", false, "disable backface culling on every material")
	clearNormals := fs.Bool("clear-normals", false, "clear custom split normals of the imported meshes")
	into := fs.String("into", "", "workspace .glb to import into")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing model file")
	}
	t, err := scene.ParseArmatureType(*armType)
	if err != nil {
		return err
	}
	opts.ArmatureType = t

	input := resolveInput(fs.Arg(0), prefs.DefaultMeddleImportPath)
	output := fs.Arg(1)
	if output == "" {
		output = defaultOutputFile(input, "_mektools")
	}

	packer := &texture.Packer{MaxResolution: prefs.Import.MaxTextureResolution}
	s := scene.New()
	if *into != "" {
		if s, err = loadWorkspace(*into, packer); err != nil {
			return err
		}
	}
	exclusions, err := prefs.Exclusions()
	if err != nil {
		return err
	}
	imp := &gltfio.Importer{Packer: packer}
	p := &importer.Pipeline{
		Importers:   map[string]importer.ModelImporter{".glb": imp, ".gltf": imp},
		Shaders:     importer.ShaderCache{},
		Fallback:    importer.DefaultMaterials{},
		Rigs:        rig.NewTemplateLibrary(prefs.RigTemplateDir),
		Exclusions:  exclusions,
		Keywords:    prefs.Keywords(),
		PinsEnabled: prefs.PinsEnabled,
	}
	res, err := p.Run(s, input, opts)
	if err != nil {
		return err
	}
	if *fixBackface {
		slog.Info("backface culling disabled", "materials", s.DisableBackfaceCulling())
	}
	if *clearNormals {
		slog.Info("custom normals cleared", "meshes", s.ClearCustomNormals(res.Objects))
	}
	for _, r := range res.Reports {
		fmt.Printf("%s: %s\n", r.Level, r.Message)
	}
	return saveWorkspace(s, output)
}

func runMerge(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	ref := fs.String("ref", "", "reference armature object")
	inc := fs.String("incoming", "", "incoming armature object")
	nearest := fs.Bool("nearest", false, "re-home orphaned bones under their nearest surviving ancestor")
	output := fs.String("o", "", "output file (default: overwrite input)")
	fs.Parse(args)
	if fs.NArg() == 0 || *ref == "" || *inc == "" {
		fs.Usage()
		return fmt.Errorf("missing scene file or armature names")
	}
	s, err := loadWorkspace(fs.Arg(0), nil)
	if err != nil {
		return err
	}
	a, err := findArmature(s, *ref)
	if err != nil {
		return err
	}
	b, err := findArmature(s, *inc)
	if err != nil {
		return err
	}
	opts := reconcile.Options{PrunedCollection: reconcile.PrunedCollectionName}
	if *nearest {
		opts.Orphans = reconcile.OrphanNearestAncestor
	}
	res, err := reconcile.MergeArmatures(s, a.Handle(), b.Handle(), opts)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d, grafted %d, retargeted %d meshes\n", len(res.Removed), len(res.Grafted), len(res.Rebind.Retargeted))
	for mesh, groups := range res.Rebind.MissingGroups {
		slog.Warn("vertex groups without a bone", "mesh", mesh, "groups", strings.Join(groups, ","))
	}
	out := *output
	if out == "" {
		out = fs.Arg(0)
	}
	return saveWorkspace(s, out)
}

func parseFields(s string) (pose.Fields, error) {
	var f pose.Fields
	for _, v := range splitList(s) {
		switch strings.ToLower(v) {
		case "position", "location":
			f.Position = true
		case "rotation":
			f.Rotation = true
		case "scale":
			f.Scale = true
		case "all":
			f = pose.AllFields
		default:
			return f, fmt.Errorf("unknown pose field %q", v)
		}
	}
	return f, nil
}

func runPoseExport(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	armName := fs.String("armature", "", "armature object (default: the only one)")
	root := fs.String("root", prefs.Pose.RootBone, "root bone")
	groups := fs.String("groups", "", "bone groups to export: "+strings.Join(pose.GroupNames, ","))
	fields := fs.String("fields", "all", "fields to export: position,rotation,scale")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing scene file")
	}
	input := fs.Arg(0)
	output := fs.Arg(1)
	if output == "" {
		name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + pose.FileExtension
		output = filepath.Join(prefs.DefaultPoseExportPath, name)
		if prefs.DefaultPoseExportPath == "" {
			output = filepath.Join(filepath.Dir(input), name)
		}
	}
	f, err := parseFields(*fields)
	if err != nil {
		return err
	}
	bg, err := prefs.BoneGroups()
	if err != nil {
		return err
	}
	s, err := loadWorkspace(input, nil)
	if err != nil {
		return err
	}
	o, err := findArmature(s, *armName)
	if err != nil {
		return err
	}
	rec, err := pose.Export(output, o.Armature, pose.ExportOptions{
		Root:       *root,
		Groups:     splitList(*groups),
		Fields:     f,
		BoneGroups: bg,
	})
	if err != nil {
		return err
	}
	fmt.Printf("exported %d bones to %s\n", len(rec.Bones), output)
	return nil
}

func runPoseImport(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	armName := fs.String("armature", "", "armature object (default: the only one)")
	root := fs.String("root", prefs.Pose.RootBone, "root bone")
	fields := fs.String("fields", "rotation", "fields to apply: position,rotation,scale")
	bone := fs.String("bone", "", "load the rotation of a single bone")
	output := fs.String("o", "", "output file (default: overwrite input)")
	fs.Parse(args)
	if fs.NArg() < 2 {
		fs.Usage()
		return fmt.Errorf("missing scene or pose file")
	}
	input := fs.Arg(0)
	posePath := resolveInput(fs.Arg(1), prefs.DefaultPoseImportPath)
	f, err := parseFields(*fields)
	if err != nil {
		return err
	}
	s, err := loadWorkspace(input, nil)
	if err != nil {
		return err
	}
	o, err := findArmature(s, *armName)
	if err != nil {
		return err
	}

	if *bone != "" {
		rec, err := pose.ReadFile(posePath)
		if err != nil {
			return err
		}
		diff, err := pose.RootDiff(o.Armature, *root)
		if err != nil {
			return err
		}
		if err := pose.LoadBone(rec, o.Armature, *bone, diff); err != nil {
			return err
		}
	} else {
		opts := prefs.ApplyOptions()
		opts.Root = *root
		opts.Fields = f
		res, err := pose.ImportFile(posePath, o.Armature, opts)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d bones, %d missing, %d constraints reversed, %d poles moved\n",
			len(res.Applied), len(res.Missing), len(res.Reversed), len(res.Poles))
	}
	out := *output
	if out == "" {
		out = input
	}
	return saveWorkspace(s, out)
}

func runPoseReset(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	armName := fs.String("armature", "", "armature object (default: the only one)")
	bones := fs.String("bones", "", "bones to reset (default: all)")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing scene file")
	}
	s, err := loadWorkspace(fs.Arg(0), nil)
	if err != nil {
		return err
	}
	o, err := findArmature(s, *armName)
	if err != nil {
		return err
	}
	if names := splitList(*bones); len(names) > 0 {
		if err := pose.ResetSelected(o.Armature, names); err != nil {
			return err
		}
	} else {
		pose.Reset(o.Armature)
	}
	return saveWorkspace(s, fs.Arg(0))
}

func runSplineTail(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	armName := fs.String("armature", "", "armature object (default: the only one)")
	curve := fs.String("curve", rig.TailCurveName, "curve object name")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing scene file")
	}
	s, err := loadWorkspace(fs.Arg(0), nil)
	if err != nil {
		return err
	}
	o, err := findArmature(s, *armName)
	if err != nil {
		return err
	}
	tail, err := rig.GenerateTailSplineIK(s, o.Handle(), rig.TailBones, *curve)
	if err != nil {
		return err
	}
	fmt.Printf("generated %d spline bones\n", len(tail.SplineBones))
	return saveWorkspace(s, fs.Arg(0))
}

func runActors(prefs *config.Preferences, fs *flag.FlagSet, args []string) error {
	del := fs.String("delete", "", "delete the armature object with this name")
	fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing scene file")
	}
	s, err := loadWorkspace(fs.Arg(0), nil)
	if err != nil {
		return err
	}
	if *del != "" {
		o, ok := s.Find(*del)
		if !ok {
			return fmt.Errorf("object %q not found", *del)
		}
		if err := s.DeleteActor(o.Handle()); err != nil {
			return err
		}
		if err := saveWorkspace(s, fs.Arg(0)); err != nil {
			return err
		}
	}
	for _, a := range s.Actors() {
		o, _ := s.Get(a.Handle)
		fmt.Printf("%s\t%s\t%s\n", o.Name, a.Name, a.Type)
	}
	return nil
}
