package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mektools/rigtools/gltfio"
	"github.com/mektools/rigtools/rig"
	"github.com/mektools/rigtools/scene"
	"github.com/mektools/rigtools/texture"
)

// loadWorkspace reads a model and its rig sidecar into a new scene.
func loadWorkspace(path string, packer *texture.Packer) (*scene.Scene, error) {
	s := scene.New()
	imp := &gltfio.Importer{Packer: packer}
	if _, err := imp.Import(s, path, scene.ImportOptions{PackImages: true}); err != nil {
		return nil, err
	}
	sc, err := rig.LoadSidecar(rig.SidecarPath(path))
	if err != nil {
		return nil, err
	}
	if err := rig.ApplySidecar(s, sc); err != nil {
		return nil, err
	}
	return s, nil
}

// saveWorkspace writes the scene as GLB plus its rig sidecar.
func saveWorkspace(s *scene.Scene, path string) error {
	if err := gltfio.Save(s, path); err != nil {
		return err
	}
	if err := rig.BuildSidecar(s).Save(rig.SidecarPath(path)); err != nil {
		return err
	}
	slog.Info("saved", "model", path, "sidecar", rig.SidecarPath(path))
	return nil
}

func defaultOutputFile(input, suffix string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + suffix + ".glb"
}

// findArmature returns the named armature object, or the only one in the
// scene when name is empty.
func findArmature(s *scene.Scene, name string) (*scene.Object, error) {
	if name != "" {
		o, ok := s.Find(name)
		if !ok || o.Armature == nil {
			return nil, fmt.Errorf("armature %q not found", name)
		}
		return o, nil
	}
	arms := s.Armatures()
	switch len(arms) {
	case 0:
		return nil, fmt.Errorf("no armature in scene")
	case 1:
		return arms[0], nil
	}
	return nil, fmt.Errorf("%d armatures in scene, choose one with -armature", len(arms))
}

func splitList(s string) []string {
	var r []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			r = append(r, v)
		}
	}
	return r
}
