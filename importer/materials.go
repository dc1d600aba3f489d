package importer

import (
	"fmt"
	"os"

	"github.com/mektools/rigtools/scene"
)

const (
	DefaultShader = "Mektools"
	CacheShader   = "Meddle"
)

// ShaderCache marks materials as using the shaders exported next to the
// model. The cache directory has to exist.
type ShaderCache struct{}

func (ShaderCache) ApplyShaders(s *scene.Scene, hs []scene.Handle, cacheDir string) error {
	st, err := os.Stat(cacheDir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("shader cache %s is not a directory", cacheDir)
	}
	eachMaterial(s, hs, func(m *scene.Material) {
		m.Shader = CacheShader
	})
	return nil
}

// DefaultMaterials assigns the default shader to materials without one and
// turns off backface culling.
type DefaultMaterials struct {
	Shader string
}

func (d DefaultMaterials) FixMaterials(s *scene.Scene, hs []scene.Handle) error {
	shader := d.Shader
	if shader == "" {
		shader = DefaultShader
	}
	eachMaterial(s, hs, func(m *scene.Material) {
		if m.Shader == "" {
			m.Shader = shader
		}
		m.BackfaceCulling = false
	})
	return nil
}

func eachMaterial(s *scene.Scene, hs []scene.Handle, fn func(*scene.Material)) {
	seen := map[*scene.Material]bool{}
	for _, h := range s.Live(hs) {
		o, _ := s.Get(h)
		if o.Mesh == nil {
			continue
		}
		for _, m := range o.Mesh.Materials {
			if m != nil && !seen[m] {
				seen[m] = true
				fn(m)
			}
		}
	}
}
