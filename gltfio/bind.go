package gltfio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"

	"github.com/mektools/rigtools/geom"
)

func readMatrix(data []byte) [16]float32 {
	var mat [16]float32
	for i := 0; i < 16; i++ {
		d := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		mat[i] = math.Float32frombits(d)
	}
	return mat
}

// bindMatrices returns the inverse bind matrix of each joint node of skin.
func bindMatrices(doc *gltf.Document, skin *gltf.Skin) (map[int]*geom.Matrix4, error) {
	if skin.InverseBindMatrices == nil {
		return nil, nil
	}
	if int(*skin.InverseBindMatrices) >= len(doc.Accessors) {
		return nil, fmt.Errorf("inverse bind matrices: accessor out of range")
	}
	acr := doc.Accessors[*skin.InverseBindMatrices]
	if acr.BufferView == nil || acr.Type != gltf.AccessorMat4 || acr.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("inverse bind matrices: unsupported accessor")
	}
	data, err := bufferViewData(doc, *acr.BufferView)
	if err != nil {
		return nil, err
	}
	stride := doc.BufferViews[*acr.BufferView].ByteStride
	if stride == 0 {
		stride = 64
	}
	r := map[int]*geom.Matrix4{}
	for i, j := range skin.Joints {
		if i >= int(acr.Count) {
			break
		}
		offset := acr.ByteOffset + uint32(i)*stride
		if int(offset)+64 > len(data) {
			return nil, fmt.Errorf("inverse bind matrices: accessor exceeds buffer view")
		}
		r[int(j)] = geom.NewMatrix4FromFloat32(readMatrix(data[offset : offset+64]))
	}
	return r, nil
}
