package texture

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	ftga "github.com/ftrvxmtrx/tga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/mektools/rigtools/scene"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeFormats(t *testing.T) {
	src := testImage(4, 4)
	for format, encode := range map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, src) },
		"jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, src, nil) },
		"gif":  func(b *bytes.Buffer) error { return gif.Encode(b, src, nil) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, src) },
		"tga":  func(b *bytes.Buffer) error { return ftga.Encode(b, src) },
	} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf))
			img, got, err := Decode(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, format, got)
			assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
		})
	}
}

func TestPackKeepsOriginal(t *testing.T) {
	data := encodePNG(t, testImage(64, 32))
	p := &Packer{}
	img, err := p.Pack("skin.png", data)
	require.NoError(t, err)
	assert.Equal(t, data, img.Packed)
	assert.Equal(t, MIMEPNG, img.MIMEType)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 32, img.Height)
	assert.True(t, img.IsPacked())
}

func TestPackDownscale(t *testing.T) {
	p := &Packer{MaxResolution: 16}
	img, err := p.Pack("skin.png", encodePNG(t, testImage(64, 32)))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 8, img.Height)

	decoded, format, err := Decode(img.Packed)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 16, 8), decoded.Bounds())
}

func TestPackReencodesBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, testImage(8, 8)))

	img, err := (&Packer{}).Pack("eye.bmp", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, MIMEPNG, img.MIMEType)
	assert.NotEqual(t, buf.Bytes(), img.Packed)
	assert.Equal(t, 8, img.Width)
}

func TestPackInvalid(t *testing.T) {
	_, err := (&Packer{}).Pack("broken.png", []byte("not an image"))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, MIMEPNG, MIMEType(encodePNG(t, testImage(2, 2)), "x.bin"))
	assert.Equal(t, MIMETGA, MIMEType([]byte{0, 0, 2}, "hair.TGA"))
	assert.Equal(t, MIMEJPEG, MIMEType(nil, "face.jpeg"))
	assert.Equal(t, "application/octet-stream", MIMEType(nil, "notes"))
}

func TestPackScene(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "body.png"), encodePNG(t, testImage(4, 4)), 0o644))

	s := scene.New()
	body := s.AddImage(&scene.Image{Name: "body", Path: "body.png"})
	missing := s.AddImage(&scene.Image{Name: "missing", Path: "missing.png"})
	packed := s.AddImage(&scene.Image{Name: "packed", Packed: []byte{1}})

	n, err := (&Packer{}).PackScene(s, dir)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, body.IsPacked())
	assert.Equal(t, 4, body.Width)
	assert.Equal(t, "body", body.Name)
	assert.False(t, missing.IsPacked())
	assert.Equal(t, []byte{1}, packed.Packed)
}
