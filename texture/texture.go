// Package texture decodes, downscales and packs texture images into scene
// image blocks.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/blezek/tga"
	ftga "github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype"
	"github.com/oov/psd"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/mektools/rigtools/scene"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMETGA  = "image/x-tga"
)

var ErrNotImage = errors.New("not a supported image")

type decodeFunc func(io.Reader) (image.Image, error)

func decodePSD(r io.Reader) (image.Image, error) {
	doc, _, err := psd.Decode(r, &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return nil, err
	}
	return doc.Picker, nil
}

// decoders is keyed by the sniffed file type. The image package registry is
// not used: the ftrvxmtrx TGA decoder registers itself with an empty magic
// string and would claim every input.
var decoders = map[string]decodeFunc{
	"png": png.Decode,
	"jpg": jpeg.Decode,
	"gif": gif.Decode,
	"bmp": bmp.Decode,
	"psd": decodePSD,
}

// Decode decodes PNG, JPEG, GIF, BMP, PSD and TGA data. TGA files carry no
// magic number and are tried last, with both TGA decoders.
func Decode(data []byte) (image.Image, string, error) {
	if kind, err := filetype.Match(data); err == nil {
		if dec, ok := decoders[kind.Extension]; ok {
			img, err := dec(bytes.NewReader(data))
			if err != nil {
				return nil, "", fmt.Errorf("%w: %s: %v", ErrNotImage, kind.Extension, err)
			}
			return img, formatName(kind.Extension), nil
		}
	}
	img, err := tga.Decode(bytes.NewReader(data))
	if err == nil {
		return img, "tga", nil
	}
	if img, ferr := ftga.Decode(bytes.NewReader(data)); ferr == nil {
		return img, "tga", nil
	}
	return nil, "", fmt.Errorf("%w: %v", ErrNotImage, err)
}

func formatName(ext string) string {
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// MIMEType sniffs the content type of data, falling back to the file
// extension of name.
func MIMEType(data []byte, name string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return MIMEPNG
	case ".jpg", ".jpeg":
		return MIMEJPEG
	case ".tga":
		return MIMETGA
	}
	return "application/octet-stream"
}

type Packer struct {
	// MaxResolution limits the longer side of packed images. Zero keeps the
	// original size.
	MaxResolution int
}

// Pack turns image bytes into a packed image block. PNG and JPEG data
// within the resolution limit is stored as is; everything else is
// re-encoded.
func (p *Packer) Pack(name string, data []byte) (*scene.Image, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	mimeType := MIMEType(data, name)
	rect := img.Bounds()

	scaled := p.downscale(img)
	if scaled == img && (mimeType == MIMEPNG || mimeType == MIMEJPEG) {
		return &scene.Image{
			Name:     name,
			Packed:   data,
			MIMEType: mimeType,
			Width:    rect.Dx(),
			Height:   rect.Dy(),
		}, nil
	}

	w := new(bytes.Buffer)
	if mimeType == MIMEJPEG {
		err = jpeg.Encode(w, scaled, nil)
	} else {
		mimeType = MIMEPNG
		err = png.Encode(w, scaled)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	b := scaled.Bounds()
	return &scene.Image{
		Name:     name,
		Packed:   w.Bytes(),
		MIMEType: mimeType,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

func (p *Packer) downscale(img image.Image) image.Image {
	rect := img.Bounds()
	size := rect.Dx()
	if rect.Dy() > size {
		size = rect.Dy()
	}
	if p.MaxResolution <= 0 || size <= p.MaxResolution {
		return img
	}
	scale := float64(p.MaxResolution) / float64(size)
	w, h := int(float64(rect.Dx())*scale), int(float64(rect.Dy())*scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
	return dst
}

func (p *Packer) PackFile(path string) (*scene.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := p.Pack(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	img.Path = path
	return img, nil
}

// PackScene packs every image of s that is only referenced by path.
// Relative paths are resolved against dir. Images that fail to load are
// left unpacked and reported in the returned error.
func (p *Packer) PackScene(s *scene.Scene, dir string) (int, error) {
	var errs []error
	n := 0
	for _, img := range s.Images {
		if img.IsPacked() || img.Path == "" {
			continue
		}
		path := img.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		packed, err := p.PackFile(path)
		if err != nil {
			slog.Warn("image not packed", "image", img.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		img.Packed = packed.Packed
		img.MIMEType = packed.MIMEType
		img.Width, img.Height = packed.Width, packed.Height
		n++
	}
	return n, errors.Join(errs...)
}
