package decode

import (
	"bytes"
	"fmt"
	"image"

	"github.com/cshum/vipsgen/vips"
)

// VipsDecoder is the fast path: libvips buffer loaders with a raw RGBA
// export, avoiding the intermediate image.Image allocation of the
// stdlib path. Requires vips.Startup to have been called.
type VipsDecoder struct{}

func NewVips() *VipsDecoder {
	return &VipsDecoder{}
}

func (d *VipsDecoder) Name() string {
	return "vips"
}

func (d *VipsDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, err := loadBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}
	defer img.Close()

	// Tiles are sRGB uchar; only the alpha band varies by format.
	if img.Bands() == 3 {
		if err := img.Addalpha(); err != nil {
			return nil, fmt.Errorf("failed to add alpha band: %w", err)
		}
	}

	raw, err := img.RawsaveBuffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to export pixels: %w", err)
	}

	w, h := img.Width(), img.Height()
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(rgba.Pix, raw)
	return rgba, nil
}

// loadBuffer picks the loader from the magic bytes, same shape as the
// extension switch used for file loading.
func loadBuffer(data []byte) (*vips.Image, error) {
	switch {
	case len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8:
		return vips.NewJpegloadBuffer(data, nil)
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return vips.NewPngloadBuffer(data, nil)
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return vips.NewWebploadBuffer(data, nil)
	default:
		return nil, fmt.Errorf("unsupported tile format")
	}
}
