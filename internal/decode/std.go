package decode

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// StdDecoder is the compatibility path: pure-Go decoding via the
// registered image formats (jpeg, png, webp).
type StdDecoder struct{}

func NewStd() *StdDecoder {
	return &StdDecoder{}
}

func (d *StdDecoder) Name() string {
	return "std"
}

func (d *StdDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba, nil
}
