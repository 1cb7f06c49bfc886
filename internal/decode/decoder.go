// Package decode turns downloaded tile bytes into GPU-uploadable RGBA
// bitmaps. Two implementations share the same contract: a libvips-backed
// fast path and a pure-Go fallback. Callers never see which one is in use.
package decode

import (
	"image"
)

type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
	Name() string
}
