// Package gpu abstracts the texture and draw operations the streaming
// engine needs. All methods must be called from the goroutine that owns
// the rendering context; implementations are not required to be
// thread-safe.
package gpu

import (
	"errors"
	"image"
)

// ErrResourceCreation marks a texture-creation failure for an otherwise
// valid bitmap. Fatal to that one tile only.
var ErrResourceCreation = errors.New("gpu: resource creation failed")

// GeometryKind selects how a tile quad is projected when drawn.
type GeometryKind int

const (
	GeometryFlat GeometryKind = iota
	GeometryEquirect
	GeometryCubeFace
)

// Transform places a tile quad on the render target in screen units.
type Transform struct {
	ScaleX float64
	ScaleY float64
	TX     float64
	TY     float64
}

// DrawOptions carries everything a backend needs for one tile draw.
type DrawOptions struct {
	Opacity   float64
	Geometry  GeometryKind
	Transform Transform
}

// Texture is an opaque handle to GPU-side pixels. Handles are owned
// exclusively by the tile cache; no other component may retain one
// across frames.
type Texture interface {
	Size() (int, int)
}

type Context interface {
	// CreateTexture uploads a bitmap and returns its handle. Smoothing
	// selects linear filtering for magnified draws.
	CreateTexture(bm *image.RGBA, smoothing bool) (Texture, error)
	// UpdateTexture replaces the pixel content of an existing handle,
	// reallocating if the dimensions changed. The handle stays valid.
	UpdateTexture(tex Texture, bm *image.RGBA) error
	// DeleteTexture releases the handle. Using it afterwards is a bug.
	DeleteTexture(tex Texture)
	// Draw renders one tile quad with the given options.
	Draw(tex Texture, op DrawOptions)
}
