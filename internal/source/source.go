package source

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// ErrNoURL is returned when a source cannot produce a fetchable URL for
// a tile. Callers treat it as "skip this tile for now", not a failure.
var ErrNoURL = errors.New("source: no URL resolvable for tile")

// Kind discriminates the concrete source backing a tile. The cache and
// coordinator only ever branch on this tag, never on a concrete type.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindOmniFrame
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindOmniFrame:
		return "omni"
	default:
		return "unknown"
	}
}

// Key addresses one tile of one resolution level of the pyramid.
// Frame is zero except for multi-frame (omni) objects.
type Key struct {
	Layer int
	X     int
	Y     int
	Frame int
}

// IsBase reports whether the tile belongs to the lowest-resolution
// layer. Base tiles stay cached as a fallback and are never evicted.
func (k Key) IsBase() bool {
	return k.Layer == 0
}

func (k Key) String() string {
	if k.Frame != 0 {
		return fmt.Sprintf("%d/%d/%d@%d", k.Layer, k.X, k.Y, k.Frame)
	}
	return fmt.Sprintf("%d/%d/%d", k.Layer, k.X, k.Y)
}

// FrameProvider is a continuously-updating pixel source, typically a
// playing video. Frames handed out must not be mutated afterwards.
type FrameProvider interface {
	// Displayable reports whether a current frame can be shown right
	// now (decoded, not seeking, not stalled).
	Displayable() bool
	// Playing reports whether the source is advancing, which forces
	// the render loop to keep scheduling frames.
	Playing() bool
	// CurrentFrame returns the most recent frame. Only valid while
	// Displayable returns true.
	CurrentFrame() *image.RGBA
}

// Source describes where a tile's pixels come from. Image and omni
// sources resolve to a URL that the download pool fetches; video
// sources are fed directly from their FrameProvider.
type Source struct {
	Kind Kind
	// URLTemplate expands {z}, {x}, {y} and {f} placeholders.
	URLTemplate string
	// Provider is set iff Kind == KindVideo.
	Provider FrameProvider
}

// ResolveURL expands the template for the given tile. Video sources
// and empty templates yield ErrNoURL.
func (s *Source) ResolveURL(k Key) (string, error) {
	if s == nil || s.Kind == KindVideo || s.URLTemplate == "" {
		return "", ErrNoURL
	}
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(k.Layer),
		"{x}", strconv.Itoa(k.X),
		"{y}", strconv.Itoa(k.Y),
		"{f}", strconv.Itoa(k.Frame),
	)
	return r.Replace(s.URLTemplate), nil
}
