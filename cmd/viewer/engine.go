package main

import (
	"math"

	"panoview"
)

const (
	tileSize = 256

	// Demo pyramid dimensions; a real embedder derives these from the
	// image manifest.
	pyramidWidth  = 65536
	pyramidHeight = 32768
)

// pyramidEngine is a minimal view engine for the demo binary: a flat
// deep-zoom pyramid with pan and zoom, no rotation, no projection.
// Layer 0 is the coarsest level; each layer doubles the resolution.
type pyramidEngine struct {
	src      panoview.Source
	maxLayer int

	screenW, screenH int

	// Camera center in full-resolution pixel coordinates, and scale in
	// screen pixels per full-resolution pixel.
	camX, camY float64
	zoom       float64

	// pending is set while the camera moved this frame, so the host
	// keeps scheduling frames until the view settles.
	pending bool
}

func newPyramidEngine(urlTemplate string, screenW, screenH int) *pyramidEngine {
	maxDim := math.Max(pyramidWidth, pyramidHeight)
	maxLayer := int(math.Ceil(math.Log2(maxDim / tileSize)))
	if maxLayer < 0 {
		maxLayer = 0
	}
	return &pyramidEngine{
		src:      panoview.Source{Kind: panoview.KindImage, URLTemplate: urlTemplate},
		maxLayer: maxLayer,
		screenW:  screenW,
		screenH:  screenH,
		camX:     pyramidWidth / 2,
		camY:     pyramidHeight / 2,
		zoom:     float64(screenW) / pyramidWidth,
	}
}

// Pan moves the camera by a screen-space delta.
func (e *pyramidEngine) Pan(dx, dy float64) {
	e.camX -= dx / e.zoom
	e.camY -= dy / e.zoom
	e.pending = true
}

// ZoomBy scales the view, clamped so one full-resolution pixel never
// exceeds four screen pixels.
func (e *pyramidEngine) ZoomBy(factor float64) {
	minZoom := float64(e.screenW) / (4 * pyramidWidth)
	e.zoom = math.Min(4, math.Max(minZoom, e.zoom*factor))
	e.pending = true
}

// targetLayer picks the layer whose tiles are closest to 1:1 on screen.
func (e *pyramidEngine) targetLayer() int {
	ideal := e.maxLayer + int(math.Ceil(math.Log2(e.zoom)))
	if ideal < 0 {
		return 0
	}
	if ideal > e.maxLayer {
		return e.maxLayer
	}
	return ideal
}

// layerTiles counts the tile grid of a layer.
func (e *pyramidEngine) layerTiles(layer int) (int, int) {
	f := math.Pow(2, float64(e.maxLayer-layer))
	tx := int(math.Ceil(pyramidWidth / (tileSize * f)))
	ty := int(math.Ceil(pyramidHeight / (tileSize * f)))
	return tx, ty
}

func (e *pyramidEngine) TilesNeeded() []panoview.TileRequest {
	// Base layer first so it draws underneath, then the visible part
	// of the target layer on top.
	reqs := e.layerRequests(0, false)
	if target := e.targetLayer(); target != 0 {
		reqs = append(reqs, e.layerRequests(target, true)...)
	}
	e.pending = false
	return reqs
}

// layerRequests emits the tiles of one layer, clipped to the viewport
// when clip is set. The base layer is always emitted whole; it is tiny
// and must stay resident.
func (e *pyramidEngine) layerRequests(layer int, clip bool) []panoview.TileRequest {
	f := math.Pow(2, float64(e.maxLayer-layer))
	scale := f * e.zoom

	tilesX, tilesY := e.layerTiles(layer)
	x0, y0, x1, y1 := 0, 0, tilesX-1, tilesY-1
	if clip {
		worldLeft := e.camX - float64(e.screenW)/2/e.zoom
		worldTop := e.camY - float64(e.screenH)/2/e.zoom
		worldRight := e.camX + float64(e.screenW)/2/e.zoom
		worldBottom := e.camY + float64(e.screenH)/2/e.zoom

		x0 = clampInt(int(worldLeft/(tileSize*f)), 0, tilesX-1)
		y0 = clampInt(int(worldTop/(tileSize*f)), 0, tilesY-1)
		x1 = clampInt(int(worldRight/(tileSize*f)), 0, tilesX-1)
		y1 = clampInt(int(worldBottom/(tileSize*f)), 0, tilesY-1)
	}

	var reqs []panoview.TileRequest
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			worldX := float64(x) * tileSize * f
			worldY := float64(y) * tileSize * f
			reqs = append(reqs, panoview.TileRequest{
				Key: panoview.Key{Layer: layer, X: x, Y: y},
				Src: &e.src,
				Transform: panoview.Transform{
					ScaleX: scale,
					ScaleY: scale,
					TX:     (worldX-e.camX)*e.zoom + float64(e.screenW)/2,
					TY:     (worldY-e.camY)*e.zoom + float64(e.screenH)/2,
				},
			})
		}
	}
	return reqs
}

func (e *pyramidEngine) IsTargetLayer(key panoview.Key) bool {
	return key.Layer == e.targetLayer()
}

func (e *pyramidEngine) ShouldScheduleAnotherFrame() bool {
	return e.pending
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
