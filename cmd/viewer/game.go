package main

import (
	"fmt"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"panoview"
	"panoview/internal/gpu"
)

const (
	screenWidth  = 1280
	screenHeight = 720
)

type Game struct {
	viewer *panoview.Viewer
	engine *pyramidEngine
	gctx   *gpu.EbitenContext

	dragging         bool
	lastX, lastY     int
	animatingFrames  int
	showDebugOverlay bool
}

func newGame(viewer *panoview.Viewer, engine *pyramidEngine, gctx *gpu.EbitenContext) *Game {
	return &Game{
		viewer:           viewer,
		engine:           engine,
		gctx:             gctx,
		showDebugOverlay: true,
	}
}

func (g *Game) Update() error {
	x, y := ebiten.CursorPosition()

	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if g.dragging {
			g.engine.Pan(float64(x-g.lastX), float64(y-g.lastY))
			g.animatingFrames = 10
		}
		g.dragging = true
		g.lastX, g.lastY = x, y
	} else {
		g.dragging = false
	}

	if _, wheelY := ebiten.Wheel(); wheelY != 0 {
		g.engine.ZoomBy(math.Pow(1.1, wheelY))
		g.animatingFrames = 10
	}

	if g.animatingFrames > 0 {
		g.animatingFrames--
	}

	g.viewer.SetInteracting(g.dragging)
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.gctx.SetTarget(screen)
	g.viewer.RenderFrame(g.animatingFrames > 0)
	g.viewer.OnFrameComplete()

	if g.showDebugOverlay {
		stats := g.viewer.PoolStats()
		ebitenutil.DebugPrint(screen, fmt.Sprintf(
			"tiles cached: %d  active: %d  queued: %d  failed: %d",
			g.viewer.CachedTiles(), stats.Active, stats.Queued, stats.Failed,
		))
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}
