// Package coordinator runs the per-tick reconciliation between what
// the view engine wants on screen and what the tile cache holds. All of
// it executes on the single render goroutine; worker results are pulled
// in at the top of each frame so cache state never changes anywhere
// else.
package coordinator

import (
	"go.uber.org/zap"

	"panoview/internal/gpu"
	"panoview/internal/pool"
	"panoview/internal/source"
	"panoview/internal/tilecache"
)

// TileRequest is one tile the view engine wants drawn this frame, in
// priority order, with its on-screen placement.
type TileRequest struct {
	Key       source.Key
	Src       *source.Source
	Geometry  gpu.GeometryKind
	Transform gpu.Transform
}

// ViewEngine is the external projection component. It decides which
// tiles are visible, at what sharpness, and where they land on screen.
type ViewEngine interface {
	// TilesNeeded returns this frame's tiles ordered by priority,
	// target-resolution layer first.
	TilesNeeded() []TileRequest
	// IsTargetLayer reports whether key belongs to the layer the
	// engine currently considers ideally sharp.
	IsTargetLayer(key source.Key) bool
	// ShouldScheduleAnotherFrame reports outstanding engine work
	// (running animations, pending projection updates).
	ShouldScheduleAnotherFrame() bool
}

type Coordinator struct {
	engine ViewEngine
	cache  *tilecache.Cache
	pool   *pool.Pool
	gpu    gpu.Context
	logger *zap.Logger

	sweeper *Sweeper

	touched     map[source.Key]struct{}
	prevTouched map[source.Key]struct{}

	targetOpacity float64
	directOpacity bool
	keepRendering bool
	interacting   bool
}

func New(engine ViewEngine, cache *tilecache.Cache, p *pool.Pool, gctx gpu.Context, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		engine:        engine,
		cache:         cache,
		pool:          p,
		gpu:           gctx,
		logger:        logger,
		sweeper:       NewSweeper(cache, logger),
		touched:       make(map[source.Key]struct{}),
		prevTouched:   make(map[source.Key]struct{}),
		targetOpacity: 1,
	}
}

// SetTargetOpacity sets the image opacity ready tiles fade toward.
// Direct skips the fade and snaps to the target immediately.
func (c *Coordinator) SetTargetOpacity(opacity float64, direct bool) {
	c.targetOpacity = opacity
	c.directOpacity = direct
}

// SetKeepRendering forces frame scheduling regardless of engine state.
func (c *Coordinator) SetKeepRendering(keep bool) {
	c.keepRendering = keep
}

// SetInteracting marks the user as actively manipulating the view.
func (c *Coordinator) SetInteracting(interacting bool) {
	c.interacting = interacting
}

// RequestTile starts loading a tile outside the frame loop. Idempotent;
// safe to call every frame for the same key.
func (c *Coordinator) RequestTile(key source.Key, src *source.Source) {
	url, err := src.ResolveURL(key)
	if err != nil {
		// No resolvable source yet; the tile stays Empty.
		return
	}
	c.cache.EnsureLoading(key, url, c.engine.IsTargetLayer(key), false)
}

// RenderFrame runs one tick: apply worker completions, request missing
// tiles, draw ready ones. Returns whether another frame should be
// scheduled. Animating feeds the load-admission policy.
func (c *Coordinator) RenderFrame(animating bool) bool {
	c.applyCompletions()

	videoPlaying := false

	for _, req := range c.engine.TilesNeeded() {
		key := req.Key
		// Every tile the engine asked for this frame takes part in the
		// eviction diff, including ones still in flight; a tile that
		// drops out of this set mid-download gets its fetch aborted.
		c.touched[key] = struct{}{}

		if c.cache.State(key) == tilecache.Empty {
			c.admit(key, req.Src, animating)
		}

		if !c.cache.IsReady(key) {
			continue
		}

		if req.Src != nil && req.Src.Kind == source.KindVideo {
			p := req.Src.Provider
			if p == nil || !p.Displayable() {
				continue
			}
			if err := c.cache.RefreshTexture(key, p.CurrentFrame()); err != nil {
				c.logger.Warn("video texture refresh failed",
					zap.String("tile", key.String()), zap.Error(err))
				continue
			}
			if p.Playing() {
				videoPlaying = true
			}
		}

		tex, ok := c.cache.Texture(key)
		if !ok {
			continue
		}
		c.gpu.Draw(tex, gpu.DrawOptions{
			Opacity:   c.cache.Opacity(key, c.targetOpacity, c.directOpacity),
			Geometry:  req.Geometry,
			Transform: req.Transform,
		})
		c.cache.MarkDrawn(key)
	}

	return c.engine.ShouldScheduleAnotherFrame() ||
		c.keepRendering ||
		c.interacting ||
		videoPlaying
}

// FrameComplete must be called exactly once per render tick, after
// RenderFrame. It drives eviction of tiles that dropped out of view and
// performs due grace-period deletions.
func (c *Coordinator) FrameComplete() {
	c.sweeper.Sweep(c.prevTouched, c.touched)
	c.cache.SweepExpired()

	c.prevTouched, c.touched = c.touched, c.prevTouched
	clear(c.touched)
}

// applyCompletions marshals finished downloads back onto this
// goroutine. Non-blocking; whatever has not completed yet is picked up
// next frame.
func (c *Coordinator) applyCompletions() {
	for {
		select {
		case res, ok := <-c.pool.Results():
			if !ok {
				return
			}
			c.cache.ApplyResult(res)
		default:
			return
		}
	}
}

// admit starts a load for an empty tile. Video tiles adopt the
// provider's current frame instead of going through the pool.
func (c *Coordinator) admit(key source.Key, src *source.Source, animating bool) {
	if src != nil && src.Kind == source.KindVideo {
		p := src.Provider
		if p != nil && p.Displayable() {
			_ = c.cache.Adopt(key, p.CurrentFrame())
		}
		return
	}

	url, err := src.ResolveURL(key)
	if err != nil {
		// Source cannot produce a URL this frame; silently leave the
		// tile Empty rather than retry-storm.
		return
	}
	c.cache.EnsureLoading(key, url, c.engine.IsTargetLayer(key), animating)
}
