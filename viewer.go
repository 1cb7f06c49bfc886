// Package panoview is the tile streaming and GPU cache engine for a
// deep-zoom image/panorama viewer. Given a view engine that decides
// which tiles the current camera needs, it downloads and decodes those
// tiles on a bounded worker pool, uploads them to the GPU, fades them
// in, and evicts whatever falls out of view.
//
// A Viewer and everything reachable from it is confined to a single
// render goroutine (for an ebiten host, the game's Update/Draw
// callbacks). Only the download workers run elsewhere, and their
// results are folded back in during RenderFrame.
package panoview

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"panoview/internal/config"
	"panoview/internal/coordinator"
	"panoview/internal/decode"
	"panoview/internal/fetch"
	"panoview/internal/gpu"
	"panoview/internal/pool"
	"panoview/internal/source"
	"panoview/internal/tilecache"
)

// Aliases re-export the types an embedding application needs without
// reaching into internal packages.
type (
	Key           = source.Key
	Source        = source.Source
	SourceKind    = source.Kind
	FrameProvider = source.FrameProvider

	GPU          = gpu.Context
	Texture      = gpu.Texture
	DrawOptions  = gpu.DrawOptions
	Transform    = gpu.Transform
	GeometryKind = gpu.GeometryKind

	ViewEngine  = coordinator.ViewEngine
	TileRequest = coordinator.TileRequest

	Config    = config.Config
	PoolStats = pool.Stats
)

const (
	KindImage     = source.KindImage
	KindVideo     = source.KindVideo
	KindOmniFrame = source.KindOmniFrame

	GeometryFlat     = gpu.GeometryFlat
	GeometryEquirect = gpu.GeometryEquirect
	GeometryCubeFace = gpu.GeometryCubeFace
)

// LoadConfig reads the configuration from the environment.
func LoadConfig() *Config {
	return config.Load()
}

type retryState struct {
	policy backoff.BackOff
	next   time.Time
}

// Viewer is the engine facade. Not safe for concurrent use; all
// methods must be called from the render goroutine.
type Viewer struct {
	cfg    *Config
	logger *zap.Logger

	pool  *pool.Pool
	cache *tilecache.Cache
	coord *coordinator.Coordinator

	targetOpacity float64
	directOpacity bool

	// retries is nil unless RetryEnabled; it rate-limits re-requests
	// of failed tiles without changing the core's no-retry contract.
	retries map[Key]*retryState
}

func New(engine ViewEngine, gctx GPU, cfg *Config, logger *zap.Logger) (*Viewer, error) {
	if cfg == nil {
		cfg = config.Load()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var decoder decode.Decoder
	switch cfg.Decoder {
	case "vips":
		decoder = decode.NewVips()
	case "", "std":
		decoder = decode.NewStd()
	default:
		return nil, fmt.Errorf("unknown decoder: %s (supported: std, vips)", cfg.Decoder)
	}
	logger.Info("tile decoder selected", zap.String("decoder", decoder.Name()))

	client := fetch.New(decoder, logger)
	p := pool.New(config.ClampWorkers(cfg.WorkerPoolSize), cfg.WorkerCooldown, client.FetchAndDecode, logger)
	cache := tilecache.New(gctx, p, tilecache.Options{
		FadeDuration: cfg.FadeDuration,
		GracePeriod:  cfg.GracePeriod,
		LowBandwidth: cfg.LowBandwidth,
		Smoothing:    true,
	}, logger)
	coord := coordinator.New(engine, cache, p, gctx, logger)

	v := &Viewer{
		cfg:           cfg,
		logger:        logger,
		pool:          p,
		cache:         cache,
		coord:         coord,
		targetOpacity: 1,
	}
	if cfg.RetryEnabled {
		v.retries = make(map[Key]*retryState)
		cache.SetFailureHook(v.noteFailure)
		cache.SetGate(v.admit)
	}

	logger.Info("viewer engine started",
		zap.Int("workers", p.Size()),
		zap.Duration("grace_period", cfg.GracePeriod),
		zap.Duration("fade", cfg.FadeDuration),
	)
	return v, nil
}

// RequestTile starts loading a tile. Idempotent; safe to call every
// frame for the same key while the load is outstanding.
func (v *Viewer) RequestTile(key Key, src *Source) {
	v.coord.RequestTile(key, src)
}

func (v *Viewer) IsTileReady(key Key) bool {
	return v.cache.IsReady(key)
}

// CurrentOpacity returns the tile's present fade-in opacity, zero for
// tiles that are not ready.
func (v *Viewer) CurrentOpacity(key Key) float64 {
	return v.cache.Opacity(key, v.targetOpacity, v.directOpacity)
}

// SetTargetOpacity sets the opacity tiles fade toward. With direct set,
// tiles snap to it instead of fading.
func (v *Viewer) SetTargetOpacity(opacity float64, direct bool) {
	v.targetOpacity = opacity
	v.directOpacity = direct
	v.coord.SetTargetOpacity(opacity, direct)
}

// SetKeepRendering forces the render loop to keep scheduling frames.
func (v *Viewer) SetKeepRendering(keep bool) {
	v.coord.SetKeepRendering(keep)
}

// SetInteracting marks the user as actively manipulating the view.
func (v *Viewer) SetInteracting(interacting bool) {
	v.coord.SetInteracting(interacting)
}

// RenderFrame runs one tick of the streaming loop and reports whether
// another frame should be scheduled.
func (v *Viewer) RenderFrame(animating bool) bool {
	return v.coord.RenderFrame(animating)
}

// OnFrameComplete must be invoked exactly once per render tick, after
// RenderFrame, to drive eviction bookkeeping.
func (v *Viewer) OnFrameComplete() {
	v.coord.FrameComplete()
	v.pruneRetries()
}

func (v *Viewer) PoolStats() PoolStats {
	return v.pool.Stats()
}

// CachedTiles reports the number of live cache entries.
func (v *Viewer) CachedTiles() int {
	return v.cache.Len()
}

// Shutdown cancels all in-flight work and releases every GPU handle.
// The viewer is unusable afterwards.
func (v *Viewer) Shutdown() {
	v.pool.Shutdown()
	v.cache.Shutdown()
	v.logger.Info("viewer engine stopped")
}

func (v *Viewer) noteFailure(key Key, err error) {
	rs, ok := v.retries[key]
	if !ok {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 500 * time.Millisecond
		policy.MaxInterval = 30 * time.Second
		policy.MaxElapsedTime = 0
		rs = &retryState{policy: policy}
		v.retries[key] = rs
	}
	rs.next = time.Now().Add(rs.policy.NextBackOff())
}

// admit gates re-requests of previously failed tiles until their
// backoff interval has passed.
func (v *Viewer) admit(key Key) bool {
	rs, ok := v.retries[key]
	if !ok {
		return true
	}
	return time.Now().After(rs.next)
}

// pruneRetries drops backoff state for tiles that made it to the GPU.
func (v *Viewer) pruneRetries() {
	if len(v.retries) == 0 {
		return
	}
	for key := range v.retries {
		if v.cache.IsReady(key) {
			delete(v.retries, key)
		}
	}
}
