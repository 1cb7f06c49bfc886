// Package tilecache is the single authority on tile readiness and GPU
// handle ownership. Every texture the engine creates lives in exactly
// one entry here, and every state transition of a tile goes through
// this package.
//
// The cache is confined to the coordination goroutine and holds no
// locks; workers never touch it directly. Their results are applied via
// ApplyResult when the coordinator drains the pool's results channel.
package tilecache

import (
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"panoview/internal/gpu"
	"panoview/internal/pool"
	"panoview/internal/source"
)

type State int

const (
	Empty State = iota
	Requested
	Ready
	Drawn
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Requested:
		return "requested"
	case Ready:
		return "ready"
	case Drawn:
		return "drawn"
	default:
		return "invalid"
	}
}

// entry tracks one tile. texture is non-nil iff state is Ready or
// Drawn; token is non-nil iff state is Requested.
type entry struct {
	state    State
	texture  gpu.Texture
	loadedAt time.Time
	deleteAt time.Time
	token    uuid.UUID
}

type Options struct {
	FadeDuration time.Duration
	GracePeriod  time.Duration
	LowBandwidth bool
	Smoothing    bool
}

type Cache struct {
	gpu    gpu.Context
	pool   *pool.Pool
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	entries  map[source.Key]*entry
	schedule deleteSchedule

	// gate, when set, may veto a load before admission is considered.
	// The facade uses it for its optional failure-backoff policy.
	gate func(source.Key) bool
	// onFailure observes non-aborted load failures.
	onFailure func(source.Key, error)
}

func New(gctx gpu.Context, p *pool.Pool, opts Options, logger *zap.Logger) *Cache {
	return &Cache{
		gpu:     gctx,
		pool:    p,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		entries: make(map[source.Key]*entry),
	}
}

// SetClock replaces the time source. Tests use it to step through fade
// and grace periods deterministically.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Cache) SetGate(gate func(source.Key) bool) {
	c.gate = gate
}

func (c *Cache) SetFailureHook(hook func(source.Key, error)) {
	c.onFailure = hook
}

func (c *Cache) State(key source.Key) State {
	if e, ok := c.entries[key]; ok {
		return e.state
	}
	return Empty
}

func (c *Cache) IsReady(key source.Key) bool {
	s := c.State(key)
	return s == Ready || s == Drawn
}

func (c *Cache) Texture(key source.Key) (gpu.Texture, bool) {
	if e, ok := c.entries[key]; ok && e.texture != nil {
		return e.texture, true
	}
	return nil, false
}

func (c *Cache) Len() int {
	return len(c.entries)
}

// EnsureLoading starts a download for key unless one is already
// outstanding, the tile is past Empty, or the admission policy defers
// it. Deferral only delays a load; the coordinator retries every frame
// while the tile stays needed.
func (c *Cache) EnsureLoading(key source.Key, url string, isTarget, animating bool) {
	e := c.ensure(key)
	if e.state != Empty {
		return
	}
	if url == "" {
		return
	}
	if c.gate != nil && !c.gate(key) {
		return
	}
	if !shouldStartLoad(isTarget, animating, c.opts.LowBandwidth, c.pool.FreeSlots(), c.pool.Size()) {
		return
	}

	token, _ := c.pool.Submit(key, url)
	e.state = Requested
	e.token = token
}

// ApplyResult consumes one worker completion. Stale results, ones whose
// token no longer matches the entry because the tile was evicted or
// re-requested in the meantime, are dropped without side effects.
func (c *Cache) ApplyResult(res pool.Result) {
	e, ok := c.entries[res.Key]
	if !ok || e.state != Requested || e.token != res.Token {
		c.logger.Debug("dropping stale tile result", zap.String("tile", res.Key.String()))
		return
	}

	e.token = uuid.Nil

	if res.Err != nil {
		// Aborts are expected during eviction; real failures were
		// already logged by the pool. Either way the tile simply
		// returns to Empty and may be re-requested next frame.
		e.state = Empty
		if !pool.IsAborted(res.Err) && c.onFailure != nil {
			c.onFailure(res.Key, res.Err)
		}
		return
	}

	tex, err := c.gpu.CreateTexture(res.Bitmap, c.opts.Smoothing)
	if err != nil {
		c.logger.Warn("texture creation failed",
			zap.String("tile", res.Key.String()),
			zap.Error(err),
		)
		e.state = Empty
		if c.onFailure != nil {
			c.onFailure(res.Key, err)
		}
		return
	}

	e.texture = tex
	e.state = Ready
	e.loadedAt = c.now()
	e.deleteAt = time.Time{}
}

// Adopt installs an externally produced bitmap, bypassing the download
// pool. Used for video-backed tiles and for pre-populated archive
// content. Only valid for Empty tiles.
func (c *Cache) Adopt(key source.Key, bm *image.RGBA) error {
	e := c.ensure(key)
	if e.state != Empty {
		return nil
	}
	tex, err := c.gpu.CreateTexture(bm, c.opts.Smoothing)
	if err != nil {
		c.logger.Warn("texture creation failed",
			zap.String("tile", key.String()),
			zap.Error(err),
		)
		return err
	}
	e.texture = tex
	e.state = Ready
	e.loadedAt = c.now()
	e.deleteAt = time.Time{}
	return nil
}

// RefreshTexture replaces the pixel content of a ready or drawn tile
// in place. Used every frame for continuously-updating sources.
func (c *Cache) RefreshTexture(key source.Key, bm *image.RGBA) error {
	e, ok := c.entries[key]
	if !ok || e.texture == nil {
		return nil
	}
	return c.gpu.UpdateTexture(e.texture, bm)
}

// MarkDrawn records the first successful draw of a ready tile and
// clears any pending grace-period deletion, so a tile that reappears
// within the grace window is kept.
func (c *Cache) MarkDrawn(key source.Key) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.state == Ready {
		e.state = Drawn
	}
	e.deleteAt = time.Time{}
}

// Opacity computes the current fade-in opacity for key, scaled by the
// target image opacity. Direct requests snap to the target immediately.
// Tiles without a texture are fully transparent.
func (c *Cache) Opacity(key source.Key, target float64, direct bool) float64 {
	e, ok := c.entries[key]
	if !ok || (e.state != Ready && e.state != Drawn) {
		return 0
	}
	if direct || c.opts.FadeDuration <= 0 {
		return target
	}
	elapsed := c.now().Sub(e.loadedAt)
	t := float64(elapsed) / float64(c.opts.FadeDuration)
	if t > 1 {
		t = 1
	}
	if t < 0 {
		t = 0
	}
	return t * target
}

// CancelRequested aborts the outstanding download for key and returns
// the entry to Empty.
func (c *Cache) CancelRequested(key source.Key) {
	e, ok := c.entries[key]
	if !ok || e.state != Requested {
		return
	}
	c.pool.Cancel(key)
	e.state = Empty
	e.token = uuid.Nil
}

// DeleteNow releases the tile's texture, if any, and removes the entry.
func (c *Cache) DeleteNow(key source.Key) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.state == Requested {
		c.pool.Cancel(key)
	}
	if e.texture != nil {
		c.gpu.DeleteTexture(e.texture)
		e.texture = nil
	}
	delete(c.entries, key)
}

// ScheduleDelete starts the grace-period countdown for a drawn tile
// that just went unused. No-op if a countdown is already running.
func (c *Cache) ScheduleDelete(key source.Key) {
	e, ok := c.entries[key]
	if !ok || e.state != Drawn || !e.deleteAt.IsZero() {
		return
	}
	e.deleteAt = c.now().Add(c.opts.GracePeriod)
	c.schedule.add(e.deleteAt, key)
}

// SweepExpired deletes every tile whose grace period has elapsed.
// Called once per frame by the sweeper.
func (c *Cache) SweepExpired() {
	now := c.now()
	for {
		item, ok := c.schedule.popDue(now)
		if !ok {
			return
		}
		e, ok := c.entries[item.key]
		if !ok || e.deleteAt.IsZero() || !e.deleteAt.Equal(item.at) {
			// Stale schedule item; the tile was re-drawn, deleted
			// or rescheduled since.
			continue
		}
		c.DeleteNow(item.key)
	}
}

// Shutdown cancels all outstanding loads and releases every texture.
func (c *Cache) Shutdown() {
	for key, e := range c.entries {
		if e.state == Requested {
			c.pool.Cancel(key)
		}
		if e.texture != nil {
			c.gpu.DeleteTexture(e.texture)
			e.texture = nil
		}
		delete(c.entries, key)
	}
	c.schedule = nil
}

func (c *Cache) ensure(key source.Key) *entry {
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &entry{state: Empty}
	c.entries[key] = e
	return e
}
