package coordinator

import (
	"go.uber.org/zap"

	"panoview/internal/source"
	"panoview/internal/tilecache"
)

// Sweeper reclaims resources for tiles that were needed last frame but
// not this one. Base-layer tiles are exempt: they are the permanent
// fallback under everything else.
type Sweeper struct {
	cache  *tilecache.Cache
	logger *zap.Logger
}

func NewSweeper(cache *tilecache.Cache, logger *zap.Logger) *Sweeper {
	return &Sweeper{cache: cache, logger: logger}
}

// Sweep classifies every tile present in prev but absent from cur:
// in-flight loads are aborted, loaded-but-never-drawn tiles are deleted
// immediately, and drawn tiles get a grace-period countdown so a quick
// reappearance reuses them without a refetch.
func (s *Sweeper) Sweep(prev, cur map[source.Key]struct{}) {
	for key := range prev {
		if _, still := cur[key]; still {
			continue
		}
		if key.IsBase() {
			continue
		}

		switch s.cache.State(key) {
		case tilecache.Empty:
			// Placeholder entry that never started loading; drop it so
			// the entry table does not grow with scroll history.
			s.cache.DeleteNow(key)
		case tilecache.Requested:
			// Aborts the download and removes the entry; a late result
			// for the cancelled token is dropped as stale.
			s.cache.DeleteNow(key)
		case tilecache.Ready:
			// Never made it to screen; nothing to fade out.
			s.cache.DeleteNow(key)
		case tilecache.Drawn:
			s.cache.ScheduleDelete(key)
		}
	}
}
