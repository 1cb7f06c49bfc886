package tilecache

// shouldStartLoad decides whether a pending load may start now or is
// deferred to a later frame. Target-layer tiles yield to more urgent
// lower layers while the view is in motion: starting a sharp tile then
// would tie up a worker the coarse tiles need first. Deferral never
// drops a request, it only delays it.
//
// In low-bandwidth mode the bar is higher: besides an idle pool there
// must be at least two free slots, keeping headroom for the base layer
// on constrained links.
func shouldStartLoad(isTarget, animating, lowBandwidth bool, freeSlots, poolSize int) bool {
	if !isTarget || !animating {
		return true
	}
	busy := poolSize - freeSlots
	if lowBandwidth {
		return busy == 0 && freeSlots >= 2
	}
	return busy == 0
}
