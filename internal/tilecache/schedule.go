package tilecache

import (
	"container/heap"
	"time"

	"panoview/internal/source"
)

// scheduledDelete is one pending grace-period deletion. Entries are
// invalidated lazily: if the cache entry's deleteAt no longer matches
// (re-drawn, re-requested or already gone) the item is skipped on pop.
type scheduledDelete struct {
	at  time.Time
	key source.Key
}

type deleteSchedule []scheduledDelete

func (s deleteSchedule) Len() int            { return len(s) }
func (s deleteSchedule) Less(i, j int) bool  { return s[i].at.Before(s[j].at) }
func (s deleteSchedule) Swap(i, j int)       { s[i], s[j] = s[j], s[i] }
func (s *deleteSchedule) Push(x interface{}) { *s = append(*s, x.(scheduledDelete)) }

func (s *deleteSchedule) Pop() interface{} {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

func (s *deleteSchedule) add(at time.Time, key source.Key) {
	heap.Push(s, scheduledDelete{at: at, key: key})
}

// popDue removes and returns the earliest item not after now, or false
// if none is due.
func (s *deleteSchedule) popDue(now time.Time) (scheduledDelete, bool) {
	if len(*s) == 0 || (*s)[0].at.After(now) {
		return scheduledDelete{}, false
	}
	return heap.Pop(s).(scheduledDelete), true
}
