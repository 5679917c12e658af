// Package chunks implements per-player chunk streaming: tracking which
// chunks a player should see given their position and view radius, and
// the lockstep viewer sets chunks keep of the players watching them.
package chunks

import "container/heap"

// Coord is a chunk column coordinate.
type Coord struct {
	X, Z int32
}

func squaredDistance(a, b Coord) int64 {
	dx := int64(a.X - b.X)
	dz := int64(a.Z - b.Z)
	return dx*dx + dz*dz
}

type queuedChunk struct {
	coord    Coord
	distSq   int64
}

// loadQueue is a min-heap by squared distance so Pop always yields the
// closest not-yet-loaded chunk next.
type loadQueue []queuedChunk

func (q loadQueue) Len() int            { return len(q) }
func (q loadQueue) Less(i, j int) bool  { return q[i].distSq < q[j].distSq }
func (q loadQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *loadQueue) Push(x interface{}) { *q = append(*q, x.(queuedChunk)) }
func (q *loadQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ChunkLoader tracks, for one player, which chunks are currently loaded
// and which still need to be sent, prioritized closest-first.
type ChunkLoader struct {
	center Coord
	radius int32

	loaded map[Coord]struct{}
	queue  loadQueue
}

// NewChunkLoader returns a loader centered at center with the given view
// radius (in chunks).
func NewChunkLoader(center Coord, radius int32) *ChunkLoader {
	l := &ChunkLoader{
		center: center,
		radius: radius,
		loaded: make(map[Coord]struct{}),
	}
	l.rebuildQueue()
	return l
}

// Center returns the loader's current center chunk.
func (l *ChunkLoader) Center() Coord { return l.center }

// Radius returns the loader's current view radius in chunks.
func (l *ChunkLoader) Radius() int32 { return l.radius }

// Loaded reports whether coord has already been sent to the player.
func (l *ChunkLoader) Loaded(coord Coord) bool {
	_, ok := l.loaded[coord]
	return ok
}

// MoveTo re-centers the loader on center, evicting any loaded chunk now
// outside radius and rebuilding the load queue from the chunks newly in
// range.
func (l *ChunkLoader) MoveTo(center Coord) []Coord {
	l.center = center
	return l.evictAndRebuild()
}

// SetRadius changes the view radius, evicting and rebuilding exactly as
// MoveTo does.
func (l *ChunkLoader) SetRadius(radius int32) []Coord {
	l.radius = radius
	return l.evictAndRebuild()
}

// evictAndRebuild drops every loaded chunk now outside the current
// center/radius and rebuilds the load queue, returning the evicted
// coordinates so the caller can tell chunk-side viewer sets to drop this
// player.
func (l *ChunkLoader) evictAndRebuild() []Coord {
	limitSq := int64(l.radius) * int64(l.radius)
	var evicted []Coord
	for coord := range l.loaded {
		if squaredDistance(coord, l.center) > limitSq {
			delete(l.loaded, coord)
			evicted = append(evicted, coord)
		}
	}
	l.rebuildQueue()
	return evicted
}

func (l *ChunkLoader) rebuildQueue() {
	l.queue = l.queue[:0]
	heap.Init(&l.queue)
	r := l.radius
	limitSq := int64(r) * int64(r)
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			coord := Coord{X: l.center.X + dx, Z: l.center.Z + dz}
			distSq := int64(dx)*int64(dx) + int64(dz)*int64(dz)
			if distSq > limitSq {
				continue
			}
			if _, ok := l.loaded[coord]; ok {
				continue
			}
			heap.Push(&l.queue, queuedChunk{coord: coord, distSq: distSq})
		}
	}
}

// Pending reports how many chunks remain queued to load.
func (l *ChunkLoader) Pending() int { return len(l.queue) }

// Pop removes and returns the closest not-yet-loaded chunk, or false if
// the queue is empty. The caller is responsible for calling MarkLoaded
// once the chunk is actually sent.
func (l *ChunkLoader) Pop() (Coord, bool) {
	if len(l.queue) == 0 {
		return Coord{}, false
	}
	item := heap.Pop(&l.queue).(queuedChunk)
	return item.coord, true
}

// Requeue pushes coord back onto the front of the load queue (highest
// priority), used when a send attempt failed and should be retried next
// tick ahead of everything else still pending.
func (l *ChunkLoader) Requeue(coord Coord) {
	heap.Push(&l.queue, queuedChunk{coord: coord, distSq: -1})
}

// MarkLoaded records that coord has been sent to the player.
func (l *ChunkLoader) MarkLoaded(coord Coord) {
	l.loaded[coord] = struct{}{}
}

// LoadedCoords returns every chunk coordinate currently marked loaded.
func (l *ChunkLoader) LoadedCoords() []Coord {
	out := make([]Coord, 0, len(l.loaded))
	for c := range l.loaded {
		out = append(out, c)
	}
	return out
}
