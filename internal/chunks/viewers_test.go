package chunks

import "testing"

func TestAddRemoveViewer(t *testing.T) {
	v := NewChunkViewers()
	v.Add(Coord{0, 0}, 1)
	v.Add(Coord{0, 0}, 2)

	viewers := v.Viewers(Coord{0, 0})
	if len(viewers) != 2 {
		t.Fatalf("expected 2 viewers, got %d", len(viewers))
	}

	v.Remove(Coord{0, 0}, 1)
	viewers = v.Viewers(Coord{0, 0})
	if len(viewers) != 1 || viewers[0] != 2 {
		t.Fatalf("expected only viewer 2 left, got %+v", viewers)
	}
}

func TestRemoveLastViewerClearsChunkEntry(t *testing.T) {
	v := NewChunkViewers()
	v.Add(Coord{1, 1}, 5)
	v.Remove(Coord{1, 1}, 5)

	if v.Count() != 0 {
		t.Fatalf("expected no chunk entries left, got %d", v.Count())
	}
}

func TestRemovePlayerClearsAllLoadedChunks(t *testing.T) {
	v := NewChunkViewers()
	coords := []Coord{{0, 0}, {1, 0}, {0, 1}}
	for _, c := range coords {
		v.Add(c, 7)
	}
	if v.Count() != 3 {
		t.Fatalf("expected 3 chunk entries, got %d", v.Count())
	}

	v.RemovePlayer(7, coords)

	if v.Count() != 0 {
		t.Fatalf("expected despawn to clear every viewer entry, got %d", v.Count())
	}
}
