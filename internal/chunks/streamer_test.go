package chunks

import "testing"

type fakeSource struct {
	failCoord Coord
	shouldErr bool
}

func (s *fakeSource) Encode(coord Coord) ([]byte, error) {
	if s.shouldErr && coord == s.failCoord {
		return nil, errEncode
	}
	return []byte{byte(coord.X), byte(coord.Z)}, nil
}

var errEncode = &encodeError{}

type encodeError struct{}

func (e *encodeError) Error() string { return "encode failed" }

type fakeSender struct {
	sent     [][]byte
	fullFor  int
	attempts int
}

func (s *fakeSender) TrySend(data []byte) bool {
	s.attempts++
	if s.attempts <= s.fullFor {
		return false
	}
	s.sent = append(s.sent, data)
	return true
}

type fakeDropLogger struct {
	calls []uint64
}

func (l *fakeDropLogger) ChunkSendDropped(player PlayerID, total uint64) {
	l.calls = append(l.calls, total)
}

func TestStreamerTickSendsAndMarksLoaded(t *testing.T) {
	loader := NewChunkLoader(Coord{0, 0}, 1)
	viewers := NewChunkViewers()
	sender := &fakeSender{}
	source := &fakeSource{}
	s := NewStreamer(1, loader, viewers, source, sender, 5)

	s.Tick()

	if len(sender.sent) != 5 {
		t.Fatalf("expected 5 chunks sent, got %d", len(sender.sent))
	}
	if loader.Pending() != 0 {
		t.Fatalf("expected queue drained, got %d pending", loader.Pending())
	}
	if len(loader.LoadedCoords()) != 5 {
		t.Fatalf("expected 5 loaded coords, got %d", len(loader.LoadedCoords()))
	}
	for _, c := range loader.LoadedCoords() {
		if len(viewers.Viewers(c)) != 1 {
			t.Fatalf("expected viewer set recorded for %+v", c)
		}
	}
}

func TestStreamerRequeuesOnFullSender(t *testing.T) {
	loader := NewChunkLoader(Coord{0, 0}, 1)
	viewers := NewChunkViewers()
	sender := &fakeSender{fullFor: 100}
	source := &fakeSource{}
	logger := &fakeDropLogger{}
	s := NewStreamer(1, loader, viewers, source, sender, 5)
	s.Logger = logger

	pendingBefore := loader.Pending()
	s.Tick()

	if loader.Pending() != pendingBefore {
		t.Fatalf("expected chunk requeued (pending unchanged), got %d want %d", loader.Pending(), pendingBefore)
	}
	if len(loader.LoadedCoords()) != 0 {
		t.Fatal("expected nothing marked loaded when send fails")
	}
	if len(logger.calls) != 1 || logger.calls[0] != 1 {
		t.Fatalf("expected one drop logged with total 1, got %+v", logger.calls)
	}
}

func TestStreamerSkipsEncodeErrors(t *testing.T) {
	loader := NewChunkLoader(Coord{0, 0}, 1)
	viewers := NewChunkViewers()
	sender := &fakeSender{}
	source := &fakeSource{shouldErr: true, failCoord: Coord{0, 0}}
	s := NewStreamer(1, loader, viewers, source, sender, 5)

	s.Tick()

	if loader.Loaded(Coord{0, 0}) {
		t.Fatal("expected failing chunk to stay unloaded")
	}
	if len(sender.sent) != 4 {
		t.Fatalf("expected 4 successful sends (5 popped minus 1 failed encode), got %d", len(sender.sent))
	}
}

func TestStreamerDespawnClearsViewerEntries(t *testing.T) {
	loader := NewChunkLoader(Coord{0, 0}, 1)
	viewers := NewChunkViewers()
	sender := &fakeSender{}
	source := &fakeSource{}
	s := NewStreamer(9, loader, viewers, source, sender, 10)

	s.Tick()
	if viewers.Count() == 0 {
		t.Fatal("expected some chunks to have a viewer after tick")
	}

	s.Despawn()
	if viewers.Count() != 0 {
		t.Fatalf("expected despawn to clear all viewer entries, got %d", viewers.Count())
	}
}

func TestStreamerDropCounterEvery100th(t *testing.T) {
	loader := NewChunkLoader(Coord{0, 0}, 5)
	viewers := NewChunkViewers()
	sender := &fakeSender{fullFor: 1 << 20}
	source := &fakeSource{}
	logger := &fakeDropLogger{}
	s := NewStreamer(1, loader, viewers, source, sender, 1)
	s.Logger = logger

	for i := 0; i < 150; i++ {
		s.Tick()
		if loader.Pending() == 0 {
			break
		}
	}

	if len(logger.calls) < 2 {
		t.Fatalf("expected at least 2 drop log calls (1st and 100th), got %+v", logger.calls)
	}
	if logger.calls[0] != 1 {
		t.Fatalf("expected first call to log total=1, got %d", logger.calls[0])
	}
	found100 := false
	for _, c := range logger.calls {
		if c == 100 {
			found100 = true
		}
	}
	if !found100 {
		t.Fatalf("expected a drop logged at total=100, got %+v", logger.calls)
	}
}
