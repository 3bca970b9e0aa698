package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

type recordingSink struct {
	mu    sync.Mutex
	got   []string
	fail  bool
	ready chan struct{}
}

func (s *recordingSink) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, snap.InternalName)
	if s.ready != nil {
		s.ready <- struct{}{}
	}
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func TestAsyncBroadcasterDelivers(t *testing.T) {
	sink := &recordingSink{ready: make(chan struct{}, 4)}
	b := NewAsyncBroadcaster("test", sink, 2, nil)
	defer b.Close()

	b.BroadcastSnapshot(&models.Snapshot{InternalName: "router"})
	b.BroadcastSnapshot(&models.Snapshot{InternalName: "google"})

	for i := 0; i < 2; i++ {
		select {
		case <-sink.ready:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for snapshot delivery")
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) != 2 {
		t.Errorf("expected 2 deliveries, got %d", len(sink.got))
	}
}

func TestAsyncBroadcasterSinkErrorDoesNotStopWorkers(t *testing.T) {
	sink := &recordingSink{fail: true, ready: make(chan struct{}, 4)}
	b := NewAsyncBroadcaster("failing", sink, 1, nil)
	defer b.Close()

	for i := 0; i < 3; i++ {
		b.BroadcastSnapshot(&models.Snapshot{InternalName: "router"})
		select {
		case <-sink.ready:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d did not happen", i)
		}
	}
}

func TestMultiBroadcaster(t *testing.T) {
	a := &countingBroadcaster{}
	c := &countingBroadcaster{}
	m := MultiBroadcaster{a, c, NewNullBroadcaster()}

	m.BroadcastSnapshot(&models.Snapshot{})
	m.Close()

	if a.snaps != 1 || c.snaps != 1 {
		t.Errorf("expected each broadcaster to receive 1 snapshot, got %d and %d", a.snaps, c.snaps)
	}
	if !a.closed || !c.closed {
		t.Error("expected Close to propagate")
	}
}

type countingBroadcaster struct {
	snaps  int
	closed bool
}

func (c *countingBroadcaster) BroadcastSnapshot(*models.Snapshot) { c.snaps++ }
func (c *countingBroadcaster) Close()                             { c.closed = true }
