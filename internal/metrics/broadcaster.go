package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/models"
)

// Broadcaster hands published snapshots to the push layer.
type Broadcaster interface {
	BroadcastSnapshot(snap *models.Snapshot)
	Close()
}

// Sink is a transport that can deliver a snapshot, such as the websocket hub
// or the NATS publisher.
type Sink interface {
	PublishSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// AsyncBroadcaster delivers snapshots to a Sink from a bounded buffer drained
// by worker goroutines, so a slow transport never blocks the publish tick.
type AsyncBroadcaster struct {
	name    string
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger
	buffer  chan *models.Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsyncBroadcaster starts workers delivering to sink. name labels metrics.
func NewAsyncBroadcaster(name string, sink Sink, workers int, logger *zap.Logger) *AsyncBroadcaster {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	b := &AsyncBroadcaster{
		name:    name,
		sink:    sink,
		timeout: 5 * time.Second,
		logger:  logger,
		buffer:  make(chan *models.Snapshot, 256),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	return b
}

func (b *AsyncBroadcaster) worker() {
	defer b.wg.Done()

	for {
		select {
		case snap := <-b.buffer:
			b.send(snap)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *AsyncBroadcaster) send(snap *models.Snapshot) {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	if err := b.sink.PublishSnapshot(ctx, snap); err != nil {
		SnapshotsPublished.WithLabelValues(b.name, "error").Inc()
		b.logger.Warn("failed to deliver snapshot",
			zap.String("sink", b.name),
			zap.String("target", snap.InternalName),
			zap.Error(err))
		return
	}
	SnapshotsPublished.WithLabelValues(b.name, "ok").Inc()
}

// BroadcastSnapshot enqueues snap, dropping it if the buffer is full.
func (b *AsyncBroadcaster) BroadcastSnapshot(snap *models.Snapshot) {
	select {
	case b.buffer <- snap:
	default:
		SnapshotsPublished.WithLabelValues(b.name, "dropped").Inc()
		b.logger.Warn("broadcast buffer full, dropping snapshot",
			zap.String("sink", b.name),
			zap.String("target", snap.InternalName))
	}
}

// Close stops the workers. Snapshots still buffered are discarded.
func (b *AsyncBroadcaster) Close() {
	b.once.Do(func() {
		b.cancel()
		b.wg.Wait()
	})
}

// MultiBroadcaster fans snapshots out to several broadcasters.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) BroadcastSnapshot(snap *models.Snapshot) {
	for _, b := range m {
		b.BroadcastSnapshot(snap)
	}
}

func (m MultiBroadcaster) Close() {
	for _, b := range m {
		b.Close()
	}
}

// NullBroadcaster is a no-op broadcaster for when real-time updates are disabled
type NullBroadcaster struct{}

func NewNullBroadcaster() *NullBroadcaster {
	return &NullBroadcaster{}
}

func (n *NullBroadcaster) BroadcastSnapshot(snap *models.Snapshot) {}
func (n *NullBroadcaster) Close()                                  {}
