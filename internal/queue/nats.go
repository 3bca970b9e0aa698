package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/home-dashboard/httping/internal/models"
)

const (
	StreamNameSnapshots = "httping-snapshots"

	// SubjectSnapshotPrefix is followed by the target internal name.
	SubjectSnapshotPrefix = "httping.snapshots"

	SchemaVersion = "1.0"

	DefaultStreamRetention = time.Hour
)

// ErrNoSnapshot is returned when no snapshot has been published for a target.
var ErrNoSnapshot = errors.New("no snapshot published")

// NATSConfig holds configuration for NATS JetStream connection
type NATSConfig struct {
	URL             string
	StreamRetention time.Duration
	ReconnectWait   time.Duration
	MaxReconnects   int
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults
func DefaultNATSConfig() *NATSConfig {
	return &NATSConfig{
		URL:             nats.DefaultURL,
		StreamRetention: DefaultStreamRetention,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1, // unlimited
	}
}

// SnapshotMessage is the envelope published for every snapshot.
type SnapshotMessage struct {
	SchemaVersion string          `json:"schema_version"`
	EventID       string          `json:"event_id"`
	PublishedAt   time.Time       `json:"published_at"`
	Snapshot      models.Snapshot `json:"snapshot"`
}

// SnapshotSubject returns the subject snapshots of internalName are published on.
func SnapshotSubject(internalName string) string {
	// subject tokens cannot contain dots or wildcards
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return SubjectSnapshotPrefix + "." + r.Replace(internalName)
}

// SnapshotPublisher publishes snapshots to a JetStream stream that keeps only
// the latest message per target, so late subscribers can read current state.
type SnapshotPublisher struct {
	config *NATSConfig
	logger *zap.Logger
	nc     *nats.Conn
	js     jetstream.JetStream
}

// NewSnapshotPublisher connects to NATS and creates the snapshot stream.
func NewSnapshotPublisher(ctx context.Context, config *NATSConfig, logger *zap.Logger) (*SnapshotPublisher, error) {
	if config == nil {
		config = DefaultNATSConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &SnapshotPublisher{config: config, logger: logger}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if err := p.createStream(ctx); err != nil {
		p.nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	return p, nil
}

func (p *SnapshotPublisher) connect() error {
	opts := []nats.Option{
		nats.Name("httpingd"),
		nats.ReconnectWait(p.config.ReconnectWait),
		nats.MaxReconnects(p.config.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			natsReconnectsTotal.Inc()
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			p.logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.config.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p.nc = nc
	p.js = js
	return nil
}

func (p *SnapshotPublisher) createStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:              StreamNameSnapshots,
		Subjects:          []string{SubjectSnapshotPrefix + ".>"},
		Storage:           jetstream.MemoryStorage,
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            p.config.StreamRetention,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		Description:       "Latest latency snapshot per target",
	}

	if _, err := p.js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to create snapshot stream: %w", err)
	}
	return nil
}

// PublishSnapshot publishes snap on its target subject.
func (p *SnapshotPublisher) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	msg := SnapshotMessage{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		PublishedAt:   time.Now().UTC(),
		Snapshot:      *snap,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, SnapshotSubject(snap.InternalName), data, jetstream.WithMsgID(msg.EventID))
	publishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		publishFailuresTotal.Inc()
		return fmt.Errorf("failed to publish snapshot for %s: %w", snap.InternalName, err)
	}
	return nil
}

// LatestSnapshot returns the last snapshot published for internalName.
func (p *SnapshotPublisher) LatestSnapshot(ctx context.Context, internalName string) (*SnapshotMessage, error) {
	stream, err := p.js.Stream(ctx, StreamNameSnapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot stream: %w", err)
	}

	raw, err := stream.GetLastMsgForSubject(ctx, SnapshotSubject(internalName))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, fmt.Errorf("%w for %s", ErrNoSnapshot, internalName)
		}
		return nil, fmt.Errorf("failed to read snapshot for %s: %w", internalName, err)
	}

	var msg SnapshotMessage
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &msg, nil
}

// Close closes the NATS connection.
func (p *SnapshotPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
