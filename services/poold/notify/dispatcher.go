package notify

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"assetpool/core/events"
)

// Message is a notification as delivered to external observers.
type Message struct {
	ID string `json:"id"`
	events.Record
}

// Target receives dispatched notifications.
type Target interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher decouples the core from slow observers. Emit never blocks: when
// the buffer is full the notification is dropped and counted.
type Dispatcher struct {
	logger  *slog.Logger
	buf     chan Message
	targets []Target
	nonce   string
	seq     atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher constructs a dispatcher with the supplied buffer depth.
func NewDispatcher(buffer int, logger *slog.Logger, targets ...Target) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	filtered := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			filtered = append(filtered, t)
		}
	}
	return &Dispatcher{
		logger:  logger,
		buf:     make(chan Message, buffer),
		targets: filtered,
		nonce:   uuid.NewString(),
	}
}

// Emit implements events.Emitter.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	rec := evt.Record()
	msg := Message{ID: d.messageID(rec), Record: rec}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.buf <- msg:
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification dropped", "kind", rec.Kind, "id", msg.ID)
	}
}

// Dropped reports how many notifications were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Run delivers buffered notifications until ctx is cancelled, then flushes
// whatever is still queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-d.buf:
			d.deliver(ctx, msg)
		case <-ctx.Done():
			d.mu.Lock()
			d.closed = true
			d.mu.Unlock()
			d.flush()
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case msg := <-d.buf:
			d.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	for _, target := range d.targets {
		if err := target.Deliver(ctx, msg); err != nil {
			d.logger.Warn("notification delivery failed", "target", target.Name(), "kind", msg.Kind, "id", msg.ID, "error", err)
		}
	}
}

func (d *Dispatcher) messageID(rec events.Record) string {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], d.seq.Add(1))
	body, _ := json.Marshal(rec)
	digest := blake3.New(16, nil)
	digest.Write([]byte(d.nonce))
	digest.Write(seq[:])
	digest.Write(body)
	return hex.EncodeToString(digest.Sum(nil))
}
