package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"assetpool/services/poold/storage"
)

// StoreTarget appends every notification to the audit store.
type StoreTarget struct {
	Store *storage.Storage
	Now   func() time.Time
}

func (StoreTarget) Name() string { return "store" }

// Deliver implements Target.
func (t StoreTarget) Deliver(ctx context.Context, msg Message) error {
	if t.Store == nil {
		return fmt.Errorf("store not configured")
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return t.Store.RecordEvent(ctx, msg.ID, msg.Record, now())
}

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSTarget publishes notifications on <subject>.<kind>.
type NATSTarget struct {
	conn    Publisher
	subject string
}

// NewNATSTarget wraps an established connection.
func NewNATSTarget(conn Publisher, subject string) *NATSTarget {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = "assetpool.events"
	}
	return &NATSTarget{conn: conn, subject: subject}
}

func (*NATSTarget) Name() string { return "nats" }

// Subject returns the subject a notification kind is published on.
func (t *NATSTarget) Subject(kind string) string {
	return t.subject + "." + kind
}

// Deliver implements Target.
func (t *NATSTarget) Deliver(ctx context.Context, msg Message) error {
	if t == nil || t.conn == nil {
		return fmt.Errorf("nats not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return t.conn.Publish(t.Subject(msg.Kind), data)
}

// ConnectNATS dials the broker with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	if strings.TrimSpace(url) == "" {
		url = nats.DefaultURL
	}
	return nats.Connect(url,
		nats.Name("poold"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
	)
}
