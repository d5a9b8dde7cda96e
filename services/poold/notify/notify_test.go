package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"assetpool/core/events"
	"assetpool/crypto"
	"assetpool/services/poold/storage"
)

type recordingTarget struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (*recordingTarget) Name() string { return "recording" }

func (r *recordingTarget) Deliver(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingTarget) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func swapEvent(amount uint64) events.Event {
	return events.Swap{
		Trader:    crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x0a}, 20)),
		AssetIn:   "SOIL",
		AmountIn:  amount,
		AssetOut:  "H2O",
		AmountOut: amount / 2,
		Timestamp: 42,
	}
}

func TestDispatcherDeliversToEveryTarget(t *testing.T) {
	first := &recordingTarget{}
	second := &recordingTarget{err: errors.New("unreachable")}
	d := NewDispatcher(8, nil, first, nil, second)

	d.Emit(swapEvent(100))
	d.Emit(swapEvent(200))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)

	got := first.snapshot()
	require.Len(t, got, 2)
	require.Len(t, second.snapshot(), 2)
	require.Equal(t, events.TypeSwap, got[0].Kind)
	require.NotEqual(t, got[0].ID, got[1].ID)

	d.Emit(swapEvent(300))
	require.Equal(t, uint64(1), d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, nil, &recordingTarget{})
	d.Emit(swapEvent(1))
	d.Emit(swapEvent(2))
	d.Emit(nil)
	require.Equal(t, uint64(1), d.Dropped())
}

func TestStoreTargetPersists(t *testing.T) {
	dsn, err := storage.FileDSN(filepath.Join(t.TempDir(), "notify.sqlite"))
	require.NoError(t, err)
	store, err := storage.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := NewDispatcher(4, nil, StoreTarget{Store: store})
	d.Emit(swapEvent(100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)

	stored, err := store.ListEvents(context.Background(), storage.EventFilter{Kind: events.TypeSwap})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, uint64(100), stored[0].Record.Amounts["amount_in"])
}

func TestNATSTargetPublishesByKind(t *testing.T) {
	conn := &fakeConn{}
	target := NewNATSTarget(conn, "assetpool.events.")
	msg := Message{ID: "abc", Record: swapEvent(10).Record()}
	require.NoError(t, target.Deliver(context.Background(), msg))
	require.Equal(t, []string{"assetpool.events.pool.swap"}, conn.subjects)

	var decoded Message
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	require.Equal(t, "abc", decoded.ID)
	require.Equal(t, uint64(10), decoded.Amounts["amount_in"])
}

func TestHubStreamsFilteredMessages(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?kind=pool."
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	price := events.PriceUpdated{Asset: "SOIL", Price: 1, Timestamp: 1}
	require.NoError(t, hub.Deliver(ctx, Message{ID: "skip", Record: price.Record()}))
	require.NoError(t, hub.Deliver(ctx, Message{ID: "keep", Record: swapEvent(5).Record()}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "keep", msg.ID)
	require.Equal(t, events.TypeSwap, msg.Kind)
}
