package peerbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "relay:peer:"

// DeliverFunc hands a payload to a peer connected to this instance and
// reports whether that peer was found.
type DeliverFunc func(to string, payload json.RawMessage) bool

// Bus carries signals between relay instances. Every instance keeps **exactly
// one** Redis subscription per locally identified peer, on
// "relay:peer:<peerID>", and publishes signals for peers it does not know.
type Bus struct {
	rdb     *redis.Client
	deliver DeliverFunc
	root    context.Context

	mu   sync.Mutex
	subs map[string]*subEntry // peerID ➜ subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

// New returns a bus whose subscriptions live until root is cancelled.
func New(root context.Context, rdb *redis.Client, deliver DeliverFunc) *Bus {
	return &Bus{
		rdb:     rdb,
		deliver: deliver,
		root:    root,
		subs:    make(map[string]*subEntry),
	}
}

func channelFor(peerID string) string { return channelPrefix + peerID }

// Forward publishes payload for a peer connected to another instance.
func (b *Bus) Forward(ctx context.Context, to string, payload json.RawMessage) error {
	n, err := b.rdb.Publish(ctx, channelFor(to), string(payload)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		zap.L().Debug("peerbus.no_subscriber", zap.String("to", to))
	}
	return nil
}

// PeerIdentified subscribes to the peer's channel.
func (b *Bus) PeerIdentified(peerID string) { b.Subscribe(peerID) }

// PeerLeft releases the peer's channel.
func (b *Bus) PeerLeft(peerID string) { b.Unsubscribe(peerID) }

// Subscribe ensures that the process is subscribed to the peer's channel;
// subsequent calls for the same peer only increment the ref‑counter. The Redis
// round-trip happens on the fan‑out goroutine, so Subscribe never blocks.
func (b *Bus) Subscribe(peerID string) {
	b.mu.Lock()
	if e, ok := b.subs[peerID]; ok {
		e.refCnt++
		b.mu.Unlock()
		return
	}

	// First consumer → create Redis SUB and fan‑out loop.
	ctx, cancel := context.WithCancel(b.root)
	b.subs[peerID] = &subEntry{refCnt: 1, cancel: cancel}
	b.mu.Unlock()

	go b.run(ctx, peerID)
}

func (b *Bus) run(ctx context.Context, peerID string) {
	ps := b.rdb.Subscribe(ctx, channelFor(peerID))
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok { // Redis connection closed.
				return
			}
			b.receive(peerID, m)
		}
	}
}

// receive hands a message published for peerID to the local connection.
func (b *Bus) receive(peerID string, m *redis.Message) {
	if !b.deliver(peerID, json.RawMessage(m.Payload)) {
		zap.L().Debug("peerbus.stale_subscription",
			zap.String("peer", peerID),
			zap.String("channel", m.Channel))
	}
}

// Unsubscribe decrements the ref‑counter and tears the Redis SUB down when the
// last local connection for the peer is gone.
func (b *Bus) Unsubscribe(peerID string) {
	b.mu.Lock()
	e, ok := b.subs[peerID]
	if !ok {
		b.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.subs, peerID)
	b.mu.Unlock()

	// Outside the lock → stop the fan‑out goroutine.
	e.cancel()
}

// Subscribed reports whether the process currently listens for peerID.
func (b *Bus) Subscribed(peerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[peerID]
	return ok
}
