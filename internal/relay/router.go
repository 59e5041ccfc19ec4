package relay

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Forwarder carries a signal to a peer that is not connected to this process.
type Forwarder interface {
	Forward(ctx context.Context, to string, payload json.RawMessage) error
}

// Router forwards addressed signaling payloads between identified peers. The
// payload is never inspected beyond its recipient.
type Router struct {
	registry  *Registry
	forwarder Forwarder
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// WithForwarder installs f for recipients unknown to this process.
func (r *Router) WithForwarder(f Forwarder) *Router {
	r.forwarder = f
	return r
}

// Route delivers payload to the peer named to. Delivery is best effort: an
// unknown or departed recipient is not an error for the sender.
func (r *Router) Route(ctx context.Context, sender *Participant, to string, payload json.RawMessage) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrMissingTarget
	}
	switch sender.State() {
	case StateLeft:
		return ErrParticipantLeft
	case StateConnected:
		return ErrNotJoined
	}

	if r.DeliverLocal(to, payload) {
		return nil
	}
	if r.forwarder != nil {
		if err := r.forwarder.Forward(ctx, to, payload); err != nil {
			zap.L().Warn("signal.forward_failed", zap.String("to", to), zap.Error(err))
		}
		return nil
	}
	zap.L().Debug("signal.unknown_recipient",
		zap.String("from", sender.PeerID()),
		zap.String("to", to))
	return nil
}

// DeliverLocal hands payload to a recipient connected to this process. It
// reports whether such a live recipient exists; a recipient whose outbox is
// full still counts as found and the payload is dropped.
func (r *Router) DeliverLocal(to string, payload json.RawMessage) bool {
	p, ok := r.registry.LookupPeer(to)
	if !ok {
		return false
	}
	if p.State() == StateLeft {
		return false
	}
	if !p.deliver(Event{Kind: EventSignal, PeerID: to, Payload: payload}) {
		zap.L().Debug("signal.dropped", zap.String("to", to))
	}
	return true
}
