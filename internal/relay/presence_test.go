package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(queue int) *Coordinator {
	return NewCoordinator(NewRegistry(queue), NewDirectory())
}

// drain returns whatever is queued for p without blocking.
func drain(p *Participant) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-p.outbox:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(evs []Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind+":"+ev.PeerID)
	}
	return out
}

func TestPresenceScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a := c.Registry().Register(nil)
	b := c.Registry().Register(nil)

	others, err := c.Join(ctx, a, "abc123", "p1")
	require.NoError(t, err)
	assert.Empty(t, others)
	evs := drain(a)
	require.Len(t, evs, 1)
	assert.Equal(t, EventRoomJoined, evs[0].Kind)
	assert.Empty(t, evs[0].Members)

	others, err = c.Join(ctx, b, "abc123", "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, others)
	assert.Equal(t, []string{EventRoomJoined + ":p2"}, kinds(drain(b)))
	assert.Equal(t, []string{EventUserConnected + ":p2"}, kinds(drain(a)))

	c.Disconnect(b)
	assert.Equal(t, []string{EventUserDisconnected + ":p2"}, kinds(drain(a)))
	assert.Equal(t, []string{"p1"}, c.MembersOf("abc123"))
	assert.Equal(t, StateLeft, b.State())
	assert.Equal(t, StateInRoom, a.State())
}

func TestPresenceJoinNotifiesEachExistingMemberOnce(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a, b, cc := c.Registry().Register(nil), c.Registry().Register(nil), c.Registry().Register(nil)

	_, err := c.Join(ctx, b, "r", "B")
	require.NoError(t, err)
	_, err = c.Join(ctx, cc, "r", "C")
	require.NoError(t, err)
	drain(b)
	drain(cc)

	others, err := c.Join(ctx, a, "r", "A")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B", "C"}, others)

	evs := drain(a)
	require.Len(t, evs, 1)
	assert.ElementsMatch(t, []string{"B", "C"}, evs[0].Members)

	assert.Equal(t, []string{EventUserConnected + ":A"}, kinds(drain(b)))
	assert.Equal(t, []string{EventUserConnected + ":A"}, kinds(drain(cc)))
}

func TestPresenceDisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a, b := c.Registry().Register(nil), c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r", "A")
	_, _ = c.Join(ctx, b, "r", "B")
	drain(a)

	c.Disconnect(b)
	c.Disconnect(b)

	assert.Equal(t, []string{EventUserDisconnected + ":B"}, kinds(drain(a)))
	assert.Equal(t, []string{"A"}, c.MembersOf("r"))
	_, ok := c.Registry().Lookup(b.Handle())
	assert.False(t, ok)
}

func TestPresenceDuplicateJoinIsNoop(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a, b := c.Registry().Register(nil), c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r", "A")
	_, _ = c.Join(ctx, b, "r", "B")
	drain(a)
	drain(b)

	others, err := c.Join(ctx, b, "r", "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, others)
	assert.Empty(t, drain(a), "no second user-connected")
	assert.Equal(t, []string{EventRoomJoined + ":B"}, kinds(drain(b)))
	assert.Equal(t, []string{"A", "B"}, c.MembersOf("r"))
}

func TestPresenceRejectsSecondRoom(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a := c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r1", "A")

	_, err := c.Join(ctx, a, "r2", "A")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	_, err = c.Join(ctx, a, "r1", "other")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	assert.Equal(t, []string{"A"}, c.MembersOf("r1"))
	assert.Empty(t, c.MembersOf("r2"))
}

func TestPresenceMalformedJoin(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a := c.Registry().Register(nil)

	_, err := c.Join(ctx, a, "", "A")
	assert.ErrorIs(t, err, ErrMalformedJoin)
	_, err = c.Join(ctx, a, "r", "  ")
	assert.ErrorIs(t, err, ErrMalformedJoin)
	assert.Equal(t, StateConnected, a.State())

	// the connection may retry
	_, err = c.Join(ctx, a, "r", "A")
	assert.NoError(t, err)
}

func TestPresencePeerIDInUse(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a, b := c.Registry().Register(nil), c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r", "A")

	_, err := c.Join(ctx, b, "r", "A")
	assert.ErrorIs(t, err, ErrPeerIDInUse)
	assert.Equal(t, StateConnected, b.State())
	assert.Equal(t, []string{"A"}, c.MembersOf("r"))
}

func TestPresenceOrdering(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	obs := c.Registry().Register(nil)
	_, _ = c.Join(ctx, obs, "r", "O")
	drain(obs)

	for _, id := range []string{"C", "D", "E"} {
		_, err := c.Join(ctx, c.Registry().Register(nil), "r", id)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		EventUserConnected + ":C",
		EventUserConnected + ":D",
		EventUserConnected + ":E",
	}, kinds(drain(obs)))
}

func TestPresenceJoinAfterDisconnect(t *testing.T) {
	c := newTestCoordinator(16)
	a := c.Registry().Register(nil)
	c.Disconnect(a)

	_, err := c.Join(context.Background(), a, "r", "A")
	assert.ErrorIs(t, err, ErrParticipantLeft)
	assert.Empty(t, c.MembersOf("r"))
}

// A disconnect racing a join leaves no membership behind and the observer
// either hears nothing or a matched connected/disconnected pair.
func TestPresenceDisconnectRacingJoin(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(1024)
	obs := c.Registry().Register(nil)
	_, _ = c.Join(ctx, obs, "r", "O")
	drain(obs)

	for i := 0; i < 200; i++ {
		p := c.Registry().Register(nil)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = c.Join(ctx, p, "r", "X") }()
		go func() { defer wg.Done(); c.Disconnect(p) }()
		wg.Wait()

		require.Equal(t, []string{"O"}, c.MembersOf("r"))
		evs := kinds(drain(obs))
		if len(evs) > 0 {
			require.Equal(t, []string{EventUserConnected + ":X", EventUserDisconnected + ":X"}, evs)
		}
	}
}

func TestPresenceSlowMemberIsEvicted(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(1)

	evicted := make(chan struct{})
	slow := c.Registry().Register(func() { close(evicted) })
	_, _ = c.Join(ctx, slow, "r", "S") // fills the single slot with room-joined

	fast := c.Registry().Register(nil)
	_, err := c.Join(ctx, fast, "r", "F")
	require.NoError(t, err, "a full member must not block the joiner")

	select {
	case <-evicted:
	case <-time.After(time.Second):
		t.Fatal("overflow hook not called")
	}
}

func TestPresenceSlowMemberDoesNotDelayOthers(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(2)

	other := c.Registry().Register(nil)
	_, _ = c.Join(ctx, other, "r", "O")
	drain(other)

	evicted := make(chan struct{})
	slow := c.Registry().Register(func() { close(evicted) })
	_, _ = c.Join(ctx, slow, "r", "S")
	require.True(t, slow.Notify(Event{Kind: EventSignal, PeerID: "S"}))
	require.False(t, slow.Notify(Event{Kind: EventSignal, PeerID: "S"}), "outbox should be full")
	<-evicted
	assert.Equal(t, []string{EventUserConnected + ":S"}, kinds(drain(other)))

	fast := c.Registry().Register(nil)
	others, err := c.Join(ctx, fast, "r", "F")
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "S"}, others)

	assert.Equal(t, []string{EventUserConnected + ":F"}, kinds(drain(other)))
	assert.Equal(t, []string{EventRoomJoined + ":F"}, kinds(drain(fast)))
	assert.Len(t, drain(slow), 2, "nothing more reached the stalled member")
}

func TestPresenceMixedEventsKeepOrder(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	obs := c.Registry().Register(nil)
	_, _ = c.Join(ctx, obs, "r", "O")
	drain(obs)

	a, b, d := c.Registry().Register(nil), c.Registry().Register(nil), c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r", "A")
	_, _ = c.Join(ctx, b, "r", "B")
	c.Disconnect(a)
	_, _ = c.Join(ctx, d, "r", "D")
	c.Disconnect(b)
	c.Disconnect(d)

	assert.Equal(t, []string{
		EventUserConnected + ":A",
		EventUserConnected + ":B",
		EventUserDisconnected + ":A",
		EventUserConnected + ":D",
		EventUserDisconnected + ":B",
		EventUserDisconnected + ":D",
	}, kinds(drain(obs)))
}

// Under concurrent churn every member hears each peer connect exactly once,
// and always before it disconnects.
func TestPresenceConcurrentChurnKeepsOrder(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(1024)
	obs := c.Registry().Register(nil)
	_, _ = c.Join(ctx, obs, "r", "O")
	drain(obs)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			p := c.Registry().Register(nil)
			_, err := c.Join(ctx, p, "r", id)
			assert.NoError(t, err)
			c.Disconnect(p)
		}(fmt.Sprintf("X%d", i))
	}
	wg.Wait()

	connectedAt := map[string]int{}
	disconnectedAt := map[string]int{}
	for i, ev := range drain(obs) {
		switch ev.Kind {
		case EventUserConnected:
			_, dup := connectedAt[ev.PeerID]
			require.False(t, dup, ev.PeerID)
			connectedAt[ev.PeerID] = i
		case EventUserDisconnected:
			_, dup := disconnectedAt[ev.PeerID]
			require.False(t, dup, ev.PeerID)
			disconnectedAt[ev.PeerID] = i
		}
	}
	require.Len(t, connectedAt, n)
	require.Len(t, disconnectedAt, n)
	for id, at := range connectedAt {
		assert.Less(t, at, disconnectedAt[id], id)
	}
	assert.Equal(t, []string{"O"}, c.MembersOf("r"))
}

func TestNotifyQueuesBehindPresence(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(16)
	a, b := c.Registry().Register(nil), c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r", "A")
	drain(a)
	_, _ = c.Join(ctx, b, "r", "B")

	require.True(t, a.Notify(Event{Kind: EventError, Code: ErrMissingTarget.Error()}))
	evs := drain(a)
	assert.Equal(t, []string{EventUserConnected + ":B", EventError + ":"}, kinds(evs))
	assert.Equal(t, "missing_recipient", evs[1].Code)

	c.Disconnect(a)
	assert.False(t, a.Notify(Event{Kind: EventError}), "nothing is queued after leave")
}

type recordingHook struct {
	mu         sync.Mutex
	identified []string
	left       []string
}

func (h *recordingHook) PeerIdentified(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identified = append(h.identified, id)
}

func (h *recordingHook) PeerLeft(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, id)
}

func TestPresenceHook(t *testing.T) {
	hook := &recordingHook{}
	c := newTestCoordinator(4).WithHook(hook)
	a, b := c.Registry().Register(nil), c.Registry().Register(nil)

	_, _ = c.Join(context.Background(), a, "r", "A")
	c.Disconnect(a)
	c.Disconnect(a)
	c.Disconnect(b) // never identified

	assert.Equal(t, []string{"A"}, hook.identified)
	assert.Equal(t, []string{"A"}, hook.left)
}

func TestPresenceShutdown(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(4)
	a, b := c.Registry().Register(nil), c.Registry().Register(nil)
	_, _ = c.Join(ctx, a, "r", "A")
	_, _ = c.Join(ctx, b, "r", "B")

	c.Shutdown()

	assert.Empty(t, c.MembersOf("r"))
	assert.Zero(t, c.Registry().Len())
	assert.Equal(t, StateLeft, a.State())
	assert.Equal(t, StateLeft, b.State())
}
