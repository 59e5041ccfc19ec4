package peerbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDeliver(string, json.RawMessage) bool { return false }

func TestForwardPublishesOnPeerChannel(t *testing.T) {
	db, mock := redismock.NewClientMock()
	bus := New(context.Background(), db, noDeliver)

	mock.ExpectPublish("relay:peer:p2", `{"to":"p2","sdp":"x"}`).SetVal(1)
	mock.ExpectPublish("relay:peer:gone", `{}`).SetVal(0)

	require.NoError(t, bus.Forward(context.Background(), "p2", json.RawMessage(`{"to":"p2","sdp":"x"}`)))
	require.NoError(t, bus.Forward(context.Background(), "gone", json.RawMessage(`{}`)), "no subscriber is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForwardReportsRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	bus := New(context.Background(), db, noDeliver)

	mock.ExpectPublish("relay:peer:p2", `{}`).SetErr(errors.New("connection refused"))

	assert.Error(t, bus.Forward(context.Background(), "p2", json.RawMessage(`{}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionsAreRefCounted(t *testing.T) {
	// a cancelled root keeps the fan-out goroutines from talking to Redis
	root, cancel := context.WithCancel(context.Background())
	cancel()

	db, _ := redismock.NewClientMock()
	bus := New(root, db, noDeliver)

	bus.PeerIdentified("p1")
	bus.PeerIdentified("p1")
	assert.True(t, bus.Subscribed("p1"))

	bus.PeerLeft("p1")
	assert.True(t, bus.Subscribed("p1"), "one local connection still uses the peer id")

	bus.PeerLeft("p1")
	assert.False(t, bus.Subscribed("p1"))

	bus.Unsubscribe("never")
	assert.False(t, bus.Subscribed("never"))
}

func TestReceiveDeliversPayloadUnchanged(t *testing.T) {
	type delivery struct {
		to      string
		payload string
	}
	var got []delivery
	deliver := func(to string, payload json.RawMessage) bool {
		got = append(got, delivery{to, string(payload)})
		return to == "p1"
	}

	db, _ := redismock.NewClientMock()
	bus := New(context.Background(), db, deliver)

	payload := `{"to":"p1",  "sdp":"<offer> & more"}`
	bus.receive("p1", &redis.Message{Channel: "relay:peer:p1", Payload: payload})
	bus.receive("gone", &redis.Message{Channel: "relay:peer:gone", Payload: `{}`})

	assert.Equal(t, []delivery{{"p1", payload}, {"gone", `{}`}}, got)
}
