package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/store"
)

func joinedPair(t *testing.T, c *Coordinator) (alice, bob *fakePeer) {
	t.Helper()
	alice, bob = newPeer("c1"), newPeer("c2")
	require.True(t, c.Join(alice, "alice"))
	require.True(t, c.Join(bob, "bob"))
	alice.reset()
	bob.reset()
	return alice, bob
}

func TestSendMessageDeliversToRoom(t *testing.T) {
	st := &fakeStore{}
	c := newTestCoordinator(t, st)
	alice, bob := joinedPair(t, c)

	var res results
	c.SendMessage(context.Background(), alice, SendMessagePayload{ID: "m1", Username: "alice", Text: "hi"}, res.done)

	require.Len(t, res.all(), 1)
	assert.Equal(t, SendResult{
		Success:   true,
		MessageID: "m1",
		DBID:      "id-1",
		Timestamp: testNowString,
	}, res.all()[0])

	want := ChatMessage{ID: "m1", Username: "alice", Text: "hi", Timestamp: testNowString, StoreID: "id-1"}
	for _, p := range []*fakePeer{alice, bob} {
		frames := p.framesFor(EventReceiveMessage)
		require.Len(t, frames, 1, "peer %s", p.ID())
		assert.Equal(t, want, decodeAs[ChatMessage](t, frames[0].Data))
	}

	assert.Equal(t, []string{EventReceiveMessage, EventMessageDelivered}, alice.events())
	delivered := decodeAs[DeliveredPayload](t, alice.framesFor(EventMessageDelivered)[0].Data)
	assert.Equal(t, DeliveredPayload{MessageID: "m1", DBID: "id-1", Timestamp: testNowString}, delivered)
	assert.Empty(t, bob.framesFor(EventMessageDelivered))

	require.Equal(t, 1, st.count())
	assert.Equal(t, testNow.Truncate(time.Microsecond), st.msgs[0].Timestamp)
}

func TestSendMessageRejectsMissingFields(t *testing.T) {
	cases := map[string]SendMessagePayload{
		"empty username":      {Text: "hi"},
		"blank username":      {Username: "  ", Text: "hi"},
		"empty text":          {Username: "alice"},
		"whitespace text":     {Username: "alice", Text: " \t\n"},
		"both fields missing": {},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			st := &fakeStore{}
			c := newTestCoordinator(t, st)
			alice, bob := joinedPair(t, c)

			var res results
			c.SendMessage(context.Background(), alice, in, res.done)

			assert.Equal(t, []any{SendResult{Error: ReasonMissingFields}}, res.all())
			assert.Zero(t, st.inserts)
			assert.Empty(t, alice.all())
			assert.Empty(t, bob.all())
		})
	}
}

func TestSendMessageStoreFailure(t *testing.T) {
	st := &fakeStore{insertErr: errors.New("disk full")}
	c := newTestCoordinator(t, st)
	alice, bob := joinedPair(t, c)

	var res results
	c.SendMessage(context.Background(), alice, SendMessagePayload{Username: "alice", Text: "hi"}, res.done)

	assert.Equal(t, []any{SendResult{Error: ReasonDatabase}}, res.all())
	assert.Empty(t, alice.all())
	assert.Empty(t, bob.all())
}

func TestSendMessageStorePanicIsContained(t *testing.T) {
	st := &fakeStore{panicOnInsert: true}
	c := newTestCoordinator(t, st)
	alice, bob := joinedPair(t, c)

	var res results
	require.NotPanics(t, func() {
		c.SendMessage(context.Background(), alice, SendMessagePayload{Username: "alice", Text: "hi"}, res.done)
	})

	assert.Equal(t, []any{Result{Error: ReasonServer}}, res.all())
	errs := alice.framesFor(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorPayload{Message: ReasonServer, Details: EventSendMessage}, decodeAs[ErrorPayload](t, errs[0].Data))
	assert.Empty(t, alice.framesFor(EventReceiveMessage))
	assert.Empty(t, bob.all())

	// The coordinator keeps serving after the failure.
	st.panicOnInsert = false
	c.SendMessage(context.Background(), alice, SendMessagePayload{Username: "alice", Text: "again"}, res.done)
	require.Len(t, res.all(), 2)
	assert.True(t, res.all()[1].(SendResult).Success)
	assert.Len(t, bob.framesFor(EventReceiveMessage), 1)
}

func TestSendMessageWithoutCompletion(t *testing.T) {
	c := newTestCoordinator(t, &fakeStore{})
	alice, bob := joinedPair(t, c)

	require.NotPanics(t, func() {
		c.SendMessage(context.Background(), alice, SendMessagePayload{Username: "alice", Text: "hi"}, nil)
	})
	assert.Len(t, bob.framesFor(EventReceiveMessage), 1)
}

func TestSendMessageConfirmsToCurrentConnection(t *testing.T) {
	c := newTestCoordinator(t, &fakeStore{})
	old, bob := joinedPair(t, c)
	current := newPeer("c3")
	require.True(t, c.Join(current, "alice"))
	current.reset()

	c.SendMessage(context.Background(), old, SendMessagePayload{Username: "alice", Text: "hi"}, nil)

	assert.Empty(t, old.framesFor(EventMessageDelivered))
	assert.Len(t, current.framesFor(EventMessageDelivered), 1)
	assert.Len(t, bob.framesFor(EventReceiveMessage), 1)
}

func TestSendMessageFromUnregisteredSender(t *testing.T) {
	c := newTestCoordinator(t, &fakeStore{})
	_, bob := joinedPair(t, c)
	ghost := newPeer("c9")

	var res results
	c.SendMessage(context.Background(), ghost, SendMessagePayload{Username: "ghost", Text: "boo"}, res.done)

	require.Len(t, res.all(), 1)
	assert.True(t, res.all()[0].(SendResult).Success)
	assert.Len(t, bob.framesFor(EventReceiveMessage), 1)
	assert.Empty(t, ghost.all(), "not a room member and no delivery confirmation")
}

func TestSendMessageTimestamps(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "absent", in: "", want: testNowString},
		{name: "utc", in: "2024-01-02T03:04:05.678Z", want: "2024-01-02T03:04:05.678000Z"},
		{name: "offset", in: "2024-05-01T14:00:00+02:00", want: "2024-05-01T12:00:00.000000Z"},
		{name: "no zone", in: "2024-05-01T09:30:00.5", want: "2024-05-01T09:30:00.500000Z"},
		{name: "nanoseconds truncated", in: "2024-05-01T09:30:00.123456789Z", want: "2024-05-01T09:30:00.123456Z"},
		{name: "garbage", in: "yesterday", want: testNowString},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCoordinator(t, &fakeStore{})
			alice, _ := joinedPair(t, c)

			var res results
			c.SendMessage(context.Background(), alice, SendMessagePayload{Username: "alice", Text: "hi", Timestamp: tc.in}, res.done)

			require.Len(t, res.all(), 1)
			assert.Equal(t, tc.want, res.all()[0].(SendResult).Timestamp)
		})
	}
}

func seedMessages(st *fakeStore, base time.Time, texts ...string) {
	for i, text := range texts {
		st.msgs = append(st.msgs, store.Message{
			ID:        "seed-" + text,
			Username:  "alice",
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func TestHistoryReturnsNewestOldestFirst(t *testing.T) {
	st := &fakeStore{}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.msgs = []store.Message{
		{ID: "3", Username: "alice", Text: "t3", Timestamp: base.Add(3 * time.Minute)},
		{ID: "1", Username: "alice", Text: "t1", Timestamp: base.Add(1 * time.Minute)},
		{ID: "2", Username: "bob", Text: "t2", Timestamp: base.Add(2 * time.Minute)},
	}
	c := newTestCoordinator(t, st)
	p := newPeer("c1")

	limit := 2
	var res results
	c.History(context.Background(), p, HistoryRequest{Limit: &limit}, res.done)

	require.Len(t, res.all(), 1)
	got := res.all()[0].(HistoryResult)
	assert.True(t, got.Success)
	assert.Equal(t, 2, got.Count)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "t2", got.Messages[0].Text)
	assert.Equal(t, "2", got.Messages[0].StoreID)
	assert.Equal(t, "t3", got.Messages[1].Text)
	assert.Empty(t, p.all(), "history is only returned through the completion")
}

func TestHistoryLimits(t *testing.T) {
	st := &fakeStore{}
	texts := make([]string, 600)
	for i := range texts {
		texts[i] = time.Duration(i).String()
	}
	seedMessages(st, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), texts...)
	c := newTestCoordinator(t, st)

	intPtr := func(v int) *int { return &v }
	cases := []struct {
		name  string
		limit *int
		want  int
	}{
		{name: "default", limit: nil, want: 50},
		{name: "zero falls back to default", limit: intPtr(0), want: 50},
		{name: "negative falls back to default", limit: intPtr(-3), want: 50},
		{name: "explicit", limit: intPtr(7), want: 7},
		{name: "capped", limit: intPtr(10000), want: 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res results
			c.History(context.Background(), newPeer("c1"), HistoryRequest{Limit: tc.limit}, res.done)

			got := res.all()[0].(HistoryResult)
			assert.Equal(t, tc.want, got.Count)
			assert.Equal(t, texts[len(texts)-1], got.Messages[len(got.Messages)-1].Text)
		})
	}
}

func TestHistoryStoreFailure(t *testing.T) {
	c := newTestCoordinator(t, &fakeStore{queryErr: errors.New("connection reset")})

	var res results
	c.History(context.Background(), newPeer("c1"), HistoryRequest{}, res.done)

	require.Len(t, res.all(), 1)
	got := res.all()[0].(HistoryResult)
	assert.False(t, got.Success)
	assert.Equal(t, ReasonDatabase, got.Error)
	assert.NotNil(t, got.Messages)
}

func TestRecentMessagesWithoutLimit(t *testing.T) {
	st := &fakeStore{}
	seedMessages(st, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "a", "b", "c")
	c := newTestCoordinator(t, st)

	msgs, err := c.RecentMessages(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "2024-01-01T00:00:00.000000Z", msgs[0].Timestamp)
	assert.Equal(t, "c", msgs[2].Text)
}

func TestPingReportsServerTime(t *testing.T) {
	c := newTestCoordinator(t, &fakeStore{})

	var res results
	c.Ping(res.done)

	assert.Equal(t, []any{PongResult{Pong: true, Timestamp: testNowString}}, res.all())
}
