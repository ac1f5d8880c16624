package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/store"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)

const testNowString = "2024-05-01T12:00:00.123456Z"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePeer records every frame sent to it.
type fakePeer struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	closed bool
}

func newPeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(b []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		panic(fmt.Sprintf("peer %s received invalid frame %q: %v", p.id, b, err))
	}
	p.frames = append(p.frames, f)
	return true
}

func (p *fakePeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) all() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Frame(nil), p.frames...)
}

func (p *fakePeer) events() []string {
	var out []string
	for _, f := range p.all() {
		out = append(out, f.Event)
	}
	return out
}

func (p *fakePeer) framesFor(event string) []Frame {
	var out []Frame
	for _, f := range p.all() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func decodeAs[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "data: %s", data)
	return v
}

// fakeStore is an in-memory MessageStore with injectable failures.
type fakeStore struct {
	mu            sync.Mutex
	msgs          []store.Message
	inserts       int
	insertErr     error
	queryErr      error
	panicOnInsert bool
}

func (s *fakeStore) Insert(_ context.Context, msg store.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inserts++
	if s.panicOnInsert {
		panic("store exploded")
	}
	if s.insertErr != nil {
		return "", s.insertErr
	}
	msg.ID = fmt.Sprintf("id-%d", len(s.msgs)+1)
	s.msgs = append(s.msgs, msg)
	return msg.ID, nil
}

func (s *fakeStore) Query(_ context.Context, q store.Query) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := append([]store.Message(nil), s.msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		if q.Order == store.Descending {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func newTestCoordinator(t *testing.T, st store.MessageStore) *Coordinator {
	t.Helper()
	c := NewCoordinator(config.Default(), st, discardLogger())
	c.now = func() time.Time { return testNow }
	return c
}

// newLoggedCoordinator is newTestCoordinator with debug logs captured in buf.
func newLoggedCoordinator(t *testing.T, st store.MessageStore) (*Coordinator, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewCoordinator(config.Default(), st, logger)
	c.now = func() time.Time { return testNow }
	return c, buf
}

// results collects completion results.
type results struct {
	mu  sync.Mutex
	got []any
}

func (r *results) done(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
}

func (r *results) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.got...)
}

func ackID(id int64) *int64 { return &id }

func rawFrame(t *testing.T, event string, ack *int64, data any) []byte {
	t.Helper()
	b, err := encodeFrame(event, ack, data)
	require.NoError(t, err)
	return b
}
