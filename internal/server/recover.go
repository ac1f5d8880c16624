package server

import (
	"runtime/debug"
)

// guard runs fn as the handler of event for p. A panic or returned error is
// logged, answered with a server error if the completion is still pending,
// and surfaced to p as an error event. Nothing escapes to the caller.
func (c *Coordinator) guard(p Peer, event string, done *completion, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked",
				"event", event,
				"conn", peerID(p),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			c.fail(p, event, done)
		}
	}()

	if err := fn(); err != nil {
		c.logger.Error("event handler failed", "event", event, "conn", peerID(p), "error", err)
		c.fail(p, event, done)
	}
}

func (c *Coordinator) fail(p Peer, event string, done *completion) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("failed to report handler failure", "event", event, "conn", peerID(p), "panic", r)
		}
	}()

	if done != nil && done.pending() {
		done.complete(Result{Error: ReasonServer})
	}
	if p != nil {
		c.rooms.Unicast(p, EventError, ErrorPayload{Message: ReasonServer, Details: event})
	}
}

func peerID(p Peer) string {
	if p == nil {
		return ""
	}
	return p.ID()
}
