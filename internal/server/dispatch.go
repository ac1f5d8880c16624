package server

import (
	"context"
	"encoding/json"
)

// Dispatch decodes one inbound WebSocket message from p and routes it to its
// handler. Failures are reported to p; Dispatch itself never panics.
func (c *Coordinator) Dispatch(ctx context.Context, p Peer, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		c.logger.Debug("invalid frame", "conn", peerID(p), "error", err)
		c.rooms.Unicast(p, EventError, ErrorPayload{Message: ReasonInvalidFrame, Details: err.Error()})
		return
	}
	c.Route(ctx, p, frame)
}

// Route runs the handler for a decoded frame. If the frame carries an ack id
// exactly one ack frame is sent back to p.
func (c *Coordinator) Route(ctx context.Context, p Peer, f Frame) {
	done := newCompletion(c.ackTo(p, f.Ack))
	c.guard(p, f.Event, done, func() error {
		return c.route(ctx, p, f, done)
	})
}

func (c *Coordinator) route(ctx context.Context, p Peer, f Frame, done *completion) error {
	switch f.Event {
	case EventJoin, EventLeave, EventTypingStart, EventTypingStop:
		var in UserPayload
		if err := decodeData(f.Data, &in); err != nil {
			c.invalidPayload(p, f.Event, err, done)
			return nil
		}

		var ok bool
		switch f.Event {
		case EventJoin:
			ok = c.Join(p, in.Username)
		case EventLeave:
			ok = c.Leave(p, in.Username)
		case EventTypingStart:
			ok = c.Typing(p, in.Username, true)
		case EventTypingStop:
			ok = c.Typing(p, in.Username, false)
		}
		done.complete(Result{Success: ok})

	case EventSendMessage:
		var in SendMessagePayload
		if err := decodeData(f.Data, &in); err != nil {
			c.invalidPayload(p, f.Event, err, done)
			return nil
		}
		c.SendMessage(ctx, p, in, done.complete)

	case EventGetMessageHistory:
		var in HistoryRequest
		if err := decodeData(f.Data, &in); err != nil {
			c.invalidPayload(p, f.Event, err, done)
			return nil
		}
		c.History(ctx, p, in, done.complete)

	case EventPing:
		c.Ping(done.complete)

	default:
		// connect and disconnect are raised by the hub, never by clients.
		c.logger.Debug("unknown event", "event", f.Event, "conn", peerID(p))
		c.rooms.Unicast(p, EventError, ErrorPayload{Message: ReasonUnknownEvent, Details: f.Event})
		done.complete(Result{Error: ReasonUnknownEvent})
	}
	return nil
}

// Reject answers a frame the transport refused to process, for example
// because of rate limiting.
func (c *Coordinator) Reject(p Peer, raw []byte, reason string) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Debug("rejected frame is not valid json", "conn", peerID(p), "reason", reason, "error", err)
	}

	c.rooms.Unicast(p, EventError, ErrorPayload{Message: reason, Details: f.Event})
	newCompletion(c.ackTo(p, f.Ack)).complete(Result{Error: reason})
}

func (c *Coordinator) invalidPayload(p Peer, event string, err error, done *completion) {
	c.logger.Debug("invalid payload", "event", event, "conn", peerID(p), "error", err)
	c.rooms.Unicast(p, EventError, ErrorPayload{Message: ReasonInvalidPayload, Details: event})
	done.complete(Result{Error: ReasonInvalidPayload})
}

// ackTo returns the completion that answers ack id on p, or nil when the
// frame did not ask for one.
func (c *Coordinator) ackTo(p Peer, id *int64) Completion {
	if id == nil {
		return nil
	}
	ackID := *id
	return func(result any) {
		frame, err := encodeFrame(EventAck, &ackID, result)
		if err != nil {
			c.logger.Error("failed to encode ack", "ack", ackID, "error", err)
			return
		}
		if !p.Send(frame) {
			c.logger.Debug("dropped ack to stale connection", "ack", ackID, "conn", peerID(p))
		}
	}
}
