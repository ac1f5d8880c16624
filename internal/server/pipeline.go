package server

import (
	"context"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/store"
)

// SendMessage runs one chat message through validation, persistence,
// acknowledgment and broadcast, then confirms delivery to the sender's current
// connection. done receives exactly one SendResult.
//
// A message that fails validation or cannot be stored is never broadcast.
func (c *Coordinator) SendMessage(ctx context.Context, p Peer, in SendMessagePayload, done Completion) {
	comp := newCompletion(done)
	c.guard(p, EventSendMessage, comp, func() error {
		return c.sendMessage(ctx, p, in, comp)
	})
}

func (c *Coordinator) sendMessage(ctx context.Context, p Peer, in SendMessagePayload, done *completion) error {
	username := strings.TrimSpace(in.Username)
	if username == "" || strings.TrimSpace(in.Text) == "" {
		c.logger.Debug("rejected message", "conn", peerID(p), "reason", ReasonMissingFields)
		done.complete(SendResult{Error: ReasonMissingFields})
		return nil
	}

	msg := store.Message{
		ClientID:  in.ID,
		Username:  username,
		Text:      in.Text,
		Timestamp: c.messageTime(in.Timestamp),
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	id, err := c.store.Insert(storeCtx, msg)
	cancel()
	if err != nil {
		c.logger.Error("failed to persist message", "username", username, "conn", peerID(p), "error", err)
		done.complete(SendResult{Error: ReasonDatabase})
		return nil
	}
	msg.ID = id
	out := toChatMessage(msg)

	done.complete(SendResult{
		Success:   true,
		MessageID: out.ID,
		DBID:      out.StoreID,
		Timestamp: out.Timestamp,
	})

	recipients := c.rooms.Broadcast(c.room, EventReceiveMessage, out, nil)
	c.logger.Debug("message broadcast", "store_id", id, "username", username, "recipients", recipients)

	c.confirmDelivery(username, out)
	return nil
}

// confirmDelivery tells the sender's current connection that msg went out.
// The sender may have re-joined elsewhere or left; neither is an error.
func (c *Coordinator) confirmDelivery(username string, msg ChatMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("delivery confirmation failed", "username", username, "panic", r)
		}
	}()

	sender, ok := c.presence.Lookup(username)
	if !ok {
		return
	}
	c.rooms.Unicast(sender, EventMessageDelivered, DeliveredPayload{
		MessageID: msg.ID,
		DBID:      msg.StoreID,
		Timestamp: msg.Timestamp,
	})
}

// History answers get_message_history with the newest messages, oldest first.
func (c *Coordinator) History(ctx context.Context, p Peer, in HistoryRequest, done Completion) {
	comp := newCompletion(done)
	c.guard(p, EventGetMessageHistory, comp, func() error {
		msgs, err := c.RecentMessages(ctx, c.historyLimit(in.Limit))
		if err != nil {
			c.logger.Error("failed to load message history", "conn", peerID(p), "error", err)
			comp.complete(HistoryResult{Messages: []ChatMessage{}, Error: ReasonDatabase})
			return nil
		}
		comp.complete(HistoryResult{Success: true, Messages: msgs, Count: len(msgs)})
		return nil
	})
}

// RecentMessages returns the newest limit messages ordered oldest to newest.
// A non-positive limit returns every stored message.
func (c *Coordinator) RecentMessages(ctx context.Context, limit int) ([]ChatMessage, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	msgs, err := store.Latest(storeCtx, c.store, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toChatMessage(m))
	}
	return out, nil
}

func (c *Coordinator) historyLimit(requested *int) int {
	if requested == nil || *requested <= 0 {
		return c.history.DefaultLimit
	}
	if *requested > c.history.MaxLimit {
		return c.history.MaxLimit
	}
	return *requested
}

// messageTime resolves the instant of a message: a parseable client timestamp
// normalized to UTC, otherwise the server clock.
func (c *Coordinator) messageTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if t, ok := parseTimestamp(raw); ok {
			return t
		}
		c.logger.Debug("ignoring unparseable client timestamp", "timestamp", raw)
	}
	return c.now().UTC().Truncate(time.Microsecond)
}

func parseTimestamp(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC().Truncate(time.Microsecond), true
	}
	// ISO-8601 without an offset is read as UTC.
	if t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", raw, time.UTC); err == nil {
		return t.Truncate(time.Microsecond), true
	}
	return time.Time{}, false
}

func toChatMessage(m store.Message) ChatMessage {
	return ChatMessage{
		ID:        m.ClientID,
		Username:  m.Username,
		Text:      m.Text,
		Timestamp: formatTimestamp(m.Timestamp),
		StoreID:   m.ID,
	}
}
