package server

import "strings"

// Typing relays a typing indicator for username to the rest of the room.
// Nothing is stored or acknowledged; a lost signal is acceptable.
func (c *Coordinator) Typing(p Peer, username string, typing bool) bool {
	name := strings.TrimSpace(username)
	if name == "" {
		return false
	}
	c.rooms.Broadcast(c.room, EventUserTyping, TypingPayload{Username: name, Typing: typing}, p)
	return true
}

// Ping answers with the server time.
func (c *Coordinator) Ping(done Completion) {
	newCompletion(done).complete(PongResult{Pong: true, Timestamp: formatTimestamp(c.now())})
}
