package server

import "strings"

// Connect greets a newly accepted connection.
func (c *Coordinator) Connect(p Peer) {
	c.logger.Info("client connected", "conn", p.ID())
	c.rooms.Unicast(p, EventConnectionStatus, StatusPayload{Status: "connected"})
}

// Join registers username on p, adds p to the room, announces the joiner to
// everyone else and confirms to the joiner. An empty username is ignored.
func (c *Coordinator) Join(p Peer, username string) bool {
	name := strings.TrimSpace(username)
	if name == "" {
		return false
	}

	previous := c.join(name, p)
	if previous != nil && previous != p {
		c.logger.Info("identity re-joined on new connection", "username", name, "conn", p.ID(), "previous", previous.ID())
	} else {
		c.logger.Info("user joined", "username", name, "conn", p.ID())
	}

	c.rooms.Broadcast(c.room, EventUserJoined, UserPayload{Username: name}, p)
	c.rooms.Unicast(p, EventJoinConfirmation, StatusPayload{Status: "success"})
	return true
}

// join applies the presence and membership changes of a join atomically: if
// anything panics midway both are restored. A connection replaced by the
// join leaves the room once no identity is bound to it.
func (c *Coordinator) join(name string, p Peer) Peer {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	wasMember := c.rooms.IsMember(c.room, p)
	previous := c.presence.Register(name, p)
	evicted := false

	committed := false
	defer func() {
		if committed {
			return
		}
		if previous != nil {
			c.presence.Register(name, previous)
		} else {
			c.presence.UnregisterByIdentity(name)
		}
		if evicted {
			c.rooms.AddMember(c.room, previous)
		}
		if !wasMember {
			c.rooms.RemoveMember(c.room, p)
		}
	}()

	if previous != nil && previous != p && !c.presence.Bound(previous) {
		c.rooms.RemoveMember(c.room, previous)
		evicted = true
	}
	c.rooms.AddMember(c.room, p)
	committed = true
	return previous
}

// Leave removes username from presence and the room and announces the
// departure. Leaving an identity that is not online does nothing.
func (c *Coordinator) Leave(p Peer, username string) bool {
	name := strings.TrimSpace(username)
	if name == "" {
		return false
	}

	c.lifecycle.Lock()
	handle, ok := c.presence.UnregisterByIdentity(name)
	if ok && !c.presence.Bound(handle) {
		c.rooms.RemoveMember(c.room, handle)
	}
	c.lifecycle.Unlock()

	if !ok {
		return false
	}

	if handle != p {
		c.logger.Info("user left", "username", name, "conn", handle.ID(), "caller", p.ID())
	} else {
		c.logger.Info("user left", "username", name, "conn", handle.ID())
	}
	c.rooms.Broadcast(c.room, EventUserLeft, UserPayload{Username: name}, nil)
	return true
}

// Disconnect reconciles state after p closed: every identity still bound to
// p goes offline and is announced, and p leaves all rooms. A connection that
// never joined changes nothing.
func (c *Coordinator) Disconnect(p Peer) []string {
	c.lifecycle.Lock()
	var gone []string
	for {
		name, ok := c.presence.UnregisterByHandle(p)
		if !ok {
			break
		}
		gone = append(gone, name)
	}
	c.rooms.RemovePeer(p)
	c.lifecycle.Unlock()

	c.logger.Info("client disconnected", "conn", p.ID(), "identities", len(gone))
	for _, name := range gone {
		c.rooms.Broadcast(c.room, EventUserLeft, UserPayload{Username: name}, nil)
	}
	return gone
}
