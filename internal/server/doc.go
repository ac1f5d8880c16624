// Package server implements the real-time chat coordinator and its
// HTTP/WebSocket surface.
//
// The Coordinator owns who is online (Presence) and who receives room traffic
// (Rooms), runs every chat message through persist, acknowledge and broadcast,
// and isolates handler failures per event. The Hub and Client types bind
// gorilla WebSocket connections to it, and Server exposes the HTTP routes.
package server
