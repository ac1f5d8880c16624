// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, message history and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// WebSocketHandler upgrades GET requests to WebSocket and hands the new
// client to the hub, which greets it and starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.Register(client) {
		s.logger.Info("rejecting connection during shutdown", "addr", r.RemoteAddr)
		client.closeConnection()
	}
}

// MessagesHandler serves GET /messages: stored messages oldest first. The
// optional limit query parameter keeps only the newest N.
func (s *Server) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := s.coord.RecentMessages(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load messages", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": ReasonDatabase})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running!")
}

// TestPageHandler serves an HTML page for exercising the WebSocket protocol
// from a browser: join, send, typing and history.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        #typing { color: gray; font-style: italic; min-height: 1em; }
    </style>
</head>
<body>
    <h1>Chat WebSocket Test</h1>
    <div>
        <input type="text" id="username" placeholder="Username">
        <button onclick="join()">Join</button>
        <button onclick="leave()">Leave</button>
        <button onclick="history()">History</button>
    </div>
    <div id="messages"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="text" placeholder="Type a message..." oninput="typing()">
        <button onclick="send()">Send</button>
    </div>

    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        const out = document.getElementById('messages');
        let nextAck = 1;
        let typingTimer = null;
        const pending = {};

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            out.appendChild(el);
            out.scrollTop = out.scrollHeight;
        }
        function name() { return document.getElementById('username').value.trim(); }
        function emit(event, data, onAck) {
            const frame = { event: event, data: data };
            if (onAck) { frame.ack = nextAck; pending[nextAck++] = onAck; }
            ws.send(JSON.stringify(frame));
        }
        function join() { emit('join', { username: name() }); }
        function leave() { emit('leave', { username: name() }); }
        function history() {
            emit('get_message_history', { limit: 50 }, function (res) {
                (res.messages || []).forEach(function (m) { log('[history] ' + m.username + ': ' + m.text); });
            });
        }
        function send() {
            const input = document.getElementById('text');
            const id = 'c' + Date.now();
            emit('send_message', { id: id, username: name(), text: input.value }, function (res) {
                if (!res.success) { log('send failed: ' + res.error); }
            });
            emit('typing_stop', { username: name() });
            input.value = '';
        }
        function typing() {
            emit('typing_start', { username: name() });
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function () { emit('typing_stop', { username: name() }); }, 1500);
        }

        ws.onmessage = function (e) {
            const f = JSON.parse(e.data);
            const d = f.data || {};
            switch (f.event) {
                case 'ack': if (pending[f.ack]) { pending[f.ack](d); delete pending[f.ack]; } break;
                case 'connection_status': log('status: ' + d.status); break;
                case 'join_confirmation': log('joined'); break;
                case 'user_joined': log(d.username + ' joined'); break;
                case 'user_left': log(d.username + ' left'); break;
                case 'receive_message': log(d.username + ': ' + d.text); break;
                case 'user_typing':
                    document.getElementById('typing').textContent = d.typing ? d.username + ' is typing...' : '';
                    break;
                case 'error': log('error: ' + d.message + (d.details ? ' (' + d.details + ')' : '')); break;
            }
        };
        ws.onclose = function () { log('connection closed'); };
    </script>
</body>
</html>`
