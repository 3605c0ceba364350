// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"
)

// handleWebSocket upgrades the request, queues the welcome frame and hands the
// client to the hub, which launches its pumps. Requests that are not valid
// upgrades are answered by the upgrader itself.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	log.Printf("A new client connected from %s", r.RemoteAddr)

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)

	// The send buffer is empty here, so this never blocks, and the welcome
	// frame is ahead of any reply readPump can produce.
	client.send <- []byte(s.cfg.WelcomeMessage)

	if !s.hub.registerClient(client) {
		log.Printf("Rejecting client %s: server is shutting down", r.RemoteAddr)
		client.goingAway()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "WebSocket echo server is running!")
}

// TestPageHandler serves an HTML page that connects to the echo endpoint on
// the same host, for trying the server from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>WebSocket Echo Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>WebSocket Echo Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = connected ? 'status connected' : 'status disconnected';
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/');
            ws.onopen = function() { addMessage('Connected'); updateStatus(true); };
            ws.onmessage = function(event) { addMessage(event.data, 'green'); };
            ws.onclose = function() { addMessage('Connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { addMessage('Connection error'); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(messageInput.value);
                addMessage('>> ' + messageInput.value, 'blue');
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
