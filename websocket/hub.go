package websocket

import (
	"encoding/json"
	"sync"
)

// defaultSendQueueSize is the per-client send queue depth.
const defaultSendQueueSize = 256

// Hub manages multiple WebSocket connections for broadcasting.
//
// Every registered client gets a bounded send queue drained by its own
// writer goroutine, so one slow client never stalls the others. A full
// queue surfaces as a WriteBufferFull error that hands the undelivered
// message back to the caller.
//
// Thread-safe operations allow concurrent client registration,
// unregistration, sending and broadcasting from multiple goroutines.
//
// Example Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Close()
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//	    conn, _ := websocket.Upgrade(w, r, nil)
//	    hub.Register(conn)
//
//	    go func() {
//	        defer hub.Unregister(conn)
//	        for {
//	            msg, err := conn.ReadMessage()
//	            if err != nil {
//	                break
//	            }
//	            hub.Broadcast(msg)
//	        }
//	    }()
//	})
type Hub struct {
	// Client management: each client owns a bounded send queue.
	clients map[*Conn]chan Message

	// Channels for event loop
	register   chan *Conn   // Register new client
	unregister chan *Conn   // Unregister client
	broadcast  chan Message // Broadcast message to all

	// Lifecycle management
	done   chan struct{}  // Shutdown signal
	closed bool           // Track if hub is closed
	wg     sync.WaitGroup // Wait for goroutines

	queueSize int

	// Thread-safety for clients map and closed flag
	mu sync.RWMutex
}

// NewHub creates a new WebSocket Hub with the default per-client queue
// depth.
//
// The Hub must be started by calling Run() in a goroutine:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Close()
func NewHub() *Hub {
	return NewHubWithQueueSize(defaultSendQueueSize)
}

// NewHubWithQueueSize creates a Hub whose per-client send queues hold up
// to queueSize messages. queueSize <= 0 uses the default.
func NewHubWithQueueSize(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	return &Hub{
		clients:    make(map[*Conn]chan Message),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan Message, defaultSendQueueSize),
		done:       make(chan struct{}),
		queueSize:  queueSize,
	}
}

// Run starts the Hub's event loop.
//
// This method blocks and should be called in a goroutine:
//
//	go hub.Run()
//
// The event loop handles:
//   - Client registration/unregistration
//   - Message broadcasting to all clients
//   - Graceful shutdown
//
// Run exits when Close() is called.
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client]; !ok {
				queue := make(chan Message, h.queueSize)
				h.clients[client] = queue
				h.wg.Add(1)
				go h.writePump(client, queue)
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.dropClient(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Conn
			for client, queue := range h.clients {
				select {
				case queue <- msg:
				default:
					// Queue full: the client is not keeping up.
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.dropClient(client)
			}

		case <-h.done:
			return
		}
	}
}

// writePump drains one client's send queue onto its connection.
//
// Exits when the queue is closed or a write fails; a failed write drops
// the client.
func (h *Hub) writePump(client *Conn, queue chan Message) {
	defer h.wg.Done()

	for msg := range queue {
		if err := client.WriteMessage(msg); err != nil {
			h.dropClient(client)
			// Drain remaining messages so dropClient's close of the
			// queue does not strand a blocked sender.
			for range queue {
			}
			return
		}
	}
}

// dropClient removes a client, closes its queue and its transport.
//
// Teardown is abrupt: a dropped client gets no closing handshake. A
// handshake would need the peer to keep reading, and the clients being
// dropped here are exactly the ones that stopped doing that.
func (h *Hub) dropClient(client *Conn) {
	h.mu.Lock()
	queue, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(queue)
	}
	h.mu.Unlock()

	if ok {
		_ = client.conn.Close()
	}
}

// Register adds a client to the Hub.
//
// The client will receive all messages sent via Broadcast() and can be
// addressed individually via Send().
//
// Typically called after successful WebSocket upgrade:
//
//	conn, _ := websocket.Upgrade(w, r, nil)
//	hub.Register(conn)
//
// Thread-safe: can be called from multiple goroutines.
func (h *Hub) Register(client *Conn) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the Hub.
//
// The client's connection will be closed.
//
// Typically called in a defer after client registration:
//
//	defer hub.Unregister(conn)
//
// Thread-safe: can be called from multiple goroutines.
// Safe to call multiple times for the same client (no-op after first call).
func (h *Hub) Unregister(client *Conn) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Send queues a message for one client.
//
// A full queue does not block and does not drop the client; it returns a
// WriteBufferFull error carrying msg, so the caller keeps the message
// and can retry or back off:
//
//	if err := hub.Send(conn, msg); err != nil {
//	    var werr *websocket.Error
//	    if errors.As(err, &werr) && werr.Kind() == websocket.KindWriteBufferFull {
//	        retry(werr.Message())
//	    }
//	}
//
// Sending to an unregistered or already dropped client reports the
// connection as closed.
//
// Thread-safe: can be called from multiple goroutines.
func (h *Hub) Send(client *Conn, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrAlreadyClosed
	}
	queue, ok := h.clients[client]
	if !ok {
		return ErrAlreadyClosed
	}

	select {
	case queue <- msg:
		return nil
	default:
		return errWriteBufferFull(msg)
	}
}

// Broadcast queues a message for all connected clients.
//
// Delivery happens asynchronously in the event loop; clients whose send
// queue is full are dropped as slow consumers.
//
// Example:
//
//	hub.Broadcast(websocket.NewTextMessage("Hello, everyone!"))
//
// Thread-safe: can be called from multiple goroutines.
// Non-blocking: a full broadcast queue returns WriteBufferFull with the
// message, like Send.
func (h *Hub) Broadcast(msg Message) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrAlreadyClosed
	}
	h.mu.RUnlock()

	select {
	case h.broadcast <- msg:
		return nil
	default:
		return errWriteBufferFull(msg)
	}
}

// BroadcastText sends a text message to all connected clients.
//
// Convenience wrapper around Broadcast() for text messages.
//
// Example:
//
//	hub.BroadcastText("Server notification")
//
// Thread-safe: can be called from multiple goroutines.
func (h *Hub) BroadcastText(text string) error {
	return h.Broadcast(NewTextMessage(text))
}

// BroadcastJSON sends a JSON-encoded text message to all connected
// clients.
//
// Example:
//
//	type Notice struct {
//	    Type string `json:"type"`
//	    Text string `json:"text"`
//	}
//	hub.BroadcastJSON(Notice{Type: "notification", Text: "Hello"})
//
// A value that cannot be marshaled reports an unknown data format.
// Thread-safe: can be called from multiple goroutines.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrUnknownFormat
	}

	return h.Broadcast(NewTextMessage(string(data)))
}

// ClientCount returns the number of currently connected clients.
//
// Thread-safe: can be called from multiple goroutines.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the Hub and disconnects all clients.
//
// Performs graceful shutdown:
//  1. Sets closed flag to prevent new operations
//  2. Stops the event loop
//  3. Closes every client queue and connection
//  4. Waits for the event loop and writer goroutines to exit
//
// Safe to call multiple times (no-op after first call).
//
// Example:
//
//	defer hub.Close()
func (h *Hub) Close() error {
	// Set closed flag first (prevents new Register/Unregister/Broadcast)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	// Signal shutdown to event loop and any blocked Register/Unregister.
	close(h.done)

	// Close all client queues and transports; writer goroutines exit as
	// their queues drain. Teardown is abrupt, as in dropClient.
	h.mu.Lock()
	for client, queue := range h.clients {
		close(queue)
		_ = client.conn.Close()
	}
	h.clients = make(map[*Conn]chan Message)
	h.mu.Unlock()

	// Wait for event loop and writer goroutines to exit.
	h.wg.Wait()

	return nil
}
