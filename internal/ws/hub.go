// Package ws implements the WebSocket hub that pushes live flight
// updates to connected clients. Clients subscribe to the "flights"
// topic and receive flight_update broadcasts, either on demand
// (request_flights) or from the periodic anchor broadcast.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skylens/skylens/internal/monitoring"
	"github.com/skylens/skylens/pkg/flights"
	"github.com/skylens/skylens/pkg/opensky"
)

// Inbound message types understood by the hub.
const (
	msgSubscribeFlights   = "subscribe_flights"
	msgUnsubscribeFlights = "unsubscribe_flights"
	msgRequestFlights     = "request_flights"
	msgPing               = "ping"
)

// topicFlights is the only topic the hub currently serves.
const topicFlights = "flights"

const (
	// DefaultPingInterval is how often the hub pings each client.
	DefaultPingInterval = 30 * time.Second
	// DefaultPongGrace is how far past the ping interval a client's
	// last pong may lag before the hub closes the connection.
	DefaultPongGrace = 10 * time.Second
	// DefaultBroadcastInterval is how often the hub pushes flights
	// around the anchor point to subscribers.
	DefaultBroadcastInterval = 15 * time.Second

	// Default anchor for the periodic broadcast (Prague). Clients at
	// other locations still receive this data on the shared channel.
	DefaultAnchorLatitude  = 50.0755
	DefaultAnchorLongitude = 14.4378
	DefaultAnchorRadiusKm  = 100.0

	sendBufferSize = 256
	writeTimeout   = 10 * time.Second
)

// FlightSource supplies the flight lists the hub relays. It is
// satisfied by service.Service.
type FlightSource interface {
	FlightsInArea(ctx context.Context, lat, lon, radiusKm float64, sessionToken string) ([]flights.Flight, *opensky.APIError)
}

// Envelope is the wire format for every message the hub sends.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// inboundMessage is the wire format for messages from clients.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// flightRequest is the payload of a request_flights message.
type flightRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// Config controls hub timing and the periodic broadcast anchor.
// Zero values fall back to the defaults above.
type Config struct {
	PingInterval      time.Duration
	PongGrace         time.Duration
	BroadcastInterval time.Duration
	AnchorLatitude    float64
	AnchorLongitude   float64
	AnchorRadiusKm    float64
}

// Hub tracks connected WebSocket clients and fans flight updates out
// to subscribers. Insert and remove are serialised on the mutex;
// broadcasts iterate a snapshot so a slow client cannot stall others.
type Hub struct {
	source   FlightSource
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[int64]*client
	nextID  int64

	done      chan struct{}
	closeOnce sync.Once
}

// client is one connected WebSocket peer. All writes to the
// connection go through writePump, which drains the send channel in
// order. The topics set is guarded by the hub mutex.
type client struct {
	id       int64
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	topics   map[string]bool
	lastPong int64 // unix nanos, accessed atomically
	done     chan struct{}
	once     sync.Once
}

// NewHub creates a hub backed by the given flight source and starts
// the periodic broadcast loop. Call Close to stop it.
func NewHub(source FlightSource, cfg Config) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongGrace <= 0 {
		cfg.PongGrace = DefaultPongGrace
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = DefaultBroadcastInterval
	}
	if cfg.AnchorLatitude == 0 && cfg.AnchorLongitude == 0 {
		cfg.AnchorLatitude = DefaultAnchorLatitude
		cfg.AnchorLongitude = DefaultAnchorLongitude
	}
	if cfg.AnchorRadiusKm <= 0 {
		cfg.AnchorRadiusKm = DefaultAnchorRadiusKm
	}

	h := &Hub{
		source:  source,
		cfg:     cfg,
		clients: make(map[int64]*client),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	go h.run()
	return h
}

// HandleWebSocket upgrades the HTTP request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		id:     atomic.AddInt64(&h.nextID, 1),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool),
		done:   make(chan struct{}),
	}
	c.touchPong()

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		conn.Close()
		return
	default:
	}
	h.clients[c.id] = c
	active := len(h.clients)
	h.mu.Unlock()

	monitoring.WSClients.Inc()
	log.Printf("🔌 WebSocket client %d connected (%d active)", c.id, active)

	go c.writePump()

	// Greeting goes into the send queue before the read loop starts,
	// so it is always the first message the client sees.
	h.sendTo(c, "connection", map[string]interface{}{
		"clientId": c.id,
		"message":  "Connected to flight tracking server",
	})

	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the broadcast loop and disconnects every client. New
// connections are refused after Close returns.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		close(h.done)
		h.mu.Unlock()
	})
	for _, c := range h.snapshot() {
		h.closeClient(c, "hub shutting down")
	}
}

// BroadcastFlights sends a flight_update to every client subscribed
// to the flights topic.
func (h *Hub) BroadcastFlights(list []flights.Flight) {
	subs := h.subscribers()
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(Envelope{
		Type:      "flight_update",
		Data:      list,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("⚠️ Failed to encode flight update: %v", err)
		return
	}
	for _, c := range subs {
		h.deliver(c, payload)
	}
}

// run drives the periodic anchor broadcast until the hub closes.
func (h *Hub) run() {
	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.broadcastTick()
		}
	}
}

// broadcastTick fetches flights around the anchor and broadcasts
// them. Ticks with no subscribers skip the upstream call entirely;
// upstream failures are logged and the tick is skipped.
func (h *Hub) broadcastTick() {
	subs := h.subscribers()
	if len(subs) == 0 {
		return
	}
	list, apiErr := h.source.FlightsInArea(context.Background(), h.cfg.AnchorLatitude, h.cfg.AnchorLongitude, h.cfg.AnchorRadiusKm, "")
	if apiErr != nil {
		log.Printf("⚠️ Periodic flight broadcast skipped: %s", apiErr.Message)
		return
	}
	log.Printf("📡 Broadcasting %d flights to %d subscriber(s)", len(list), len(subs))
	h.BroadcastFlights(list)
}

// handleMessage dispatches one decoded client message.
func (h *Hub) handleMessage(c *client, msg inboundMessage) {
	switch msg.Type {
	case msgSubscribeFlights:
		monitoring.WSMessages.WithLabelValues(msg.Type).Inc()
		h.setSubscribed(c, true)
		h.sendTo(c, "subscription", map[string]interface{}{"subscribed": h.topicList(c)})

	case msgUnsubscribeFlights:
		monitoring.WSMessages.WithLabelValues(msg.Type).Inc()
		h.setSubscribed(c, false)
		h.sendTo(c, "subscription", map[string]interface{}{"subscribed": h.topicList(c)})

	case msgRequestFlights:
		monitoring.WSMessages.WithLabelValues(msg.Type).Inc()
		var req flightRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.sendTo(c, "error", map[string]string{"message": "request_flights requires latitude, longitude and radius"})
			return
		}
		list, apiErr := h.source.FlightsInArea(context.Background(), req.Latitude, req.Longitude, req.Radius, "")
		if apiErr != nil {
			log.Printf("⚠️ WebSocket flight request from client %d failed: %s", c.id, apiErr.Message)
		}
		h.BroadcastFlights(list)

	case msgPing:
		monitoring.WSMessages.WithLabelValues(msg.Type).Inc()
		h.sendTo(c, "pong", nil)

	default:
		monitoring.WSMessages.WithLabelValues("unknown").Inc()
		h.sendTo(c, "error", map[string]string{"message": fmt.Sprintf("Unknown message type: %s", msg.Type)})
	}
}

func (h *Hub) setSubscribed(c *client, subscribed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribed {
		c.topics[topicFlights] = true
	} else {
		delete(c.topics, topicFlights)
	}
}

// topicList returns the client's current subscriptions. The result is
// never nil so it encodes as an empty JSON array.
func (h *Hub) topicList(c *client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		list = append(list, topic)
	}
	return list
}

// subscribers snapshots the clients subscribed to the flights topic.
func (h *Hub) subscribers() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.topics[topicFlights] {
			subs = append(subs, c)
		}
	}
	return subs
}

// snapshot copies the full client table.
func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	return all
}

// sendTo encodes an envelope and queues it for one client.
func (h *Hub) sendTo(c *client, msgType string, data interface{}) {
	payload, err := json.Marshal(Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("⚠️ Failed to encode %s message: %v", msgType, err)
		return
	}
	h.deliver(c, payload)
}

// deliver queues a payload without blocking. A full send buffer means
// the client cannot keep up, so the hub closes that client rather
// than stalling the broadcast path.
func (h *Hub) deliver(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.closeClient(c, "send buffer full")
	}
}

// closeClient removes the client from the table and tears down its
// connection. Safe to call multiple times; only the first call wins.
func (h *Hub) closeClient(c *client, reason string) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		remaining := len(h.clients)
		h.mu.Unlock()

		close(c.done)
		c.conn.Close()
		monitoring.WSClients.Dec()
		log.Printf("👋 WebSocket client %d disconnected (%s, %d active)", c.id, reason, remaining)
	})
}

// readPump reads client messages until the connection drops. Pongs
// refresh the liveness timestamp checked by writePump.
func (c *client) readPump() {
	defer c.hub.closeClient(c, "connection closed")

	c.conn.SetPongHandler(func(string) error {
		c.touchPong()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.sendTo(c, "error", map[string]string{"message": "Invalid message format"})
			continue
		}
		c.hub.handleMessage(c, msg)
	}
}

// writePump is the single writer for the connection. It drains the
// send queue in order, pings on the configured interval and closes
// the client when its last pong is older than interval plus grace.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.closeClient(c, "write failed")
				return
			}

		case <-ticker.C:
			if time.Since(c.lastPongTime()) > c.hub.cfg.PingInterval+c.hub.cfg.PongGrace {
				c.hub.closeClient(c, "missed pong deadline")
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.closeClient(c, "ping failed")
				return
			}
		}
	}
}

func (c *client) touchPong() {
	atomic.StoreInt64(&c.lastPong, time.Now().UnixNano())
}

func (c *client) lastPongTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastPong))
}
