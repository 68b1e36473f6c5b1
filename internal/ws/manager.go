// Package ws fans committed auction events out to WebSocket clients.
// Clients subscribe per listing; one slow client never blocks the rest.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Manager tracks which clients watch which listing.
type Manager struct {
	// listing id -> set of clients
	subscribers sync.Map // map[string]*sync.Map

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
}

// Client is one WebSocket connection watching one listing.
type Client struct {
	ID        string
	ListingID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// BroadcastMessage carries one event payload to a listing's watchers.
type BroadcastMessage struct {
	ListingID string
	Payload   []byte
}

func NewManager() *Manager {
	return &Manager{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run is the manager's main loop; run it in a goroutine.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		case message := <-m.broadcast:
			m.broadcastToListing(message.ListingID, message.Payload)
		}
	}
}

func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// Broadcast queues payload for every client watching the listing.
func (m *Manager) Broadcast(listingID string, payload []byte) {
	m.broadcast <- &BroadcastMessage{ListingID: listingID, Payload: payload}
}

func (m *Manager) registerClient(client *Client) {
	subscribers, _ := m.subscribers.LoadOrStore(client.ListingID, &sync.Map{})
	subscribers.(*sync.Map).Store(client, true)

	log.Debug().Str("client_id", client.ID).Str("listing_id", client.ListingID).Msg("client subscribed")

	go client.writePump()
}

func (m *Manager) unregisterClient(client *Client) {
	if subscribers, ok := m.subscribers.Load(client.ListingID); ok {
		subscribers.(*sync.Map).Delete(client)
	}

	close(client.Send)
	client.Conn.Close()

	log.Debug().Str("client_id", client.ID).Str("listing_id", client.ListingID).Msg("client unsubscribed")
}

func (m *Manager) broadcastToListing(listingID string, payload []byte) {
	subscribers, ok := m.subscribers.Load(listingID)
	if !ok {
		return
	}
	subscribers.(*sync.Map).Range(func(key, _ any) bool {
		client := key.(*Client)
		select {
		case client.Send <- payload:
		default:
			// Send buffer full: drop the client rather than stall
			// everyone else watching this listing. Direct call, since
			// this already runs on the manager goroutine.
			m.unregisterClient(client)
		}
		return true
	})
}

// SubscriberCount reports how many clients watch a listing.
func (m *Manager) SubscriberCount(listingID string) int {
	subscribers, ok := m.subscribers.Load(listingID)
	if !ok {
		return 0
	}
	count := 0
	subscribers.(*sync.Map).Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(unregister chan *Client) {
	defer func() {
		unregister <- c
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			return
		}
	}
}

// StartReadPump watches the connection for disconnects.
func (c *Client) StartReadPump(unregister chan *Client) {
	go c.readPump(unregister)
}
