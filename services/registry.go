package services

import (
	"sync"
	"time"

	"clinic-queue/internal/status"
	"clinic-queue/models"
	"clinic-queue/utils"
)

// Client is one live transport session. Outbound messages go through a
// buffered channel drained by the connection's writer goroutine, so one
// slow consumer never stalls a broadcast to the rest.
type Client struct {
	ID string

	mu            sync.Mutex
	userID        string
	role          string
	authenticated bool
	subscriptions map[string]struct{}
	lastSeen      time.Time
	send          chan []byte
	closed        bool
	dropped       bool
}

// TrySend enqueues a message without blocking. A full buffer or closed
// connection marks the client for eviction at the next liveness sweep.
func (c *Client) TrySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.dropped = true
		return false
	}
}

// Outbound is drained by the connection's writer goroutine. The channel
// is closed when the client is removed from the registry.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) Identity() (userID, role string, authenticated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.role, c.authenticated
}

// Subscriptions returns a copy of the doctor ids this client follows.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]string, 0, len(c.subscriptions))
	for doctorID := range c.subscriptions {
		subs = append(subs, doctorID)
	}
	return subs
}

func (c *Client) addSubscription(doctorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[doctorID] = struct{}{}
}

func (c *Client) removeSubscription(doctorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, doctorID)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Registry owns all Client lifetimes: created on connect, destroyed on
// transport close, explicit disconnect, or liveness eviction.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	sendBuffer int
}

func NewRegistry(sendBuffer int) *Registry {
	return &Registry{
		clients:    make(map[string]*Client),
		sendBuffer: sendBuffer,
	}
}

// Register allocates a new unauthenticated client entry.
func (r *Registry) Register() (*Client, error) {
	id, err := utils.GenerateClientID()
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:            id,
		subscriptions: make(map[string]struct{}),
		lastSeen:      time.Now(),
		send:          make(chan []byte, r.sendBuffer),
	}

	r.mu.Lock()
	r.clients[id] = client
	r.mu.Unlock()

	return client, nil
}

// Authenticate records a verified identity on the connection. Calling
// it again for the same connection just refreshes the identity.
func (r *Registry) Authenticate(clientID, userID, role string) error {
	if userID == "" || role == "" {
		return status.ErrAuthFailed
	}

	switch role {
	case models.RoleDoctor, models.RoleAdmin, models.RolePatient:
	default:
		return status.ErrAuthFailed
	}

	client, ok := r.Get(clientID)
	if !ok {
		return status.ErrAuthFailed
	}

	client.mu.Lock()
	client.userID = userID
	client.role = role
	client.authenticated = true
	client.mu.Unlock()

	return nil
}

// Touch refreshes lastSeen. Unknown ids are a no-op: the connection was
// already evicted and the caller's operation will fail on lookup.
func (r *Registry) Touch(clientID string) {
	if client, ok := r.Get(clientID); ok {
		client.mu.Lock()
		client.lastSeen = time.Now()
		client.mu.Unlock()
	}
}

func (r *Registry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[clientID]
	return client, ok
}

// Remove deletes the client and closes its outbound channel. Safe to
// call multiple times; returns the subscriptions that need router
// cleanup and whether the client was still registered.
func (r *Registry) Remove(clientID string) ([]string, bool) {
	r.mu.Lock()
	client, ok := r.clients[clientID]
	delete(r.clients, clientID)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}

	subs := client.Subscriptions()
	client.close()
	return subs, true
}

// Stale returns ids of clients idle past the timeout or flagged by a
// failed send, for the liveness sweep to evict.
func (r *Registry) Stale(timeout time.Duration) []string {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string
	for id, client := range r.clients {
		client.mu.Lock()
		expired := client.dropped || now.Sub(client.lastSeen) > timeout
		client.mu.Unlock()

		if expired {
			stale = append(stale, id)
		}
	}
	return stale
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
