package gateway

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/taskpilot/internal/logging"
)

// Client is one authenticated WebSocket connection. Writes are serialized;
// reads happen only on the connection's own goroutine.
type Client struct {
	ConnID   string
	UserID   string
	ClientID string

	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, params ConnectParams) *Client {
	return &Client{
		ConnID:   uuid.NewString(),
		UserID:   params.UserID,
		ClientID: params.ClientID,
		conn:     conn,
	}
}

func (c *Client) send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.conn.WriteJSON(f)
}

func (c *Client) respond(id string, payload any) error {
	f, err := responseFrame(id, payload)
	if err != nil {
		return err
	}
	return c.send(f)
}

func (c *Client) fail(id, code, message string) error {
	return c.send(errorFrame(id, code, message))
}

func (c *Client) readFrame() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ClientRegistry indexes live connections by user so events reach only
// the user they concern.
type ClientRegistry struct {
	mu     sync.Mutex
	byUser map[string]map[string]*Client // user → connID → client
	count  int
	seq    int64
	log    *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{byUser: make(map[string]map[string]*Client), log: log}
}

// Add registers a connection.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.byUser[c.UserID]
	if conns == nil {
		conns = make(map[string]*Client)
		r.byUser[c.UserID] = conns
	}
	if _, dup := conns[c.ConnID]; !dup {
		r.count++
	}
	conns[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("client", c.ClientID).Str("user", c.UserID).Msg("client connected")
}

// Remove unregisters a connection; unknown connections are ignored.
func (r *ClientRegistry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.byUser[c.UserID]
	if _, ok := conns[c.ConnID]; !ok {
		return
	}
	delete(conns, c.ConnID)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID)
	}
	r.count--
	r.log.Info().Str("connId", c.ConnID).Msg("client disconnected")
}

// Count returns the number of live connections.
func (r *ClientRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// SendToUser pushes an event to every connection of userID and returns how
// many received it. Each push gets the next sequence number.
func (r *ClientRegistry) SendToUser(userID, event string, payload any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return 0
	}
	r.seq++
	f, err := eventFrame(event, payload, r.seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding event")
		return 0
	}

	sent := 0
	for _, c := range conns {
		if err := c.send(f); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("event send failed")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes and forgets every connection.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conns := range r.byUser {
		for _, c := range conns {
			c.Close()
		}
	}
	r.byUser = make(map[string]map[string]*Client)
	r.count = 0
}
