package buildtrack

import (
	"sync"
)

// sendQueueSize bounds the per-client outbox. A client that falls this far
// behind starts losing frames instead of stalling the room.
const sendQueueSize = 32

// ChatHub tracks which connections are in which site room and fans messages
// out to room members. It holds no durable state; membership is rebuilt from
// live connections.
type ChatHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*HubClient]struct{}
	logger Logger
}

func NewChatHub(logger Logger) *ChatHub {
	if logger == nil {
		logger = defLogger{}
	}
	return &ChatHub{
		rooms:  map[string]map[*HubClient]struct{}{},
		logger: logger,
	}
}

// HubClient is one connection's view of the hub. The transport layer drains
// Outbox onto the wire; the hub never touches the socket directly.
type HubClient struct {
	hub    *ChatHub
	outbox chan []byte

	mu     sync.Mutex
	siteID string
	closed bool
}

// NewClient registers a connection with the hub. The client belongs to no
// room until Join is called.
func (h *ChatHub) NewClient() *HubClient {
	return &HubClient{hub: h, outbox: make(chan []byte, sendQueueSize)}
}

// Outbox delivers payloads queued for this connection. It is closed when the
// client leaves the hub for good.
func (c *HubClient) Outbox() <-chan []byte {
	return c.outbox
}

// SiteID returns the room the client currently occupies, or "".
func (c *HubClient) SiteID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.siteID
}

// Join moves the client into the given site room, leaving any previous room
// first. A connection is in at most one room at a time.
func (h *ChatHub) Join(c *HubClient, siteID string) {
	c.mu.Lock()
	prev := c.siteID
	c.siteID = siteID
	c.mu.Unlock()

	h.mu.Lock()
	if prev != "" && prev != siteID {
		h.removeLocked(c, prev)
	}
	members, ok := h.rooms[siteID]
	if !ok {
		members = map[*HubClient]struct{}{}
		h.rooms[siteID] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("chat client joined site %s", siteID)
}

// Leave removes the client from its room and closes its outbox. Safe to call
// more than once.
func (h *ChatHub) Leave(c *HubClient) {
	c.mu.Lock()
	siteID := c.siteID
	alreadyClosed := c.closed
	c.closed = true
	c.siteID = ""
	c.mu.Unlock()

	if alreadyClosed {
		return
	}

	h.mu.Lock()
	if siteID != "" {
		h.removeLocked(c, siteID)
	}
	h.mu.Unlock()

	close(c.outbox)
}

// Broadcast queues the payload for every member of the room, the sender
// included. Clients with a full outbox drop the frame rather than block the
// caller.
func (h *ChatHub) Broadcast(siteID string, payload []byte) {
	h.mu.RLock()
	members := make([]*HubClient, 0, len(h.rooms[siteID]))
	for c := range h.rooms[siteID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if !c.Send(payload) {
			h.logger.Error("chat client outbox full, dropping frame for site %s", siteID)
		}
	}
}

// Send queues a payload for this client alone, used for direct replies such
// as history replays. Returns false when the frame was dropped.
func (c *HubClient) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.outbox <- payload:
		return true
	default:
		return false
	}
}

// RoomSize reports the current member count of a site room.
func (h *ChatHub) RoomSize(siteID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[siteID])
}

func (h *ChatHub) removeLocked(c *HubClient, siteID string) {
	members, ok := h.rooms[siteID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, siteID)
	}
}
