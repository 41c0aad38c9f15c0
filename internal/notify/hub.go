package notify

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// ErrHubClosed is returned once [Hub.Run] has stopped.
var ErrHubClosed = errors.New("notification hub closed")

type delivery struct {
	ownerID string
	data    []byte
}

// Hub owns the connected clients, grouped by owner, and fans messages out to them.
//
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients map[string]map[*Client]bool

	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}

	logger *log.Logger
}

// NewHub creates a hub. Call [Hub.Run] before registering clients.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		deliver:    make(chan delivery, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		logger:     shared.WithLogger(logger, "component", "hub"),
	}
}

// Run processes registrations and deliveries until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for owner, set := range h.clients {
				for c := range set {
					h.drop(owner, c)
				}
			}
			return

		case c := <-h.register:
			set := h.clients[c.ownerID]
			if set == nil {
				set = make(map[*Client]bool)
				h.clients[c.ownerID] = set
			}
			set[c] = true
			h.logger.Debug("client connected", "owner", c.ownerID, "clients", len(set))

		case c := <-h.unregister:
			if h.clients[c.ownerID][c] {
				h.drop(c.ownerID, c)
			}

		case d := <-h.deliver:
			for c := range h.clients[d.ownerID] {
				select {
				case c.send <- d.data:
				default:
					h.logger.Warn("client too slow, disconnecting", "owner", d.ownerID)
					h.drop(d.ownerID, c)
				}
			}

		case reply := <-h.count:
			n := 0
			for _, set := range h.clients {
				n += len(set)
			}
			reply <- n
		}
	}
}

func (h *Hub) drop(ownerID string, c *Client) {
	delete(h.clients[ownerID], c)
	if len(h.clients[ownerID]) == 0 {
		delete(h.clients, ownerID)
	}
	close(c.send)
	_ = c.conn.Close()
}

// Deliver queues data for every client of ownerID on this instance.
func (h *Hub) Deliver(ctx context.Context, ownerID string, data []byte) error {
	// deliver is buffered, so a send could still win the select after Run has exited.
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.deliver <- delivery{ownerID: ownerID, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients reports how many clients are connected. It blocks until Run answers or ctx is done.
func (h *Hub) Clients(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case <-h.done:
		return 0, ErrHubClosed
	default:
	}
	select {
	case h.count <- reply:
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
