// Package ws fans project events out to streaming subscribers.
package ws

import (
	"log/slog"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages event subscriptions keyed by project ID.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan event
	count     chan countRequest
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

type event struct {
	projectID string
	payload   []byte
}

type subscription struct {
	projectID string
	client    Subscriber
}

type countRequest struct {
	projectID string
	reply     chan int
}

// NewHub starts a hub goroutine. Call Close to stop it.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan event, 64),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
		log:       logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for projectID, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
				delete(h.clients, projectID)
			}
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.projectID]; !ok {
				h.clients[sub.projectID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.projectID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			h.drop(sub.projectID, sub.client)
		case ev := <-h.broadcast:
			for c := range h.clients[ev.projectID] {
				if err := c.Send(ev.payload); err != nil {
					h.log.Debug("dropping project subscriber", "project_id", ev.projectID, "error", err)
					c.Close()
					h.drop(ev.projectID, c)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.projectID])
		}
	}
}

func (h *Hub) drop(projectID string, client Subscriber) {
	clients, ok := h.clients[projectID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, projectID)
	}
}

// Register adds a client to a project stream.
func (h *Hub) Register(projectID string, client Subscriber) {
	select {
	case h.register <- subscription{projectID: projectID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(projectID string, client Subscriber) {
	select {
	case h.unreg <- subscription{projectID: projectID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every subscriber of projectID.
func (h *Hub) Broadcast(projectID string, payload []byte) {
	select {
	case h.broadcast <- event{projectID: projectID, payload: payload}:
	case <-h.done:
	}
}

// Subscribers returns the number of clients attached to projectID.
func (h *Hub) Subscribers(projectID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{projectID: projectID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close disconnects all subscribers and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
