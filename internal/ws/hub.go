package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans payloads out to the subscribers of a topic. Topics are project keys.
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic  string
	client Subscriber
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		topics:    make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 16),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.topics {
				for c := range clients {
					c.Close()
				}
			}
			h.topics = make(map[string]map[Subscriber]struct{})
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			if _, ok := h.topics[sub.topic]; !ok {
				h.topics[sub.topic] = make(map[Subscriber]struct{})
			}
			h.topics[sub.topic][sub.client] = struct{}{}
			h.mu.Unlock()
		case sub := <-h.unreg:
			h.mu.Lock()
			h.remove(sub.topic, sub.client)
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]Subscriber, 0, len(h.topics[msg.topic]))
			for c := range h.topics[msg.topic] {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				if err := c.Send(msg.payload); err != nil {
					c.Close()
					h.mu.Lock()
					h.remove(msg.topic, c)
					h.mu.Unlock()
				}
			}
		}
	}
}

// remove expects h.mu to be held.
func (h *Hub) remove(topic string, client Subscriber) {
	clients, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.topics, topic)
	}
}

// Register adds a client to a topic. It returns false once the hub is closed.
func (h *Hub) Register(topic string, client Subscriber) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- subscription{topic: topic, client: client}:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from a topic.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every subscriber of topic.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Done is closed when the hub shuts down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Close stops the dispatch loop and closes every subscriber.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
