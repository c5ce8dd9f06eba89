package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/release"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/ws"
)

const sseHeartbeat = 15 * time.Second

// EventPublisher fans release events out to the stream subscribers of a project.
type EventPublisher struct {
	hub     *ws.Hub
	tickets TicketRewriter
	logger  *slog.Logger
}

// NewEventPublisher builds a release.Publisher backed by hub.
func NewEventPublisher(hub *ws.Hub, tickets TicketRewriter, logger *slog.Logger) EventPublisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return EventPublisher{hub: hub, tickets: tickets, logger: logger}
}

// Publish marshals ev with rewritten tickets and broadcasts it.
func (p EventPublisher) Publish(projectKey string, ev release.Event) {
	views := make([]domain.DeploymentView, len(ev.Deployments))
	copy(views, ev.Deployments)
	for i := range views {
		views[i].TicketReference = p.tickets.Rewrite(views[i].TicketReference)
	}
	ev.Deployments = views
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to marshal release event", "release_id", ev.ReleaseID, "error", err)
		return
	}
	p.hub.Broadcast(projectKey, payload)
}

type subscribedMessage struct {
	Type    string `json:"type"`
	Project string `json:"project"`
}

// handleEvents streams the release events of the project owning key, over a
// websocket when the request asks for an upgrade and as Server-Sent Events otherwise.
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request, key string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.hub == nil {
		r.notFound(w)
		return
	}
	node, err := r.apps.Get(req.Context(), key)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	project, err := r.apps.Root(req.Context(), *node)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if websocket.IsWebSocketUpgrade(req) {
		r.streamWebsocket(w, req, project.Key)
		return
	}
	r.streamSSE(w, req, project.Key)
}

func (r *Router) streamWebsocket(w http.ResponseWriter, req *http.Request, topic string) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if !r.hub.Register(topic, client) {
		client.Close()
		return
	}
	hello, _ := json.Marshal(subscribedMessage{Type: "subscribed", Project: topic})
	if err := client.Send(hello); err != nil {
		r.hub.Unregister(topic, client)
		return
	}
	go func() {
		defer func() {
			r.hub.Unregister(topic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) streamSSE(w http.ResponseWriter, req *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, flusher, release.EventRelease, r.logger)
	if !r.hub.Register(topic, client) {
		return
	}
	defer r.hub.Unregister(topic, client)
	if err := client.Comment("subscribed " + topic); err != nil {
		return
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			client.Close()
			return
		case <-r.hub.Done():
			return
		case <-ticker.C:
			if client.Closed() || client.Comment("ping") != nil {
				return
			}
		}
	}
}
