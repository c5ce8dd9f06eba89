package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/release"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/ws"
)

func setupStreaming(t *testing.T) (*Router, *httptest.Server) {
	t.Helper()
	hub := ws.NewHub()
	tickets, err := ParseTicketProtocols("jira=https://jira.example.com/browse/")
	require.NoError(t, err)
	router := setupRouter(t, Options{Hub: hub, Tickets: tickets})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	seed(t, router)
	return router, srv
}

func TestReleaseEventsOverSSE(t *testing.T) {
	router, srv := setupStreaming(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/apps/dd-fe/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	greeting, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": subscribed dd\n", greeting)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	rr := do(t, router, http.MethodGet, "/api/apps/dd/envs/test/versions?dd-fe=1-0&ticket=jira://DD-7", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result release.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))

	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: release\n", eventLine)
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dataLine, "data: "))

	var ev release.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &ev))
	assert.Equal(t, result.ReleaseID, ev.ReleaseID)
	assert.Equal(t, "dd", ev.Project)
	assert.Equal(t, "test", ev.Environment)
	require.Len(t, ev.Deployments, 1)
	assert.Equal(t, "https://jira.example.com/browse/DD-7", ev.Deployments[0].TicketReference)
}

func TestReleaseEventsOverWebsocket(t *testing.T) {
	router, srv := setupStreaming(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/apps/dd/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello subscribedMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, subscribedMessage{Type: "subscribed", Project: "dd"}, hello)

	rr := do(t, router, http.MethodGet, "/api/apps/dd/envs/test/versions?dd=2-0", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ev release.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, release.EventRelease, ev.Type)
	require.Len(t, ev.Deployments, 1)
	assert.Equal(t, "2-0", ev.Deployments[0].VersionName)
}

func TestEventsRoute(t *testing.T) {
	router := setupRouter(t, Options{})
	seed(t, router)
	rr := do(t, router, http.MethodGet, "/api/apps/dd/events", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "disabled without a hub")

	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	router = setupRouter(t, Options{Hub: hub})
	rr = do(t, router, http.MethodGet, "/api/apps/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, router, http.MethodPost, "/api/apps/missing/events", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
