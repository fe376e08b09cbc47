package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/engine"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/scheduler"
	"github.com/katatrina/auction-house/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()

	registry := event.NewRegistry()
	dispatcher := event.NewDispatcher(registry, time.Second)
	go dispatcher.Run()

	local, err := scheduler.NewLocal()
	require.NoError(t, err)

	auctionEngine := engine.New(auction.DefaultCatalog(), registry, dispatcher, local)
	require.NoError(t, auctionEngine.Start())

	config := util.Config{
		Environment:     "test",
		AllowedOrigins:  []string{"http://localhost:3000"},
		DeliveryTimeout: time.Second,
	}
	server := NewServer(auctionEngine, config)
	httpServer := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		httpServer.Close()
		_ = auctionEngine.Shutdown()
	})

	return auctionEngine, httpServer
}

func wsURL(server *httptest.Server, nickname string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/auction/ws?nickname=" + nickname
}

func dialParticipant(t *testing.T, server *httptest.Server, nickname string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, nickname), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// nextEvent reads pushed events until one matches eventType.
func nextEvent(t *testing.T, conn *websocket.Conn, eventType string) event.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev event.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == eventType {
			return ev
		}
	}
}

func postJSON(t *testing.T, server *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGetAuctionState(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/auction")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state auction.RoundState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.True(t, state.Active)
	require.NotNil(t, state.Item)
	assert.Equal(t, "Laptop", state.Item.Name)
	assert.Equal(t, "500", state.CurrentPrice.String())
	assert.Equal(t, 2, state.RemainingItems)
}

func TestRegisterWebSocket_CatchUpAndDuplicate(t *testing.T) {
	_, server := newTestServer(t)

	alice := dialParticipant(t, server, "alice")
	update := nextEvent(t, alice, event.EventTypeAuctionUpdate)
	require.NotNil(t, update.State)
	assert.Equal(t, "Laptop", update.State.Item.Name)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(server, "a!"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitBid(t *testing.T) {
	_, server := newTestServer(t)

	resp := postJSON(t, server, "/v1/auction/bids", gin.H{"nickname": "mallory", "amount": 600})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	alice := dialParticipant(t, server, "alice")
	nextEvent(t, alice, event.EventTypeAuctionUpdate)

	testCases := []struct {
		name     string
		body     gin.H
		status   int
		accepted bool
	}{
		{name: "missing nickname", body: gin.H{"amount": 600}, status: http.StatusBadRequest},
		{name: "zero amount", body: gin.H{"nickname": "alice", "amount": 0}, status: http.StatusUnprocessableEntity},
		{name: "too low", body: gin.H{"nickname": "alice", "amount": 505}, status: http.StatusOK},
		{name: "minimum", body: gin.H{"nickname": "alice", "amount": "510.00"}, status: http.StatusOK, accepted: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, server, "/v1/auction/bids", tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.status != http.StatusOK {
				return
			}

			var outcome auction.BidOutcome
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
			assert.Equal(t, tc.accepted, outcome.Accepted)
		})
	}

	accepted := nextEvent(t, alice, event.EventTypeBidAccepted)
	assert.Equal(t, "alice", accepted.Outcome.Bidder)
	assert.Equal(t, "New bid from alice: 510.00 €", accepted.Message)
}

func TestSendChatMessage(t *testing.T) {
	_, server := newTestServer(t)

	bob := dialParticipant(t, server, "bob")
	nextEvent(t, bob, event.EventTypeAuctionUpdate)

	resp := postJSON(t, server, "/v1/auction/messages", gin.H{"nickname": "bob", "message": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server, "/v1/auction/messages", gin.H{"nickname": "carol", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, server, "/v1/auction/messages", gin.H{"nickname": "bob", "message": "hi\nall"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		ev := nextEvent(t, bob, event.EventTypeSystemMessage)
		if ev.Message == "[bob] hi all" {
			break
		}
	}
}

func TestUnregisterParticipant(t *testing.T) {
	auctionEngine, server := newTestServer(t)

	alice := dialParticipant(t, server, "alice")
	nextEvent(t, alice, event.EventTypeAuctionUpdate)
	require.Equal(t, []string{"alice"}, auctionEngine.Participants())

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/v1/participants/alice", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	assert.Empty(t, auctionEngine.Participants())
}

func TestWebSocketCloseUnregisters(t *testing.T) {
	auctionEngine, server := newTestServer(t)

	alice := dialParticipant(t, server, "alice")
	nextEvent(t, alice, event.EventTypeAuctionUpdate)
	require.NoError(t, alice.Close())

	assert.Eventually(t, func() bool {
		return len(auctionEngine.Participants()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStreamAuctionEvents(t *testing.T) {
	auctionEngine, server := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/auction/stream?nickname=carol", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event: auction_update", scanner.Text())
	require.True(t, scanner.Scan())
	assert.True(t, strings.HasPrefix(scanner.Text(), "data: "))

	var ev event.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(scanner.Text(), "data: ")), &ev))
	assert.Equal(t, "Laptop", ev.State.Item.Name)
	assert.Equal(t, []string{"carol"}, auctionEngine.Participants())

	cancel()
	assert.Eventually(t, func() bool {
		return len(auctionEngine.Participants()) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHealthCheck(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status       string `json:"status"`
		Active       bool   `json:"active"`
		Participants int    `json:"participants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Active)
	assert.Equal(t, 0, body.Participants)
}
