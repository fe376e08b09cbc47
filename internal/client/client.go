// Package client is the participant side of the HTTP + WebSocket binding. It
// finds the server through the directory and transparently re-registers once
// when the server stops answering.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/directory"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"resty.dev/v3"
)

const (
	DefaultResolveAttempts = 5
	DefaultResolveInterval = time.Second
	DefaultRequestTimeout  = 10 * time.Second
)

// ErrTransport marks failures where the server could not be reached at all.
var ErrTransport = errors.New("auction server unreachable")

// Listener receives pushed events. Callbacks run on the client's read
// goroutine, one at a time.
type Listener interface {
	OnSystemMessage(message string)
	OnAuctionUpdate(state auction.RoundState)
	OnBidOutcome(outcome auction.BidOutcome)
}

type Config struct {
	Nickname        string
	Binding         string
	Directory       directory.Directory
	Listener        Listener
	ResolveAttempts int
	ResolveInterval time.Duration
	RequestTimeout  time.Duration
}

type Client struct {
	config Config

	mu      sync.Mutex
	http    *resty.Client
	conn    *websocket.Conn
	baseURL string
	closed  bool
}

func New(config Config) *Client {
	if config.ResolveAttempts <= 0 {
		config.ResolveAttempts = DefaultResolveAttempts
	}
	if config.ResolveInterval <= 0 {
		config.ResolveInterval = DefaultResolveInterval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	return &Client{config: config}
}

// Connect resolves the server, clears any stale registration under the same
// nickname, opens the push channel and returns the current round.
func (c *Client) Connect(ctx context.Context) (auction.RoundState, error) {
	if err := c.connect(ctx); err != nil {
		return auction.RoundState{}, err
	}
	return c.State(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	baseURL, err := directory.ResolveWithRetry(ctx, c.config.Directory, c.config.Binding,
		c.config.ResolveAttempts, c.config.ResolveInterval)
	if err != nil {
		return err
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(c.config.RequestTimeout)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = httpClient.Close()
		return errors.New("client is closed")
	}
	c.swapLocked(httpClient, nil, baseURL)
	c.mu.Unlock()

	// A previous session of ours may still hold the nickname.
	if err = c.unregister(ctx); err != nil && !errors.Is(err, ErrTransport) {
		log.Debug().Err(err).Msg("stale registration cleanup failed")
	}

	conn, err := c.dial(ctx, baseURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	log.Info().Str("server", baseURL).Str("nickname", c.config.Nickname).Msg("connected to auction")
	return nil
}

func (c *Client) dial(ctx context.Context, baseURL string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/auction/ws?nickname=" + url.QueryEscape(c.config.Nickname)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			if resp.StatusCode == http.StatusBadRequest {
				return nil, auction.ErrInvalidNickname
			}
			return nil, statusError(resp.StatusCode, "")
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if err = c.awaitCatchUp(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// awaitCatchUp reads the first frame of a fresh push channel. The server
// opens with the round snapshot once registered, or closes the channel when
// the registration was refused after the upgrade.
func (c *Client) awaitCatchUp(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(c.config.RequestTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var ev event.Event
	if err := conn.ReadJSON(&ev); err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			switch closeErr.Code {
			case event.CloseNameInUse:
				return auction.ErrNameInUse
			case event.CloseInvalidNickname:
				return auction.ErrInvalidNickname
			case websocket.CloseTryAgainLater:
				return auction.ErrEngineClosed
			}
		}
		return fmt.Errorf("%w: registration not confirmed: %v", ErrTransport, err)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	c.notify(ev)
	return nil
}

// swapLocked replaces the transport, closing the previous one. mu must be held.
func (c *Client) swapLocked(httpClient *resty.Client, conn *websocket.Conn, baseURL string) {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.http != nil {
		_ = c.http.Close()
	}
	c.http = httpClient
	c.conn = conn
	c.baseURL = baseURL
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			current := c.conn == conn && !c.closed
			c.mu.Unlock()

			if current {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) && closeErr.Text != "" {
					c.notify(event.NewSystemMessage(closeErr.Text))
				}
				log.Warn().Err(err).Msg("push channel closed")
			}
			return
		}

		c.notify(ev)
	}
}

func (c *Client) notify(ev event.Event) {
	listener := c.config.Listener
	if listener == nil {
		return
	}

	switch ev.Type {
	case event.EventTypeAuctionUpdate:
		if ev.State != nil {
			listener.OnAuctionUpdate(*ev.State)
		}
	case event.EventTypeBidOutcome:
		if ev.Outcome != nil {
			listener.OnBidOutcome(*ev.Outcome)
		}
	default:
		if ev.Message != "" {
			listener.OnSystemMessage(ev.Message)
		}
	}
}

// State fetches the current round.
func (c *Client) State(ctx context.Context) (auction.RoundState, error) {
	var state auction.RoundState
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/v1/auction", nil, &state)
	})
	return state, err
}

// Bid submits amount. A rejected bid is returned as an outcome, not an error.
func (c *Client) Bid(ctx context.Context, amount decimal.Decimal) (auction.BidOutcome, error) {
	var outcome auction.BidOutcome
	err := c.withRetry(ctx, func() error {
		body := map[string]interface{}{"nickname": c.config.Nickname, "amount": amount}
		return c.do(ctx, http.MethodPost, "/v1/auction/bids", body, &outcome)
	})
	return outcome, err
}

func (c *Client) Say(ctx context.Context, message string) error {
	return c.withRetry(ctx, func() error {
		body := map[string]string{"nickname": c.config.Nickname, "message": message}
		return c.do(ctx, http.MethodPost, "/v1/auction/messages", body, nil)
	})
}

// Close unregisters and drops the push channel.
func (c *Client) Close(ctx context.Context) error {
	err := c.unregister(ctx)

	c.mu.Lock()
	c.closed = true
	c.swapLocked(nil, nil, "")
	c.mu.Unlock()

	return err
}

func (c *Client) unregister(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v1/participants/"+url.PathEscape(c.config.Nickname), nil, nil)
}

// withRetry runs call and, if the server could not be reached, reconnects
// and runs it exactly once more.
func (c *Client) withRetry(ctx context.Context, call func() error) error {
	err := call()
	if err == nil || !errors.Is(err, ErrTransport) || ctx.Err() != nil {
		return err
	}

	log.Warn().Err(err).Msg("auction server lost, reconnecting")
	if err = c.connect(ctx); err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	return call()
}

func (c *Client) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	c.mu.Lock()
	httpClient := c.http
	c.mu.Unlock()
	if httpClient == nil {
		return fmt.Errorf("%w: not connected", ErrTransport)
	}

	req := httpClient.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.IsError() {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal([]byte(resp.String()), &apiErr)
		return statusError(resp.StatusCode(), apiErr.Error)
	}

	if out != nil {
		if err = json.Unmarshal([]byte(resp.String()), out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// statusError turns an HTTP error answer back into the engine's error values.
// Answers that carry none of them, such as a malformed request body, become a
// plain error with the server's message.
func statusError(status int, message string) error {
	switch status {
	case http.StatusConflict:
		return auction.ErrNameInUse
	case http.StatusNotFound:
		return auction.ErrNotRegistered
	case http.StatusServiceUnavailable:
		return auction.ErrEngineClosed
	}

	for _, sentinel := range []error{
		auction.ErrInvalidNickname,
		auction.ErrEmptyMessage,
		auction.ErrInvalidAmount,
		auction.ErrNoActiveRound,
	} {
		if message == sentinel.Error() {
			return sentinel
		}
	}

	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("auction server answered %d: %s", status, message)
}
