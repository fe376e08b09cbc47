package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/validator"
	"github.com/rs/zerolog/log"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 512
)

// wsDeliverer pushes events as JSON text frames. gorilla allows one
// concurrent writer, so pings and events share mu.
type wsDeliverer struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (d *wsDeliverer) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(d.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

func (d *wsDeliverer) Deliver(ctx context.Context, ev event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.conn.SetWriteDeadline(d.deadline(ctx)); err != nil {
		return err
	}
	return d.conn.WriteJSON(ev)
}

func (d *wsDeliverer) ping() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.conn.WriteControl(websocket.PingMessage, nil, d.deadline(context.Background()))
}

func (d *wsDeliverer) closeWith(code int, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_ = d.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), d.deadline(context.Background()))
}

func (d *wsDeliverer) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func closeCode(err error) int {
	switch {
	case errors.Is(err, auction.ErrNameInUse):
		return event.CloseNameInUse
	case auction.IsValidation(err):
		return event.CloseInvalidNickname
	case errors.Is(err, auction.ErrEngineClosed):
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseInternalServerErr
	}
}

func (server *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(server.config.AllowedOrigins, "*") || slices.Contains(server.config.AllowedOrigins, origin)
}

// registerWebSocket registers the nickname with the WebSocket as its push
// channel. The participant stays registered until the socket closes or an
// explicit unregister.
func (server *Server) registerWebSocket(c *gin.Context) {
	nickname, ok := server.requireNickname(c)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     server.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already answered the request
		log.Warn().Err(err).Str("nickname", nickname).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	deliverer := &wsDeliverer{conn: conn, writeTimeout: server.config.DeliveryTimeout}
	if deliverer.writeTimeout <= 0 {
		deliverer.writeTimeout = event.DefaultDeliveryTimeout
	}

	session, _, err := server.auction.Register(nickname, deliverer)
	if err != nil {
		deliverer.closeWith(closeCode(err), err.Error())
		return
	}
	defer server.auction.Disconnect(session)

	log.Info().Str("nickname", nickname).Str("remote", c.ClientIP()).Msg("websocket participant registered")

	done := make(chan struct{})
	defer close(done)
	go deliverer.keepAlive(done)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Clients only push through the HTTP endpoints; reading keeps pongs and
	// the close handshake flowing.
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			return
		}
	}
}

// requireNickname validates the nickname query parameter before any push
// channel is opened. It writes the error response itself.
func (server *Server) requireNickname(c *gin.Context) (string, bool) {
	raw := c.Query("nickname")
	if raw == "" {
		c.JSON(http.StatusBadRequest, failedValidationError([]*FieldViolation{
			fieldViolation("nickname", ErrMissingNickname),
		}))
		return "", false
	}

	nickname, err := validator.SanitizeNickname(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, failedValidationError([]*FieldViolation{
			fieldViolation("nickname", err),
		}))
		return "", false
	}

	if slices.Contains(server.auction.Participants(), nickname) {
		c.JSON(http.StatusConflict, errorResponse(auction.ErrNameInUse))
		return "", false
	}

	return nickname, true
}
