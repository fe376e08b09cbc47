package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/auction-house/internal/event"
)

var errStreamClosed = errors.New("event stream closed")

// sseDeliverer hands events to the request goroutine, which owns the writer.
type sseDeliverer struct {
	events chan event.Event
	done   chan struct{}
}

func (d *sseDeliverer) Deliver(ctx context.Context, ev event.Event) error {
	select {
	case d.events <- ev:
		return nil
	case <-d.done:
		return errStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamAuctionEvents registers the nickname with a Server-Sent Events stream
// as its push channel. Data is sent as 'event: {type}\ndata: {json}'.
func (server *Server) streamAuctionEvents(c *gin.Context) {
	nickname, ok := server.requireNickname(c)
	if !ok {
		return
	}

	deliverer := &sseDeliverer{
		events: make(chan event.Event, 16),
		done:   make(chan struct{}),
	}
	defer close(deliverer.done)

	session, _, err := server.auction.Register(nickname, deliverer)
	if err != nil {
		c.JSON(errorStatus(err), errorResponse(err))
		return
	}
	defer server.auction.Disconnect(session)

	// Thiết lập header SSE
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case ev := <-deliverer.events:
			data, _ := json.Marshal(ev)
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data)
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
