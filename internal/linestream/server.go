// Package linestream exposes the auction over a newline-delimited text
// protocol, one TCP connection per participant.
package linestream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Auction is the part of the engine the line server drives.
type Auction interface {
	Register(name string, deliverer event.Deliverer) (event.Session, auction.RoundState, error)
	Disconnect(session event.Session) bool
	SubmitBid(name string, amount decimal.Decimal) (auction.BidOutcome, error)
	SendChatMessage(name string, message string) error
	Snapshot() auction.RoundState
}

type Server struct {
	auction      Auction
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[*connection]struct{}
	closing  bool
	wg       sync.WaitGroup
}

func NewServer(auction Auction, writeTimeout time.Duration) *Server {
	if writeTimeout <= 0 {
		writeTimeout = event.DefaultDeliveryTimeout
	}

	return &Server{
		auction:      auction,
		writeTimeout: writeTimeout,
		conns:        make(map[*connection]struct{}),
	}
}

// Serve accepts connections until Shutdown. It returns nil after Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return listener.Close()
	}
	s.listener = listener
	s.mu.Unlock()

	log.Info().Str("address", listener.Addr().String()).Msg("line server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		c := newConnection(s, conn)
		if !s.track(c) {
			c.close()
			return nil
		}

		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			c.serve()
		}()
	}
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	listener := s.listener
	conns := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closing
}

func (s *Server) track(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
