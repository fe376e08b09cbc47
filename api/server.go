package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Auction is the engine surface exposed over HTTP.
type Auction interface {
	Register(name string, deliverer event.Deliverer) (event.Session, auction.RoundState, error)
	Unregister(name string) bool
	Disconnect(session event.Session) bool
	SubmitBid(name string, amount decimal.Decimal) (auction.BidOutcome, error)
	SendChatMessage(name string, message string) error
	Snapshot() auction.RoundState
	Results() []auction.RoundResult
	Participants() []string
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	auction    Auction
	config     util.Config

	// cancels the base context of every request, which ends SSE streams
	cancelRequests context.CancelFunc
}

// NewServer creates a new HTTP server and set up routing.
func NewServer(auction Auction, config util.Config) *Server {
	server := &Server{
		auction: auction,
		config:  config,
	}

	server.setupRouter()

	baseCtx, cancel := context.WithCancel(context.Background())
	server.cancelRequests = cancel
	server.httpServer = &http.Server{
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	return server
}

// setupRouter configures the HTTP server routes.
func (server *Server) setupRouter() *gin.Engine {
	if server.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	// cors.New panics on an empty origin list
	if len(server.config.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	router.GET("/healthz", server.healthCheck)

	v1 := router.Group("/v1")

	auctionGroup := v1.Group("/auction")
	{
		auctionGroup.GET("", server.getAuctionState)
		auctionGroup.GET("/results", server.listRoundResults)
		auctionGroup.POST("/bids", server.submitBid)
		auctionGroup.POST("/messages", server.sendChatMessage)

		// Registration happens by opening a push channel
		auctionGroup.GET("/ws", server.registerWebSocket)
		auctionGroup.GET("/stream", server.streamAuctionEvents)
	}

	participantGroup := v1.Group("/participants")
	{
		participantGroup.GET("", server.listParticipants)
		participantGroup.DELETE("/:nickname", server.unregisterParticipant)
	}

	server.router = router
	return router
}

// Handler exposes the router, for tests and custom listeners.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve runs the HTTP server on an already bound listener.
func (server *Server) Serve(listener net.Listener) error {
	log.Info().Str("address", listener.Addr().String()).Msg("HTTP server listening")

	err := server.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and ends open event streams. WebSocket
// connections are hijacked and close with the process.
func (server *Server) Shutdown(ctx context.Context) error {
	server.cancelRequests()
	return server.httpServer.Shutdown(ctx)
}

func (server *Server) healthCheck(c *gin.Context) {
	state := server.auction.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"active":       state.Active,
		"participants": len(server.auction.Participants()),
	})
}
