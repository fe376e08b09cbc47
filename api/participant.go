package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (server *Server) listParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"participants": server.auction.Participants(),
	})
}

// unregisterParticipant is idempotent: unknown nicknames also get 204.
func (server *Server) unregisterParticipant(c *gin.Context) {
	server.auction.Unregister(c.Param("nickname"))
	c.Status(http.StatusNoContent)
}
