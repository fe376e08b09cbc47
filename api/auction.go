package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (server *Server) getAuctionState(c *gin.Context) {
	c.JSON(http.StatusOK, server.auction.Snapshot())
}

func (server *Server) listRoundResults(c *gin.Context) {
	c.JSON(http.StatusOK, server.auction.Results())
}

type submitBidRequest struct {
	Nickname string          `json:"nickname" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// submitBid answers with the bid outcome. A rejected bid is still a 200; the
// outcome's "accepted" field tells the difference.
func (server *Server) submitBid(c *gin.Context) {
	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid request body: %w", err)))
		return
	}

	outcome, err := server.auction.SubmitBid(req.Nickname, req.Amount)
	if err != nil {
		c.JSON(errorStatus(err), errorResponse(err))
		return
	}

	c.JSON(http.StatusOK, outcome)
}

type sendChatMessageRequest struct {
	Nickname string `json:"nickname" binding:"required"`
	Message  string `json:"message"`
}

func (server *Server) sendChatMessage(c *gin.Context) {
	var req sendChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid request body: %w", err)))
		return
	}

	if err := server.auction.SendChatMessage(req.Nickname, req.Message); err != nil {
		c.JSON(errorStatus(err), errorResponse(err))
		return
	}

	c.Status(http.StatusAccepted)
}
