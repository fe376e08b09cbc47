package linestream

import (
	"testing"
	"time"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		line     string
		command  string
		argument string
	}{
		{line: "JOIN alice", command: CommandJoin, argument: "alice"},
		{line: "  bid 510,50  ", command: CommandBid, argument: "510,50"},
		{line: "msg hello there", command: CommandMessage, argument: "hello there"},
		{line: "quit", command: CommandQuit},
		{line: "info_request", command: CommandInfo},
		{line: "   "},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			command, argument := ParseCommand(tc.line)
			assert.Equal(t, tc.command, command)
			assert.Equal(t, tc.argument, argument)
		})
	}
}

func TestFormatEvent(t *testing.T) {
	laptop := auction.Item{
		Name:            "Laptop",
		StartPrice:      decimal.NewFromInt(500),
		MinIncrement:    decimal.NewFromInt(10),
		DurationSeconds: 120,
	}
	end := time.Now().Add(time.Minute)
	active := auction.RoundState{Item: &laptop, CurrentPrice: decimal.NewFromInt(500), RoundEnd: &end, Active: true}
	withBidder := active
	withBidder.CurrentPrice = decimal.NewFromInt(510)
	withBidder.TopBidder = "alice"

	accepted := auction.BidOutcome{Accepted: true, Bidder: "alice", Amount: decimal.NewFromInt(510)}
	rejected := auction.BidOutcome{Accepted: false, Bidder: "bob", Reason: "Bid too low: minimum required 520.00 €"}

	testCases := []struct {
		name string
		ev   event.Event
		line string
		ok   bool
	}{
		{name: "system", ev: event.NewSystemMessage("alice joined the auction"), line: "SYSTEM alice joined the auction", ok: true},
		{name: "info without bidder", ev: event.NewAuctionUpdate(active), line: "INFO Laptop|500.00|10.00", ok: true},
		{name: "info with bidder", ev: event.NewAuctionUpdate(withBidder), line: "INFO Laptop|510.00|10.00|alice", ok: true},
		{name: "info after the auction", ev: event.NewAuctionUpdate(auction.RoundState{})},
		{name: "accepted outcome", ev: event.NewBidOutcome(accepted)},
		{name: "rejected outcome", ev: event.NewBidOutcome(rejected), line: "BIDFAIL Bid too low: minimum required 520.00 €", ok: true},
		{name: "bid accepted", ev: event.NewBidAccepted(accepted, "New bid"), line: "BIDOK 510.00|alice", ok: true},
		{
			name: "won",
			ev:   event.NewRoundWon(auction.RoundResult{Item: laptop, FinalPrice: decimal.NewFromInt(510), Winner: "alice"}, ""),
			line: "WIN Laptop|510.00|alice",
			ok:   true,
		},
		{
			name: "won without bids",
			ev:   event.NewRoundWon(auction.RoundResult{Item: laptop, FinalPrice: decimal.NewFromInt(500)}, ""),
			line: "WIN Laptop|500.00|Nessuno",
			ok:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			line, ok := FormatEvent(tc.ev)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.line, line)
		})
	}
}
