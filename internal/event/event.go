package event

import (
	"context"

	"github.com/katatrina/auction-house/internal/auction"
)

// Event is one notification pushed to participants.
type Event struct {
	Type    string               `json:"type"`
	Message string               `json:"message,omitempty"`
	State   *auction.RoundState  `json:"state,omitempty"`
	Outcome *auction.BidOutcome  `json:"outcome,omitempty"`
	Result  *auction.RoundResult `json:"result,omitempty"`

	// set on "participant disconnected" notices; failures while delivering
	// them evict silently instead of producing another notice.
	disconnectNotice bool
}

const (
	EventTypeSystemMessage = "system_message" // Free text: joins, chat, round announcements
	EventTypeAuctionUpdate = "auction_update" // Fresh round snapshot
	EventTypeBidOutcome    = "bid_outcome"    // Result of a bid, sent to the bidder only
	EventTypeBidAccepted   = "bid_accepted"   // A bid raised the price, sent to everyone
	EventTypeRoundWon      = "round_won"      // A round closed
)

// Close codes a push channel is closed with when registration is refused
// after the channel was opened.
const (
	CloseInvalidNickname = 4400
	CloseNameInUse       = 4409
)

// Deliverer is the delivery capability of one participant: a stream writer, an
// SSE channel, a WebSocket, a chat webhook... Deliver must honour ctx.
type Deliverer interface {
	Deliver(ctx context.Context, ev Event) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, ev Event) error

func (f DelivererFunc) Deliver(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

func NewSystemMessage(message string) Event {
	return Event{Type: EventTypeSystemMessage, Message: message}
}

func NewAuctionUpdate(state auction.RoundState) Event {
	return Event{Type: EventTypeAuctionUpdate, State: &state}
}

func NewBidOutcome(outcome auction.BidOutcome) Event {
	return Event{Type: EventTypeBidOutcome, Outcome: &outcome, Message: outcome.Reason}
}

func NewBidAccepted(outcome auction.BidOutcome, message string) Event {
	return Event{Type: EventTypeBidAccepted, Outcome: &outcome, Message: message}
}

func NewRoundWon(result auction.RoundResult, message string) Event {
	return Event{Type: EventTypeRoundWon, Result: &result, Message: message}
}

// IsDisconnectNotice reports whether ev announces a participant lost by the dispatcher.
func (ev Event) IsDisconnectNotice() bool {
	return ev.disconnectNotice
}
