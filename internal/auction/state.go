package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoBidderMarker names the winner of a round that closed without bids.
const NoBidderMarker = "Nessuno"

// RoundState is a read-only snapshot of the round owned by the engine.
// Callers always receive copies, never the engine's live value.
type RoundState struct {
	RoundID        string          `json:"round_id,omitempty"`
	Item           *Item           `json:"item,omitempty"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	TopBidder      string          `json:"top_bidder,omitempty"`
	RoundEnd       *time.Time      `json:"round_end,omitempty"`
	Active         bool            `json:"active"`
	RemainingItems int             `json:"remaining_items"`
}

// MinimumBid is the lowest amount the next bid must reach. It is zero when no
// round is active.
func (s RoundState) MinimumBid() decimal.Decimal {
	if !s.Active || s.Item == nil {
		return decimal.Zero
	}
	return s.CurrentPrice.Add(s.Item.MinIncrement)
}

// TimeRemaining reports how long the round has left relative to now.
func (s RoundState) TimeRemaining(now time.Time) time.Duration {
	if !s.Active || s.RoundEnd == nil {
		return 0
	}
	remaining := s.RoundEnd.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy so the caller cannot alias the original's pointers.
func (s RoundState) Clone() RoundState {
	out := s
	if s.Item != nil {
		item := *s.Item
		out.Item = &item
	}
	if s.RoundEnd != nil {
		end := *s.RoundEnd
		out.RoundEnd = &end
	}
	return out
}

// BidOutcome is the result of a single bid evaluation.
type BidOutcome struct {
	Accepted        bool            `json:"accepted"`
	Bidder          string          `json:"bidder"`
	Amount          decimal.Decimal `json:"amount"`
	MinimumRequired decimal.Decimal `json:"minimum_required"`
	Reason          string          `json:"reason"`
	State           RoundState      `json:"state"`
}

// RoundResult records how a round closed.
type RoundResult struct {
	RoundID    string          `json:"round_id"`
	Item       Item            `json:"item"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Winner     string          `json:"winner,omitempty"`
	EndedAt    time.Time       `json:"ended_at"`
}

// HasWinner reports whether at least one bid was accepted during the round.
func (r RoundResult) HasWinner() bool {
	return r.Winner != ""
}

// WinnerOrMarker returns the winner's name or NoBidderMarker.
func (r RoundResult) WinnerOrMarker() string {
	if r.Winner == "" {
		return NoBidderMarker
	}
	return r.Winner
}
