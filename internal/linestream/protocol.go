package linestream

import (
	"fmt"
	"strings"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/util"
)

// Client commands.
const (
	CommandJoin    = "JOIN"
	CommandMessage = "MSG"
	CommandBid     = "BID"
	CommandQuit    = "QUIT"
	CommandInfo    = "INFO_REQUEST"
)

// Server line prefixes.
const (
	PrefixSystem  = "SYSTEM"
	PrefixInfo    = "INFO"
	PrefixBidOK   = "BIDOK"
	PrefixBidFail = "BIDFAIL"
	PrefixWin     = "WIN"
)

// ParseCommand splits a client line into an upper-cased command and its
// argument.
func ParseCommand(line string) (command string, argument string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}

	command, argument, _ = strings.Cut(line, " ")
	return strings.ToUpper(command), strings.TrimSpace(argument)
}

// FormatEvent renders ev as one protocol line. Events with no line
// representation report false: accepted bid outcomes (the BIDOK broadcast
// already covers the bidder) and snapshots without an active round.
func FormatEvent(ev event.Event) (string, bool) {
	switch ev.Type {
	case event.EventTypeSystemMessage:
		return fmt.Sprintf("%s %s", PrefixSystem, ev.Message), true

	case event.EventTypeAuctionUpdate:
		if ev.State == nil {
			return "", false
		}
		return FormatState(*ev.State)

	case event.EventTypeBidOutcome:
		if ev.Outcome == nil || ev.Outcome.Accepted {
			return "", false
		}
		return fmt.Sprintf("%s %s", PrefixBidFail, ev.Outcome.Reason), true

	case event.EventTypeBidAccepted:
		if ev.Outcome == nil {
			return "", false
		}
		return fmt.Sprintf("%s %s|%s", PrefixBidOK, util.FormatPrice(ev.Outcome.Amount), ev.Outcome.Bidder), true

	case event.EventTypeRoundWon:
		if ev.Result == nil {
			return "", false
		}
		return fmt.Sprintf("%s %s|%s|%s", PrefixWin,
			ev.Result.Item.Name, util.FormatPrice(ev.Result.FinalPrice), ev.Result.WinnerOrMarker()), true
	}

	return "", false
}

// FormatState renders an INFO line, e.g. "INFO Laptop|510.00|10.00|alice".
func FormatState(state auction.RoundState) (string, bool) {
	if !state.Active || state.Item == nil {
		return "", false
	}

	fields := []string{
		state.Item.Name,
		util.FormatPrice(state.CurrentPrice),
		util.FormatPrice(state.Item.MinIncrement),
	}
	if state.TopBidder != "" {
		fields = append(fields, state.TopBidder)
	}
	return fmt.Sprintf("%s %s", PrefixInfo, strings.Join(fields, "|")), true
}
