// Package announcer mirrors round announcements to a Discord channel.
package announcer

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/util"
)

// Discord rejects messages longer than this.
const maxMessageLength = 2000

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord is a dispatcher observer: it posts new rounds, winners and the end
// of the auction. Bids and chat stay off the channel.
type Discord struct {
	sender    messageSender
	channelID string

	mu          sync.Mutex
	lastRoundID string
	ended       bool
}

func NewDiscord(botToken string, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	return &Discord{
		sender:    session,
		channelID: channelID,
	}, nil
}

func (d *Discord) Deliver(ctx context.Context, ev event.Event) error {
	content, ok := d.render(ev)
	if !ok {
		return nil
	}

	content = util.TruncateContent(content, maxMessageLength-3)
	_, err := d.sender.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) render(ev event.Event) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Type {
	case event.EventTypeRoundWon:
		if ev.Result == nil {
			return "", false
		}
		return fmt.Sprintf("🏆 %s", ev.Message), true

	case event.EventTypeAuctionUpdate:
		if ev.State == nil {
			return "", false
		}
		return d.renderState(*ev.State)
	}

	return "", false
}

// renderState announces a round the first time it is seen, and the end of
// the auction once. mu must be held.
func (d *Discord) renderState(state auction.RoundState) (string, bool) {
	if state.Active && state.Item != nil {
		if state.RoundID == d.lastRoundID {
			return "", false
		}
		d.lastRoundID = state.RoundID
		d.ended = false

		content := fmt.Sprintf("🔨 New round: **%s** (%s), starting at %s, minimum increment %s",
			state.Item.Name, state.Item.Description,
			util.FormatMoney(state.CurrentPrice), util.FormatMoney(state.Item.MinIncrement))
		if state.RoundEnd != nil {
			content += fmt.Sprintf(", closes %s", util.FormatDeadline(*state.RoundEnd))
		}
		return content, true
	}

	if d.lastRoundID == "" || d.ended {
		return "", false
	}
	d.ended = true
	return "🏁 Auction ended. No more items available.", true
}
