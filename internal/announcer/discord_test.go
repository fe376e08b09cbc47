package announcer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	channelIDs []string
	contents   []string
	err        error
}

func (s *fakeSender) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.channelIDs = append(s.channelIDs, channelID)
	s.contents = append(s.contents, content)
	return &discordgo.Message{Content: content}, nil
}

func activeState(roundID string) auction.RoundState {
	end := time.Now().Add(2 * time.Minute)
	return auction.RoundState{
		RoundID: roundID,
		Item: &auction.Item{
			Name:         "Laptop",
			Description:  "Laptop 16GB RAM",
			StartPrice:   decimal.NewFromInt(500),
			MinIncrement: decimal.NewFromInt(10),
		},
		CurrentPrice: decimal.NewFromInt(500),
		RoundEnd:     &end,
		Active:       true,
	}
}

func TestDiscord_AnnouncesRoundsOnce(t *testing.T) {
	sender := &fakeSender{}
	announcer := &Discord{sender: sender, channelID: "auction-room"}
	ctx := context.Background()

	events := []event.Event{
		event.NewAuctionUpdate(auction.RoundState{}),
		event.NewAuctionUpdate(activeState("laptop-1")),
		event.NewSystemMessage("alice joined the auction"),
		event.NewAuctionUpdate(activeState("laptop-1")),
		event.NewRoundWon(auction.RoundResult{Winner: "alice"}, "Round ended: Laptop won by alice for 510.00 €"),
		event.NewAuctionUpdate(auction.RoundState{}),
		event.NewAuctionUpdate(auction.RoundState{}),
	}
	for _, ev := range events {
		require.NoError(t, announcer.Deliver(ctx, ev))
	}

	require.Len(t, sender.contents, 3)
	assert.Contains(t, sender.contents[0], "New round: **Laptop** (Laptop 16GB RAM), starting at 500.00 €")
	assert.Equal(t, "🏆 Round ended: Laptop won by alice for 510.00 €", sender.contents[1])
	assert.Equal(t, "🏁 Auction ended. No more items available.", sender.contents[2])
	assert.Equal(t, []string{"auction-room", "auction-room", "auction-room"}, sender.channelIDs)
}

func TestDiscord_ReturnsSendErrors(t *testing.T) {
	announcer := &Discord{sender: &fakeSender{err: errors.New("429 too many requests")}, channelID: "auction-room"}

	err := announcer.Deliver(context.Background(), event.NewAuctionUpdate(activeState("laptop-1")))
	require.Error(t, err)

	require.NoError(t, announcer.Deliver(context.Background(), event.NewSystemMessage("chat")))
}
