// Package engine runs the auction rounds: it owns the item queue and the live
// round, arbitrates bids and decides when rounds close.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/scheduler"
	"github.com/katatrina/auction-house/internal/util"
	"github.com/katatrina/auction-house/internal/validator"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Engine is the auction state machine.
//
// Every read and write of the round fields and of the item queue happens
// under mu. Notifications are queued on the dispatcher while mu is held, so
// participants observe them in the order the engine produced them, but the
// actual delivery happens outside the lock.
type Engine struct {
	registry   *event.Registry
	dispatcher *event.Dispatcher
	scheduler  scheduler.RoundScheduler
	fallback   scheduler.RoundScheduler
	now        func() time.Time

	scheduleAttempts int
	scheduleBackoff  time.Duration

	mu           sync.Mutex
	queue        []auction.Item
	item         *auction.Item
	currentPrice decimal.Decimal
	topBidder    string
	roundEnd     *time.Time
	roundID      string
	active       bool
	timer        scheduler.Token
	timerOwner   scheduler.RoundScheduler
	results      []auction.RoundResult
	started      bool
	closed       bool
}

const (
	DefaultScheduleAttempts = 3
	DefaultScheduleBackoff  = 100 * time.Millisecond
)

type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithScheduleRetry sets how many times scheduling a round expiry is tried
// before giving up, and the first pause between tries. Pauses double.
func WithScheduleRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.scheduleAttempts = attempts
		e.scheduleBackoff = backoff
	}
}

// WithFallbackScheduler sets the scheduler used for a round expiry when the
// main scheduler keeps failing. It is shut down with the engine.
func WithFallbackScheduler(fallback scheduler.RoundScheduler) Option {
	return func(e *Engine) {
		e.fallback = fallback
	}
}

func New(items []auction.Item, registry *event.Registry, dispatcher *event.Dispatcher, roundScheduler scheduler.RoundScheduler, opts ...Option) *Engine {
	e := &Engine{
		registry:   registry,
		dispatcher: dispatcher,
		scheduler:  roundScheduler,
		now:        time.Now,
		queue:      append([]auction.Item(nil), items...),

		scheduleAttempts: DefaultScheduleAttempts,
		scheduleBackoff:  DefaultScheduleBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scheduleAttempts <= 0 {
		e.scheduleAttempts = 1
	}
	return e
}

// Start opens the first round. Calling it twice is a programming error.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return auction.ErrEngineClosed
	}
	if e.started {
		return auction.ErrAlreadyStarted
	}
	e.started = true

	log.Info().Int("items", len(e.queue)).Msg("auction engine started")
	e.advance()
	return nil
}

// Register binds name to deliverer and returns the round state the new
// participant starts from. The same state is pushed to it as its first event,
// ahead of any later broadcast.
func (e *Engine) Register(name string, deliverer event.Deliverer) (event.Session, auction.RoundState, error) {
	nickname, err := validator.SanitizeNickname(name)
	if err != nil {
		return event.Session{}, auction.RoundState{}, auction.ErrInvalidNickname
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return event.Session{}, auction.RoundState{}, auction.ErrEngineClosed
	}

	session, err := e.registry.Register(nickname, deliverer)
	if err != nil {
		return event.Session{}, auction.RoundState{}, err
	}

	state := e.snapshotLocked()
	e.dispatcher.Send(session, event.NewAuctionUpdate(state))
	e.dispatcher.Broadcast(event.NewSystemMessage(fmt.Sprintf("%s joined the auction", nickname)))

	return session, state.Clone(), nil
}

// Unregister removes name. It reports whether a participant was removed;
// unknown names are ignored and announce nothing.
func (e *Engine) Unregister(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, removed := e.registry.Unregister(name)
	if removed {
		e.dispatcher.Broadcast(event.NewSystemMessage(fmt.Sprintf("%s left the auction", session.Name)))
	}
	return removed
}

// Disconnect removes session when its transport goes away, unless the name
// has since been registered again by someone else.
func (e *Engine) Disconnect(session event.Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.registry.UnregisterSession(session)
	if removed {
		e.dispatcher.Broadcast(event.NewSystemMessage(fmt.Sprintf("%s left the auction", session.Name)))
	}
	return removed
}

// SubmitBid evaluates a bid against the live round.
//
// A bid must reach currentPrice + minIncrement. Bids are judged one at a time
// in lock order, so among concurrent bids that qualify against the same
// price the first one evaluated wins and the others are judged against the
// price it set. A rejected bid is an outcome, not an error.
func (e *Engine) SubmitBid(name string, amount decimal.Decimal) (auction.BidOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bidder, ok := e.registry.Lookup(name)
	if !ok {
		return auction.BidOutcome{}, auction.ErrNotRegistered
	}
	if !e.active {
		return auction.BidOutcome{}, auction.ErrNoActiveRound
	}
	if err := validator.ValidateAmount(amount); err != nil {
		return auction.BidOutcome{}, auction.ErrInvalidAmount
	}

	minimumRequired := e.currentPrice.Add(e.item.MinIncrement)
	if amount.LessThan(minimumRequired) {
		outcome := auction.BidOutcome{
			Accepted:        false,
			Bidder:          name,
			Amount:          amount,
			MinimumRequired: minimumRequired,
			Reason:          fmt.Sprintf("Bid too low: minimum required %s", util.FormatMoney(minimumRequired)),
			State:           e.snapshotLocked(),
		}
		e.dispatcher.Send(bidder, event.NewBidOutcome(outcome))
		return outcome, nil
	}

	e.currentPrice = amount
	e.topBidder = name

	state := e.snapshotLocked()
	outcome := auction.BidOutcome{
		Accepted:        true,
		Bidder:          name,
		Amount:          amount,
		MinimumRequired: minimumRequired,
		Reason:          "Bid accepted",
		State:           state,
	}

	log.Info().
		Str("round_id", e.roundID).
		Str("bidder", name).
		Str("amount", amount.String()).
		Msg("bid accepted")

	e.dispatcher.Send(bidder, event.NewBidOutcome(outcome))
	e.dispatcher.Broadcast(event.NewAuctionUpdate(state))
	e.dispatcher.Broadcast(event.NewBidAccepted(outcome,
		fmt.Sprintf("New bid from %s: %s", name, util.FormatMoney(amount))))

	return outcome, nil
}

// SendChatMessage broadcasts a chat line on behalf of name.
func (e *Engine) SendChatMessage(name string, message string) error {
	sanitized := validator.SanitizeMessage(message)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry.Lookup(name); !ok {
		return auction.ErrNotRegistered
	}
	if sanitized == "" {
		return auction.ErrEmptyMessage
	}

	e.dispatcher.Broadcast(event.NewSystemMessage(fmt.Sprintf("[%s] %s", name, sanitized)))
	return nil
}

// Snapshot returns a copy of the round state.
func (e *Engine) Snapshot() auction.RoundState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshotLocked()
}

// Results lists the rounds closed so far, oldest first.
func (e *Engine) Results() []auction.RoundResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]auction.RoundResult(nil), e.results...)
}

// Participants lists the registered nicknames.
func (e *Engine) Participants() []string {
	return e.registry.Names()
}

// Shutdown cancels the pending round timer, stops the scheduler and the
// dispatcher. Queued notifications are dropped.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	token, owner := e.timer, e.timerOwner
	e.timer, e.timerOwner = "", nil
	e.mu.Unlock()

	if token != "" && owner != nil {
		owner.Cancel(token)
	}
	err := e.scheduler.Shutdown()
	if e.fallback != nil {
		err = errors.Join(err, e.fallback.Shutdown())
	}
	e.dispatcher.Stop()

	log.Info().Msg("auction engine stopped")
	return err
}

// onRoundExpired runs on the scheduler's goroutine. Timers that belong to a
// round which is already over are ignored.
func (e *Engine) onRoundExpired(roundID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.active || e.roundID != roundID {
		log.Debug().Str("round_id", roundID).Msg("stale round timer ignored")
		return
	}
	e.timer, e.timerOwner = "", nil
	e.closeRoundLocked()
}

// closeRoundLocked records the result of the live round, announces it and
// opens the next one. mu must be held.
func (e *Engine) closeRoundLocked() {
	e.active = false

	result := auction.RoundResult{
		RoundID:    e.roundID,
		Item:       *e.item,
		FinalPrice: e.currentPrice,
		Winner:     e.topBidder,
		EndedAt:    e.now(),
	}
	e.results = append(e.results, result)

	log.Info().
		Str("round_id", result.RoundID).
		Str("item", result.Item.Name).
		Str("winner", result.WinnerOrMarker()).
		Str("final_price", result.FinalPrice.String()).
		Msg("round ended")

	e.dispatcher.Broadcast(event.NewRoundWon(result, fmt.Sprintf("Round ended: %s won by %s for %s",
		result.Item.Name, result.WinnerOrMarker(), util.FormatMoney(result.FinalPrice))))

	e.advance()
}

// advance opens the next round, or ends the auction when the queue is empty.
// A round whose expiry cannot be scheduled is closed right away, so the
// auction never stays open without a timer. mu must be held.
func (e *Engine) advance() {
	e.cancelTimerLocked()

	if len(e.queue) == 0 {
		e.item = nil
		e.currentPrice = decimal.Zero
		e.topBidder = ""
		e.roundEnd = nil
		e.roundID = ""
		e.active = false

		log.Info().Int("rounds", len(e.results)).Msg("auction ended")
		e.dispatcher.Broadcast(event.NewSystemMessage("Auction ended. No more items available."))
		e.dispatcher.Broadcast(event.NewAuctionUpdate(e.snapshotLocked()))
		return
	}

	item := e.queue[0]
	e.queue = e.queue[1:]

	roundEnd := e.now().Add(item.Duration())
	roundID := util.GenerateRoundID(item.Name)

	e.item = &item
	e.currentPrice = item.StartPrice
	e.topBidder = ""
	e.roundEnd = &roundEnd
	e.roundID = roundID
	e.active = true

	log.Info().
		Str("round_id", roundID).
		Str("item", item.Name).
		Str("start_price", item.StartPrice.String()).
		Time("round_end", roundEnd).
		Msg("round started")

	e.dispatcher.Broadcast(event.NewSystemMessage(fmt.Sprintf(
		"New item: %s - %s (starting price %s, minimum increment %s)",
		item.Name, item.Description, util.FormatMoney(item.StartPrice), util.FormatMoney(item.MinIncrement))))
	e.dispatcher.Broadcast(event.NewAuctionUpdate(e.snapshotLocked()))

	if err := e.scheduleExpiryLocked(roundID, roundEnd); err != nil {
		log.Error().Err(err).Str("round_id", roundID).Msg("round closed early: its end could not be scheduled")
		e.closeRoundLocked()
	}
}

// scheduleExpiryLocked arms the timer of the live round. The main scheduler
// is retried with a doubling pause, then the fallback is tried once.
// mu must be held.
func (e *Engine) scheduleExpiryLocked(roundID string, roundEnd time.Time) error {
	action := func() {
		e.onRoundExpired(roundID)
	}
	remaining := func() time.Duration {
		if delay := roundEnd.Sub(e.now()); delay > 0 {
			return delay
		}
		return 0
	}

	var errs []error
	backoff := e.scheduleBackoff
	for attempt := 1; attempt <= e.scheduleAttempts; attempt++ {
		token, err := e.scheduler.ScheduleAfter(remaining(), action)
		if err == nil {
			e.timer, e.timerOwner = token, e.scheduler
			return nil
		}
		errs = append(errs, err)
		log.Warn().Err(err).Str("round_id", roundID).Int("attempt", attempt).Msg("failed to schedule end of round")

		if attempt < e.scheduleAttempts && backoff > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	if e.fallback != nil {
		token, err := e.fallback.ScheduleAfter(remaining(), action)
		if err == nil {
			log.Warn().Str("round_id", roundID).Msg("end of round scheduled on the fallback scheduler")
			e.timer, e.timerOwner = token, e.fallback
			return nil
		}
		errs = append(errs, err)
	}

	return fmt.Errorf("failed to schedule end of round %s: %w", roundID, errors.Join(errs...))
}

func (e *Engine) cancelTimerLocked() {
	if e.timer == "" {
		return
	}
	if e.timerOwner != nil {
		e.timerOwner.Cancel(e.timer)
	}
	e.timer, e.timerOwner = "", nil
}

func (e *Engine) snapshotLocked() auction.RoundState {
	state := auction.RoundState{
		RoundID:        e.roundID,
		Active:         e.active,
		RemainingItems: len(e.queue),
	}
	if e.item == nil {
		return state
	}

	item := *e.item
	state.Item = &item
	state.CurrentPrice = e.currentPrice
	state.TopBidder = e.topBidder
	if e.roundEnd != nil {
		end := *e.roundEnd
		state.RoundEnd = &end
	}
	return state
}
