package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultDeliveryTimeout = 5 * time.Second

	observerBuffer = 64
)

type observer struct {
	deliverer Deliverer
	events    chan Event
}

type envelope struct {
	event     Event
	recipient *Session      // nil for broadcasts
	flushed   chan struct{} // marker used by Flush
}

// Dispatcher fans events out to the registered participants.
//
// Events are queued in the order Broadcast/Send are called and delivered by a
// single goroutine (Run): every recipient of one event is done (delivered,
// failed or timed out) before the next event starts. Recipients of the same
// event are served concurrently, each bounded by the delivery timeout, so a
// dead participant delays nobody by more than one timeout per event.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration

	mu        sync.Mutex
	queue     []envelope
	observers []*observer

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}

	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddObserver attaches a sink that sees every broadcast, in order, without
// being a participant. Observers never slow down participants: when one falls
// behind by more than its buffer, events are dropped for it. Observer failures
// are logged and never evict anyone.
func (d *Dispatcher) AddObserver(deliverer Deliverer) {
	o := &observer{
		deliverer: deliverer,
		events:    make(chan Event, observerBuffer),
	}

	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()

	go d.runObserver(o)
}

func (d *Dispatcher) runObserver(o *observer) {
	for {
		select {
		case ev := <-o.events:
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := o.deliverer.Deliver(ctx, ev); err != nil {
				log.Warn().Err(err).Str("type", ev.Type).Msg("observer failed to handle event")
			}
			cancel()
		case <-d.stop:
			return
		}
	}
}

// Broadcast queues ev for every participant registered when it is delivered.
func (d *Dispatcher) Broadcast(ev Event) {
	d.enqueue(envelope{event: ev})
}

// Send queues ev for a single session. It is dropped if, by delivery time,
// the session has left, even when its name was registered again since.
func (d *Dispatcher) Send(session Session, ev Event) {
	d.enqueue(envelope{event: ev, recipient: &session})
}

// Flush waits until every event queued before the call has been processed.
func (d *Dispatcher) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	d.enqueue(envelope{flushed: marker})

	select {
	case <-marker:
		return nil
	case <-d.done:
		return fmt.Errorf("dispatcher stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(env envelope) {
	d.mu.Lock()
	d.queue = append(d.queue, env)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued events until Stop is called.
func (d *Dispatcher) Run() {
	defer close(d.done)

	for {
		env, ok := d.next()
		if !ok {
			return
		}
		d.dispatch(env)
	}
}

// Stop ends Run without draining the queue.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) next() (envelope, bool) {
	for {
		select {
		case <-d.stop:
			return envelope{}, false
		default:
		}

		d.mu.Lock()
		if len(d.queue) > 0 {
			env := d.queue[0]
			d.queue[0] = envelope{}
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return env, true
		}
		d.mu.Unlock()

		select {
		case <-d.wake:
		case <-d.stop:
			return envelope{}, false
		}
	}
}

func (d *Dispatcher) dispatch(env envelope) {
	if env.flushed != nil {
		close(env.flushed)
		return
	}

	var recipients []Session
	if env.recipient != nil {
		session, ok := d.registry.Lookup(env.recipient.Name)
		if !ok || session.ID != env.recipient.ID {
			return
		}
		recipients = []Session{session}
	} else {
		recipients = d.registry.Snapshot()
		d.notifyObservers(env.event)
	}

	failed := make([]bool, len(recipients))
	var wg sync.WaitGroup
	for i, session := range recipients {
		wg.Add(1)
		go func(i int, session Session) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := session.Deliverer.Deliver(ctx, env.event); err != nil {
				log.Warn().Err(err).
					Str("nickname", session.Name).
					Str("type", env.event.Type).
					Msg("failed to deliver event")
				failed[i] = true
			}
		}(i, session)
	}
	wg.Wait()

	for i, session := range recipients {
		if failed[i] {
			d.evict(session, env.event)
		}
	}
}

func (d *Dispatcher) evict(session Session, cause Event) {
	if !d.registry.UnregisterSession(session) {
		return
	}

	log.Warn().Str("nickname", session.Name).Msg("participant evicted after delivery failure")
	if cause.disconnectNotice {
		return
	}

	notice := NewSystemMessage(fmt.Sprintf("%s disconnected (connection lost)", session.Name))
	notice.disconnectNotice = true
	d.Broadcast(notice)
}

func (d *Dispatcher) notifyObservers(ev Event) {
	d.mu.Lock()
	observers := append([]*observer(nil), d.observers...)
	d.mu.Unlock()

	for _, o := range observers {
		select {
		case o.events <- ev:
		default:
			log.Warn().Str("type", ev.Type).Msg("observer is falling behind, event dropped")
		}
	}
}
