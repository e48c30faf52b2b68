// Package recorder drives periodic sampling: it pulls fixes from the
// position source and rates from the throughput probe, appends the result
// to the current journey, and persists the whole journey after every
// sample so a crash loses at most the in-flight one.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AnthonyJS/SignalStrength/internal/journey"
	"github.com/AnthonyJS/SignalStrength/internal/position"
	"github.com/AnthonyJS/SignalStrength/internal/probe"
	"github.com/AnthonyJS/SignalStrength/internal/stream"
)

type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
)

var (
	// ErrAlreadyRecording rejects a second start while a session exists.
	ErrAlreadyRecording = errors.New("recorder: a session is already in progress")
	// ErrPermissionRequired is the recoverable outcome of a denied
	// position check: no session was started, the user can grant access
	// and try again.
	ErrPermissionRequired = errors.New("recorder: position permission required")
)

// Store is the slice of the journey store the controller needs.
type Store interface {
	Put(ctx context.Context, j journey.Journey) error
}

// Listener receives each successful sample together with a snapshot of the
// journey it was appended to. At most one listener is registered.
type Listener func(sample journey.Sample, j journey.Journey)

// Controller owns the single recording session. The sampling loop runs in
// one goroutine, so the steps of a cycle never interleave with another
// cycle; the position watch only writes the last-fix slot.
type Controller struct {
	store    Store
	source   position.Source
	prober   probe.Prober
	hub      *stream.Hub
	interval time.Duration

	mu       sync.Mutex
	state    State
	current  *journey.Journey
	lastFix  *position.Fix
	cancel   context.CancelFunc
	loopDone chan struct{}
	listener Listener

	nowFn func() time.Time
}

func NewController(store Store, source position.Source, prober probe.Prober, hub *stream.Hub, interval time.Duration) *Controller {
	return &Controller{
		store:    store,
		source:   source,
		prober:   prober,
		hub:      hub,
		interval: interval,
		state:    StateIdle,
		nowFn:    time.Now,
	}
}

// SetListener registers the single live-consumption callback. A nil
// listener unregisters.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status reports the state and, while a session exists, a snapshot of the
// current journey.
func (c *Controller) Status() (State, *journey.Journey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return c.state, nil
	}
	snapshot := c.current.Clone()
	return c.state, &snapshot
}

// Start begins a recording session. The one-shot position check runs
// before any resource is committed; a denial lands back in Idle with
// ErrPermissionRequired and nothing persisted.
func (c *Controller) Start(ctx context.Context, name string) (journey.Journey, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return journey.Journey{}, ErrAlreadyRecording
	}
	c.state = StateStarting
	c.mu.Unlock()

	if _, err := c.source.Current(ctx); err != nil {
		c.setState(StateIdle)
		if errors.Is(err, position.ErrPermissionDenied) {
			return journey.Journey{}, ErrPermissionRequired
		}
		return journey.Journey{}, fmt.Errorf("recorder: position check: %w", err)
	}

	j, err := journey.New(name, c.nowFn())
	if err != nil {
		c.setState(StateIdle)
		return journey.Journey{}, err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	fixes, err := c.source.Watch(sessionCtx)
	if err != nil {
		cancel()
		c.setState(StateIdle)
		return journey.Journey{}, fmt.Errorf("recorder: position watch: %w", err)
	}

	c.mu.Lock()
	c.current = &j
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.state = StateRecording
	loopDone := c.loopDone
	c.mu.Unlock()

	go c.watchFixes(fixes)
	go c.run(sessionCtx, loopDone)

	return j.Clone(), nil
}

// Stop ends the session: sampling loop and position watch are released
// first, then the journey is ended and persisted one final time. A failed
// final Put is returned but the controller still lands in Idle; the
// incremental Puts already captured everything before the last cycle.
// Stopping while Idle is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	cancel := c.cancel
	loopDone := c.loopDone
	c.mu.Unlock()

	cancel()
	<-loopDone

	c.mu.Lock()
	j := c.current
	c.current = nil
	c.lastFix = nil
	c.cancel = nil
	c.loopDone = nil
	c.mu.Unlock()

	var putErr error
	if j != nil {
		if err := j.End(c.nowFn()); err != nil {
			putErr = err
		} else {
			putErr = c.store.Put(ctx, *j)
		}
	}

	c.setState(StateIdle)

	if putErr != nil {
		return fmt.Errorf("recorder: final persist: %w", putErr)
	}
	return nil
}

// run owns the sampling schedule: one immediate cycle, then the ticker.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.sampleCycle(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sampleCycle(ctx)
		}
	}
}

// watchFixes drains the subscription into the last-fix slot, last write
// wins. It exits when the source closes the channel on cancellation.
func (c *Controller) watchFixes(fixes <-chan position.Fix) {
	for fix := range fixes {
		fix := fix
		c.mu.Lock()
		if c.state == StateRecording {
			c.lastFix = &fix
		}
		c.mu.Unlock()
	}
}

// sampleCycle performs one measurement. Every failure is logged and the
// cycle skipped; a bad GPS or network moment never ends the session.
func (c *Controller) sampleCycle(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	fix := c.lastFix
	c.mu.Unlock()

	if fix == nil {
		// The subscription has not delivered yet; a one-shot request
		// keeps the first sample from waiting on it.
		f, err := c.source.Current(ctx)
		if err != nil {
			log.Printf("recorder: no position, cycle skipped: %v", err)
			return
		}
		fix = &f
	}

	res := c.prober.Measure(ctx)

	sample, err := journey.NewSample(c.nowFn().UnixMilli(), fix.Latitude, fix.Longitude, fix.Accuracy, res.Mbps, res.Transport)
	if err != nil {
		log.Printf("recorder: bad sample, cycle skipped: %v", err)
		return
	}

	c.mu.Lock()
	if c.state != StateRecording || c.current == nil {
		// Stop won the race while we were probing; this session is over
		// and the result is discarded.
		c.mu.Unlock()
		return
	}
	if err := c.current.Append(sample); err != nil {
		c.mu.Unlock()
		log.Printf("recorder: append failed, cycle skipped: %v", err)
		return
	}
	snapshot := c.current.Clone()
	listener := c.listener
	c.mu.Unlock()

	if err := c.store.Put(ctx, snapshot); err != nil {
		log.Printf("recorder: persist failed, recording continues: %v", err)
	}

	if c.hub != nil {
		if payload, err := json.Marshal(sample); err == nil {
			c.hub.Broadcast(snapshot.ID, payload)
		}
	}
	if listener != nil {
		listener(sample, snapshot)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
