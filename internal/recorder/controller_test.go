package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnthonyJS/SignalStrength/internal/journey"
	"github.com/AnthonyJS/SignalStrength/internal/position"
	"github.com/AnthonyJS/SignalStrength/internal/probe"
)

type fakeSource struct {
	mu         sync.Mutex
	currentErr error
	watchErr   error
	fix        position.Fix
	watchCh    chan position.Fix
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		fix: position.Fix{Latitude: -6.2, Longitude: 106.8, Accuracy: 10, Time: time.Now()},
	}
}

func (s *fakeSource) Current(_ context.Context) (position.Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentErr != nil {
		return position.Fix{}, s.currentErr
	}
	return s.fix, nil
}

func (s *fakeSource) Watch(ctx context.Context) (<-chan position.Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	s.watchCh = make(chan position.Fix, 1)
	ch := s.watchCh
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		close(ch)
		if s.watchCh == ch {
			s.watchCh = nil
		}
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *fakeSource) push(fix position.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCh != nil {
		select {
		case s.watchCh <- fix:
		default:
		}
	}
}

type fakeProber struct {
	mu     sync.Mutex
	result probe.Result
}

func (p *fakeProber) Measure(_ context.Context) probe.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *fakeProber) set(r probe.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = r
}

type fakeStore struct {
	mu     sync.Mutex
	puts   []journey.Journey
	err    error
	signal chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{signal: make(chan struct{}, 64)}
}

func (s *fakeStore) Put(_ context.Context, j journey.Journey) error {
	s.mu.Lock()
	err := s.err
	if err == nil {
		s.puts = append(s.puts, j)
	}
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return err
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func (s *fakeStore) lastPut() journey.Journey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[len(s.puts)-1]
}

func (s *fakeStore) waitForPut(t *testing.T) {
	t.Helper()
	select {
	case <-s.signal:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for store put")
	}
}

func mbps(v float64) *float64 { return &v }

func newTestController(store Store, source position.Source, prober probe.Prober) *Controller {
	return NewController(store, source, prober, nil, 20*time.Millisecond)
}

func TestStartRecordsImmediatelyAndPeriodically(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(25), Transport: journey.TransportWifi})

	ctrl := newTestController(store, source, prober)
	j, err := ctrl.Start(context.Background(), "Commute")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if j.ID == "" || j.Name != "Commute" {
		t.Fatalf("unexpected journey %+v", j)
	}
	if ctrl.State() != StateRecording {
		t.Fatalf("expected recording state")
	}

	store.waitForPut(t) // immediate first cycle
	store.waitForPut(t) // at least one timer cycle

	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	final := store.lastPut()
	if final.EndTime == nil {
		t.Fatalf("final put must carry the end time")
	}
	if len(final.Samples) < 2 {
		t.Fatalf("expected at least two samples, got %d", len(final.Samples))
	}
	if *final.Samples[0].ThroughputMbps != 25 {
		t.Fatalf("unexpected sample %+v", final.Samples[0])
	}
}

func TestEachCyclePersistsWholeJourney(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(5), Transport: journey.TransportCellular})

	ctrl := newTestController(store, source, prober)
	if _, err := ctrl.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.waitForPut(t)
	store.waitForPut(t)
	_ = ctrl.Stop(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	for i, put := range store.puts {
		if put.EndTime != nil && i < len(store.puts)-1 {
			t.Fatalf("only the final put may be ended")
		}
		if i > 0 && put.EndTime == nil && len(put.Samples) < len(store.puts[i-1].Samples) {
			t.Fatalf("incremental puts must never shrink the journey")
		}
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	store := newFakeStore()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(1), Transport: journey.TransportWifi})
	ctrl := newTestController(store, newFakeSource(), prober)
	if _, err := ctrl.Start(context.Background(), "first"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Stop(context.Background())

	store.waitForPut(t)
	before := store.lastPut()

	if _, err := ctrl.Start(context.Background(), "second"); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	_, current := ctrl.Status()
	if current == nil || current.ID != before.ID {
		t.Fatalf("in-progress session must be untouched")
	}
}

func TestStopWhileIdleIsNoOp(t *testing.T) {
	ctrl := newTestController(newFakeStore(), newFakeSource(), &fakeProber{})
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("stop while idle: %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("expected idle state")
	}
}

func TestPermissionDeniedStaysIdle(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.currentErr = position.ErrPermissionDenied

	ctrl := newTestController(store, source, &fakeProber{})
	_, err := ctrl.Start(context.Background(), "x")
	if !errors.Is(err, ErrPermissionRequired) {
		t.Fatalf("expected ErrPermissionRequired, got %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("expected idle after denial")
	}
	if store.putCount() != 0 {
		t.Fatalf("nothing may be persisted on a denied start")
	}
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	source := newFakeSource()
	source.currentErr = position.ErrUnavailable

	ctrl := newTestController(newFakeStore(), source, &fakeProber{})
	if _, err := ctrl.Start(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("expected idle after failed start")
	}

	source.currentErr = nil
	source.watchErr = errors.New("subscription refused")
	if _, err := ctrl.Start(context.Background(), "x"); err == nil {
		t.Fatalf("expected watch error")
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("expected idle after failed watch")
	}
}

func TestProbeFailureDoesNotEndSession(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	// Unmeasurable is an outcome: the sample records offline, recording
	// continues.
	prober.set(probe.Result{Transport: journey.TransportDisconnected})

	ctrl := newTestController(store, source, prober)
	if _, err := ctrl.Start(context.Background(), "x"); err != nil {
		t.Fatalf("start: %v", err)
	}

	store.waitForPut(t)
	if ctrl.State() != StateRecording {
		t.Fatalf("probe failure must not leave recording state")
	}
	store.waitForPut(t) // next scheduled cycle still fires

	_ = ctrl.Stop(context.Background())

	final := store.lastPut()
	if len(final.Samples) == 0 || final.Samples[0].ThroughputMbps != nil {
		t.Fatalf("expected offline samples, got %+v", final.Samples)
	}
	if final.Samples[0].Quality(journey.DefaultThresholds) != journey.QualityOffline {
		t.Fatalf("expected offline quality")
	}
}

func TestStoreFailureDoesNotEndSession(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("quota exhausted")
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(3), Transport: journey.TransportWifi})

	ctrl := newTestController(store, source, prober)
	if _, err := ctrl.Start(context.Background(), "x"); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.waitForPut(t)
	if ctrl.State() != StateRecording {
		t.Fatalf("storage failure mid-session must not stop recording")
	}

	err := ctrl.Stop(context.Background())
	if err == nil {
		t.Fatalf("final persist failure must be surfaced")
	}
	if ctrl.State() != StateIdle {
		t.Fatalf("controller must land in idle even when the final put fails")
	}
}

func TestOneShotFallbackWhenNoFixYet(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(7), Transport: journey.TransportWifi})

	ctrl := newTestController(store, source, prober)
	if _, err := ctrl.Start(context.Background(), "x"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// No fix pushed on the subscription; the first cycle must fall back to
	// the one-shot request.
	store.waitForPut(t)
	_ = ctrl.Stop(context.Background())

	final := store.lastPut()
	if len(final.Samples) == 0 || final.Samples[0].Latitude != -6.2 {
		t.Fatalf("expected sample from one-shot fix, got %+v", final.Samples)
	}
}

func TestWatchFixOverwritesSlot(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(7), Transport: journey.TransportWifi})

	ctrl := newTestController(store, source, prober)
	if _, err := ctrl.Start(context.Background(), "x"); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.waitForPut(t)

	source.push(position.Fix{Latitude: 51.5, Longitude: -0.12, Accuracy: 4, Time: time.Now()})
	// Wait until a sample reflecting the pushed fix lands.
	deadline := time.After(2 * time.Second)
	for {
		store.waitForPut(t)
		last := store.lastPut()
		if last.Samples[len(last.Samples)-1].Latitude == 51.5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pushed fix never reached a sample")
		default:
		}
	}
	_ = ctrl.Stop(context.Background())
}

func TestListenerReceivesSampleAndSnapshot(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(9), Transport: journey.TransportWifi})

	ctrl := newTestController(store, source, prober)

	type event struct {
		sample journey.Sample
		j      journey.Journey
	}
	events := make(chan event, 8)
	ctrl.SetListener(func(s journey.Sample, j journey.Journey) {
		events <- event{sample: s, j: j}
	})

	if _, err := ctrl.Start(context.Background(), "x"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Stop(context.Background())

	select {
	case ev := <-events:
		if *ev.sample.ThroughputMbps != 9 {
			t.Fatalf("unexpected sample %+v", ev.sample)
		}
		if len(ev.j.Samples) == 0 || ev.j.Samples[len(ev.j.Samples)-1].Timestamp != ev.sample.Timestamp {
			t.Fatalf("snapshot must contain the notified sample")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener never notified")
	}
}

func TestStopReleasesSubscription(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	prober := &fakeProber{}
	prober.set(probe.Result{Mbps: mbps(9), Transport: journey.TransportWifi})

	ctrl := newTestController(store, source, prober)
	if _, err := ctrl.Start(context.Background(), "x"); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.waitForPut(t)
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		source.mu.Lock()
		closed := source.watchCh == nil
		source.mu.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watch subscription not released on stop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A fresh session must be possible after stop.
	if _, err := ctrl.Start(context.Background(), "again"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	_ = ctrl.Stop(context.Background())
}
