package api

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"fieldboard-api/domain"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	err    error
}

func (s *stubPublisher) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *stubPublisher) Events() []domain.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChangeEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestTryPublishChangeWaitsForCapacity(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)

	changeCh = make(chan domain.ChangeEvent, 1)
	handoffTimeout = 50 * time.Millisecond

	changeCh <- domain.ChangeEvent{}

	done := make(chan bool, 1)
	go func() {
		done <- tryPublishChange(domain.ChangeEvent{})
	}()

	select {
	case <-done:
		t.Fatal("tryPublishChange returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-changeCh

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful handoff after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for handoff completion")
	}
}

func TestTryPublishChangeTimesOut(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)

	changeCh = make(chan domain.ChangeEvent, 1)
	handoffTimeout = 30 * time.Millisecond

	changeCh <- domain.ChangeEvent{}

	if tryPublishChange(domain.ChangeEvent{}) {
		t.Fatal("expected handoff to fail when timeout elapsed")
	}

	select {
	case <-changeCh:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTryPublishChangeReturnsFalseWhenClosed(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)
	t.Cleanup(func() { changeCh = nil })

	changeCh = make(chan domain.ChangeEvent)
	close(changeCh)

	if tryPublishChange(domain.ChangeEvent{}) {
		t.Fatal("expected handoff to fail when channel is closed")
	}
}

func TestTryPublishChangeNoWaitWhenZeroTimeout(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)

	changeCh = make(chan domain.ChangeEvent, 1)
	handoffTimeout = 0

	changeCh <- domain.ChangeEvent{}

	if tryPublishChange(domain.ChangeEvent{}) {
		t.Fatal("expected handoff to fail when buffer full and no timeout")
	}

	<-changeCh

	if !tryPublishChange(domain.ChangeEvent{}) {
		t.Fatal("expected handoff to succeed when buffer has capacity")
	}
}

func TestTryPublishChangeNilChannel(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)

	if tryPublishChange(domain.ChangeEvent{}) {
		t.Fatal("expected handoff to fail before initialization")
	}
}

func TestChangeWorkerDeliversEvents(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)

	pub := &stubPublisher{}
	initChangePublisher(pub, log.New())

	ev := domain.ChangeEvent{
		TenantID:   "tenant-1",
		EntityType: "task",
		EntityID:   "t1",
		Op:         domain.ChangeOpCreate,
		Timestamp:  nextTimestamp(),
	}
	if !tryPublishChange(ev) {
		t.Fatal("expected handoff to succeed after initialization")
	}

	deadline := time.After(2 * time.Second)
	for {
		if events := pub.Events(); len(events) == 1 {
			if events[0].EntityID != "t1" || events[0].Op != domain.ChangeOpCreate {
				t.Fatalf("unexpected event: %#v", events[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("event not delivered: %#v", pub.Events())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPublishInlineFallback(t *testing.T) {
	shutdownChangePublisher()
	t.Cleanup(shutdownChangePublisher)

	pub := &stubPublisher{}
	globalPub = pub
	globalLog = log.New()
	publishTimeout = time.Second

	ev := domain.ChangeEvent{TenantID: "tenant-1", EntityType: "column", EntityID: "c1", Op: domain.ChangeOpDelete}
	publishInline(ev)

	if events := pub.Events(); len(events) != 1 || events[0].EntityID != "c1" {
		t.Fatalf("inline publish not delivered: %#v", pub.Events())
	}
}
