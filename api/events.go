package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fieldboard-api/domain"
)

// Change events are published off the request path through a buffered worker
// pool. Publication is advisory: failures are logged and never surfaced to
// the mutation that produced the event.

var (
	changeOnce     sync.Once
	changeCh       chan domain.ChangeEvent
	workerCount    int
	changeBuf      int
	publishTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalPub      Publisher
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownChangePublisher stops worker goroutines and clears shared state.
// It is intended for tests.
func shutdownChangePublisher() {
	if changeCh != nil {
		close(changeCh)
		changeCh = nil
	}

	workerWG.Wait()

	globalPub = nil
	globalLog = nil
	workerCount = 0
	changeBuf = 0
	publishTimeout = 0
	handoffTimeout = 0
	changeOnce = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initChangePublisher(pub Publisher, logger *log.Logger) {
	changeOnce.Do(func() {
		if logger == nil {
			panic("logger is not initialized")
		}
		globalPub = pub
		globalLog = logger

		workerCount = envInt("CHANGE_WORKERS", 8)
		changeBuf = envInt("CHANGE_BUFFER", 1024)
		publishTimeout = envDur("CHANGE_PUBLISH_TIMEOUT", 30*time.Second)
		handoffTimeout = envDur("CHANGE_HANDOFF_TIMEOUT", 15*time.Millisecond)

		changeCh = make(chan domain.ChangeEvent, changeBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go changeWorker(i, changeCh)
		}
		globalLog.Infof("change publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
			workerCount, changeBuf, publishTimeout, handoffTimeout)
	})
}

func changeWorker(id int, ch <-chan domain.ChangeEvent) {
	defer workerWG.Done()
	for ev := range ch {
		if globalPub == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(bg, publishTimeout)
		err := globalPub.PublishChange(ctx, ev)
		cancel()

		if err != nil {
			globalLog.Errorf("change publish failed, err: %v, tenant: %s, entity: %s/%s, worker: %d",
				err, ev.TenantID, ev.EntityType, ev.EntityID, id)
		}
	}
}

func tryPublishChange(ev domain.ChangeEvent) bool {
	if changeCh == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(changeCh, ev); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(changeCh, ev, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan domain.ChangeEvent, ev domain.ChangeEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.ChangeEvent, ev domain.ChangeEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
