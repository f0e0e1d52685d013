package notify

import (
	"sync"
	"testing"
	"time"
)

func TestNotifyWakesAllWaiters(t *testing.T) {
	s := NewSignal()

	const waiters = 4
	var wg sync.WaitGroup
	for w := 0; w < waiters; w++ {
		ch := s.C()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ch
		}()
	}

	s.Notify()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiters never woke up")
	}
}

func TestChannelRearmsAfterNotify(t *testing.T) {
	s := NewSignal()
	s.Notify()

	select {
	case <-s.C():
		t.Fatal("fresh channel should not be closed")
	default:
	}
}
