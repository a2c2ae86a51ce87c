package common

import (
	"sync"
	"time"
)

// Timer is a cancelable one-shot callback. A stopped timer never fires its
// callback, even when the underlying time.Timer already expired.
type Timer struct {
	timer    *time.Timer
	callback func()

	quit       chan bool
	started    bool
	generation int
	mu         sync.Mutex
}

func (t *Timer) Start(duration time.Duration, callback func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.callback = callback
	t.startLocked(duration)
}

func (t *Timer) startLocked(duration time.Duration) {
	t.started = true
	t.generation++
	t.quit = make(chan bool)
	t.timer = time.NewTimer(duration)

	generation := t.generation
	quit := t.quit
	timer := t.timer
	callback := t.callback

	go func() {
		select {
		case <-timer.C:
			t.clear(generation)
			go callback()
		case <-quit:
			if !timer.Stop() {
				<-timer.C
			}
			t.clear(generation)
		}
	}()
}

// clear marks the timer idle unless it has been started again in the
// meantime.
func (t *Timer) clear(generation int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation == generation {
		t.started = false
	}
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		select {
		case t.quit <- true:
		default:
		}
		close(t.quit)
	}
	t.started = false
}

// Reset rearms the timer. A timer that already fired is started again with
// its previous callback, so a monitor reset after its timeout keeps watching.
func (t *Timer) Reset(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		t.timer.Reset(duration)
		return
	}

	if t.callback != nil {
		t.startLocked(duration)
	}
}
