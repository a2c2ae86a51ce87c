package common

import (
	"sync"
	"time"
)

// Ticker runs a callback immediately and then on every tick until stopped.
type Ticker struct {
	quit    chan bool
	started bool
	mu      sync.Mutex
}

func (t *Ticker) Start(duration time.Duration, callback func()) {
	t.mu.Lock()
	t.started = true
	t.quit = make(chan bool)
	quit := t.quit
	t.mu.Unlock()

	ticker := time.NewTicker(duration)
	go callback()
	go func() {
		for {
			select {
			case <-ticker.C:
				callback()
			case <-quit:
				ticker.Stop()
				return
			}
		}
	}()
}

func (t *Ticker) Stop() {
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
