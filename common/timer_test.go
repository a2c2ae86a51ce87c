package common

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	subject := Timer{}
	var count int32

	subject.Start(time.Millisecond*50, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(time.Millisecond * 100)

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Wrong number of invocations: %v", count)
	}
}

func TestTimerStop(t *testing.T) {
	subject := Timer{}
	var count int32

	subject.Start(time.Millisecond*100, func() {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(time.Millisecond * 50)
	subject.Stop()
	time.Sleep(time.Millisecond * 100)

	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("Stopped timer still fired: %v", count)
	}
}

func TestTimerStopAfterStop(t *testing.T) {
	subject := Timer{}
	var count int32

	subject.Start(time.Millisecond*100, func() {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(time.Millisecond * 50)
	subject.Stop()
	subject.Stop()
	time.Sleep(time.Millisecond * 100)

	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("Stopped timer still fired: %v", count)
	}
}

func TestTimerRestart(t *testing.T) {
	subject := Timer{}
	var count int32

	subject.Start(time.Millisecond*100, func() {
		atomic.AddInt32(&count, 1)
	})
	subject.Stop()
	subject.Start(time.Millisecond*50, func() {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(time.Millisecond * 100)

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Wrong number of invocations after restart: %v", count)
	}
}

func TestTimerResetAfterFire(t *testing.T) {
	subject := Timer{}
	var count int32

	subject.Start(time.Millisecond*40, func() {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(time.Millisecond * 80)

	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("Wrong number of invocations before reset: %v", count)
	}

	subject.Reset(time.Millisecond * 40)
	time.Sleep(time.Millisecond * 80)

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("Reset after fire did not rearm the timer: %v", count)
	}

	subject.Stop()
}

func TestTimerReset(t *testing.T) {
	subject := Timer{}
	var count int32

	subject.Start(time.Millisecond*100, func() {
		atomic.AddInt32(&count, 1)
	})
	time.Sleep(time.Millisecond * 50)
	subject.Reset(time.Millisecond * 100)
	time.Sleep(time.Millisecond * 75)

	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("Reset timer fired too early: %v", count)
	}

	time.Sleep(time.Millisecond * 75)

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Reset timer did not fire: %v", count)
	}
}
