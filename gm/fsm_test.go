package gm

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeLogic struct {
	channel    chan bool
	heartbeats int32
	fsm        *fsm
}

func newFakeLogic() *fakeLogic {
	return &fakeLogic{channel: make(chan bool, 8)}
}

func (l *fakeLogic) heartbeatTimeout() {
	if l.fsm != nil {
		l.fsm.applyEvent(heartbeatTimeout)
	}
}

func (l *fakeLogic) sendHeartbeat() {
	atomic.AddInt32(&l.heartbeats, 1)
}

func (l *fakeLogic) coordinatorCh() chan bool {
	return l.channel
}

func currentRole(f *fsm) role {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentRole
}

func waitForRole(t *testing.T, f *fsm, expected role) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if currentRole(f) == expected {
			return
		}
		time.Sleep(time.Millisecond * 5)
	}
	t.Fatalf("Role never became %v, still %v", expected, currentRole(f))
}

func TestMemberBecomesCandidateOnTimeout(t *testing.T) {
	logic := newFakeLogic()
	subject := newFsm(logic, time.Hour, time.Hour)
	defer subject.close()

	subject.applyEvent(heartbeatTimeout)

	if subject.currentRole != candidate {
		t.Errorf("Expected candidate, got %v", subject.currentRole)
	}

	// campaigning starts the heartbeat sender, which fires immediately
	time.Sleep(time.Millisecond * 20)
	if atomic.LoadInt32(&logic.heartbeats) != 1 {
		t.Errorf("Expected one heartbeat, got %d", logic.heartbeats)
	}
}

func TestDemotedNodeCampaignsAgain(t *testing.T) {
	logic := newFakeLogic()
	subject := newFsm(logic, time.Hour, time.Millisecond*40)
	logic.fsm = subject
	defer subject.close()

	subject.start()
	waitForRole(t, subject, candidate)

	subject.applyEvent(ownHeartbeatReceived)
	if v := <-logic.channel; !v {
		t.Fatalf("Expected coordinatorship announcement")
	}

	subject.applyEvent(differentHeartbeatReceived)
	if v := <-logic.channel; v {
		t.Fatalf("Expected coordinatorship loss announcement")
	}

	// the monitor must keep watching after the demotion, another silence
	// starts a new campaign
	waitForRole(t, subject, candidate)
}

func TestCandidateWinsOnOwnHeartbeat(t *testing.T) {
	logic := newFakeLogic()
	subject := newFsm(logic, time.Hour, time.Hour)
	defer subject.close()

	subject.applyEvent(heartbeatTimeout)
	subject.applyEvent(ownHeartbeatReceived)

	if subject.currentRole != coordinator {
		t.Errorf("Expected coordinator, got %v", subject.currentRole)
	}
	if v := <-logic.channel; !v {
		t.Errorf("Expected coordinatorship announcement")
	}
}

func TestCandidateYieldsToOtherHeartbeat(t *testing.T) {
	logic := newFakeLogic()
	subject := newFsm(logic, time.Hour, time.Hour)
	defer subject.close()

	subject.applyEvent(heartbeatTimeout)
	subject.applyEvent(differentHeartbeatReceived)

	if subject.currentRole != member {
		t.Errorf("Expected member, got %v", subject.currentRole)
	}
	if len(logic.channel) != 0 {
		t.Errorf("Yielding candidate must not announce coordinatorship")
	}
}

func TestCoordinatorDemotedByOtherHeartbeat(t *testing.T) {
	logic := newFakeLogic()
	subject := newFsm(logic, time.Hour, time.Hour)
	defer subject.close()

	subject.applyEvent(heartbeatTimeout)
	subject.applyEvent(ownHeartbeatReceived)
	<-logic.channel

	subject.applyEvent(differentHeartbeatReceived)

	if subject.currentRole != member {
		t.Errorf("Expected member, got %v", subject.currentRole)
	}
	if v := <-logic.channel; v {
		t.Errorf("Expected coordinatorship loss announcement")
	}
}

func TestMemberIgnoresHeartbeats(t *testing.T) {
	logic := newFakeLogic()
	subject := newFsm(logic, time.Hour, time.Hour)
	defer subject.close()

	subject.applyEvent(ownHeartbeatReceived)
	subject.applyEvent(differentHeartbeatReceived)

	if subject.currentRole != member {
		t.Errorf("Expected member, got %v", subject.currentRole)
	}
}

func TestRandomTimeoutWithinBounds(t *testing.T) {
	base := time.Millisecond * 1200

	for i := 0; i < 100; i++ {
		timeout := getRandomTimeout(base)
		if timeout < base || timeout > 2*base {
			t.Fatalf("Timeout %v outside [%v, %v]", timeout, base, 2*base)
		}
	}
}
