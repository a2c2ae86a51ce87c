package gm

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"code.siemens.com/grid-load-balancer/common"
)

type role int

const (
	coordinator role = iota
	candidate
	member
)

type event int

const (
	ownHeartbeatReceived event = iota
	differentHeartbeatReceived
	heartbeatTimeout
)

type transition func() role

// fsm elects the group coordinator from heartbeats on the replicated
// coordinator key. A member whose monitor times out campaigns by writing its
// own heartbeat; seeing its own write back makes it coordinator, seeing a
// different node's write demotes it.
type fsm struct {
	logic       logic
	currentRole role
	transitions map[role]map[event]transition

	heartbeatMonitor common.Timer
	heartbeatSender  common.Ticker

	timeout time.Duration

	mu sync.Mutex
}

func newFsm(logic logic, periode time.Duration, timeoutBase time.Duration) *fsm {
	f := fsm{
		logic:       logic,
		currentRole: member,
		transitions: make(map[role]map[event]transition),
		timeout:     getRandomTimeout(timeoutBase),
	}

	f.transitions[coordinator] = map[event]transition{
		ownHeartbeatReceived: func() role {
			f.heartbeatMonitor.Reset(timeoutBase)
			return coordinator
		},
		differentHeartbeatReceived: func() role {
			log.Println("gm - coordinator: differentHeartbeatReceived --> member")
			f.heartbeatSender.Stop()
			logic.coordinatorCh() <- false
			f.timeout = getRandomTimeout(timeoutBase)
			f.heartbeatMonitor.Reset(f.timeout)
			return member
		},
		heartbeatTimeout: func() role {
			log.Println("gm - coordinator: heartbeatTimeout --> member")
			f.heartbeatSender.Stop()
			logic.coordinatorCh() <- false
			f.timeout = getRandomTimeout(timeoutBase)
			f.heartbeatMonitor.Reset(f.timeout)
			return member
		},
	}

	f.transitions[candidate] = map[event]transition{
		ownHeartbeatReceived: func() role {
			log.Println("gm - candidate: ownHeartbeatReceived --> coordinator")
			logic.coordinatorCh() <- true
			f.heartbeatMonitor.Reset(f.timeout)
			return coordinator
		},
		differentHeartbeatReceived: func() role {
			log.Println("gm - candidate: differentHeartbeatReceived --> member")
			f.heartbeatSender.Stop()
			f.timeout = getRandomTimeout(timeoutBase)
			f.heartbeatMonitor.Reset(f.timeout)
			return member
		},
	}

	f.transitions[member] = map[event]transition{
		ownHeartbeatReceived: func() role {
			f.heartbeatMonitor.Reset(f.timeout)
			return member
		},
		differentHeartbeatReceived: func() role {
			f.heartbeatMonitor.Reset(f.timeout)
			return member
		},
		heartbeatTimeout: func() role {
			log.Println("gm - member: heartbeatTimeout --> candidate")
			f.heartbeatSender.Start(periode, logic.sendHeartbeat)
			return candidate
		},
	}

	return &f
}

func (f *fsm) start() {
	f.heartbeatMonitor.Start(f.timeout, f.logic.heartbeatTimeout)
}

func (f *fsm) applyEvent(event event) {
	defer f.mu.Unlock()
	f.mu.Lock()

	if transition, ok := f.transitions[f.currentRole][event]; ok {
		f.currentRole = transition()
	}
}

func (f *fsm) close() {
	f.heartbeatMonitor.Stop()
	f.heartbeatSender.Stop()
}

func getRandomTimeout(timeoutBase time.Duration) time.Duration {
	timeout := timeoutBase.Milliseconds() + int64(rand.Float64()*float64(timeoutBase.Milliseconds()))
	return time.Duration(timeout) * time.Millisecond
}

type logic interface {
	heartbeatTimeout()
	sendHeartbeat()
	coordinatorCh() chan bool
}
