// Package history keeps a bounded in-memory record of measurement and breaker
// snapshots keyed by the device clock, for diagnostic replay.
package history

import (
	"errors"
	"log"
	"sync"
)

var ErrNotFound = errors.New("history: no entry at or before requested time")

type entry struct {
	time  float64
	value float64
}

type breakerEntry struct {
	time  float64
	state map[string]bool
}

// Log may be shared between components and is safe for concurrent use.
type Log struct {
	maxEntries int

	data     map[string][]entry
	breakers []breakerEntry
	mu       sync.Mutex
}

func NewLog(maxEntries int) *Log {
	return &Log{
		maxEntries: maxEntries,
		data:       make(map[string][]entry),
		breakers:   make([]breakerEntry, 0),
	}
}

func (l *Log) Append(key string, time float64, value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.data[key] = append(l.data[key], entry{time: time, value: value})

	for len(l.data[key]) > l.maxEntries {
		log.Printf("history - deleted entry for %s at time %f", key, l.data[key][0].time)
		l.data[key] = l.data[key][1:]
	}
}

// Query returns the most recent value recorded for key at or before the
// requested time.
func (l *Log) Query(key string, time float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.data[key]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].time <= time {
			return entries[i].value, nil
		}
	}

	return 0, ErrNotFound
}

// AppendBreakerState records a snapshot of all fault-interrupter positions.
func (l *Log) AppendBreakerState(time float64, state map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[string]bool, len(state))
	for id, closed := range state {
		snapshot[id] = closed
	}

	l.breakers = append(l.breakers, breakerEntry{time: time, state: snapshot})

	for len(l.breakers) > l.maxEntries {
		log.Printf("history - deleted breaker state at time %f", l.breakers[0].time)
		l.breakers = l.breakers[1:]
	}
}

func (l *Log) BreakerState(time float64) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.breakers) - 1; i >= 0; i-- {
		if l.breakers[i].time <= time {
			snapshot := make(map[string]bool, len(l.breakers[i].state))
			for id, closed := range l.breakers[i].state {
				snapshot[id] = closed
			}
			return snapshot, nil
		}
	}

	return nil, ErrNotFound
}
