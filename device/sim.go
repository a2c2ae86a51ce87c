package device

import (
	"math/rand"
	"sync"
	"time"

	"code.siemens.com/grid-load-balancer/common"
)

// Sim is a simulated device. Readings start at the configured values and can
// either be set directly or drift randomly when a drift amplitude is
// configured. The clock is logical: seconds since construction.
type Sim struct {
	start time.Time

	gateway       float64
	netGeneration float64
	breakers      map[string]bool
	drift         common.Ticker
	mu            sync.Mutex
}

func NewSim(cfg common.DeviceConfig) *Sim {
	s := &Sim{
		start:         time.Now(),
		gateway:       cfg.InitialGateway,
		netGeneration: cfg.InitialGeneration,
		breakers:      make(map[string]bool),
	}

	// simulated fault interrupters start closed
	for _, id := range cfg.Breakers {
		s.breakers[id] = true
	}

	if cfg.Drift > 0 {
		amplitude := cfg.Drift
		s.drift.Start(time.Second, func() {
			s.mu.Lock()
			s.gateway += (rand.Float64()*2 - 1) * amplitude
			s.netGeneration += (rand.Float64()*2 - 1) * amplitude
			s.mu.Unlock()
		})
	}

	return s
}

func (s *Sim) Time() (float64, error) {
	return time.Since(s.start).Seconds(), nil
}

func (s *Sim) Gateway() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateway, nil
}

func (s *Sim) NetGeneration() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.netGeneration, nil
}

func (s *Sim) SetGateway(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = value
}

func (s *Sim) SetNetGeneration(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.netGeneration = value
}

func (s *Sim) BreakerStates() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]bool, len(s.breakers))
	for id, closed := range s.breakers {
		states[id] = closed
	}
	return states
}

func (s *Sim) SetBreaker(id string, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[id] = closed
}

func (s *Sim) Close() {
	s.drift.Stop()
}
