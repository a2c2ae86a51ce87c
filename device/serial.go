package device

import (
	"bufio"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Serial reads measurements from a meter attached to a serial port. The meter
// emits one line per sample: "<gateway>,<netGeneration>". The most recent
// sample is cached; reads fail with ErrNoReading until the first line arrives.
type Serial struct {
	port *serial.Port

	gateway       float64
	netGeneration float64
	hasReading    bool
	lastSample    time.Time
	start         time.Time
	mu            sync.Mutex
}

func NewSerial(portName string, baud int) (*Serial, error) {
	port, err := serial.OpenPort(&serial.Config{Name: portName, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("could not open serial port: %w", err)
	}

	s := &Serial{port: port, start: time.Now()}
	go s.read()

	return s, nil
}

func (s *Serial) read() {
	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		gateway, netGeneration, err := parseSample(scanner.Text())
		if err != nil {
			log.Printf("device - dropping malformed serial line, %s", err)
			continue
		}

		s.mu.Lock()
		s.gateway = gateway
		s.netGeneration = netGeneration
		s.hasReading = true
		s.lastSample = time.Now()
		s.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		log.Printf("device - serial read failed, %s", err)
	}
}

func parseSample(line string) (float64, float64, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two fields, got %d", len(parts))
	}

	gateway, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad gateway value: %w", err)
	}

	netGeneration, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad net generation value: %w", err)
	}

	return gateway, netGeneration, nil
}

func (s *Serial) Time() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasReading {
		return 0, ErrNoReading
	}
	return s.lastSample.Sub(s.start).Seconds(), nil
}

func (s *Serial) Gateway() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasReading {
		return 0, ErrNoReading
	}
	return s.gateway, nil
}

func (s *Serial) NetGeneration() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasReading {
		return 0, ErrNoReading
	}
	return s.netGeneration, nil
}

// BreakerStates is empty, the meter line carries no breaker telemetry.
func (s *Serial) BreakerStates() map[string]bool {
	return nil
}

func (s *Serial) Close() {
	s.port.Close()
}
