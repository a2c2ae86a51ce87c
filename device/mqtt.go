package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

type measurementMessage struct {
	Value float64
}

// Mqtt reads measurements published by an external meter on the topics
// "<id>/gateway" and "<id>/generation". The most recent value per topic is
// cached; reads fail with ErrNoReading until both topics have been seen.
type Mqtt struct {
	mqttConnection *autopaho.ConnectionManager
	router         paho.Router
	cancel         context.CancelFunc

	gateway       float64
	netGeneration float64
	hasGateway    bool
	hasGeneration bool
	lastSample    time.Time
	start         time.Time
	mu            sync.Mutex
}

func NewMqtt(id string, brokerUrl string) (*Mqtt, error) {
	u, err := url.Parse(brokerUrl)
	if err != nil {
		return nil, err
	}

	m := &Mqtt{router: paho.NewStandardRouter(), start: time.Now()}

	gatewayTopic := fmt.Sprintf("%s/%s", id, gateway_topic)
	generationTopic := fmt.Sprintf("%s/%s", id, generation_topic)

	m.router.RegisterHandler(gatewayTopic, func(p *paho.Publish) {
		m.handleSample(p, true)
	})
	m.router.RegisterHandler(generationTopic, func(p *paho.Publish) {
		m.handleSample(p, false)
	})

	cliCfg := autopaho.ClientConfig{
		BrokerUrls:     []*url.URL{u},
		KeepAlive:      20,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) { log.Println("device - mqtt connection up") },
		OnConnectError: func(err error) { log.Printf("device - error whilst attempting connection: %s", err) },
		ClientConfig: paho.ClientConfig{
			ClientID:      id + "-device",
			Router:        m.router,
			OnClientError: func(err error) { log.Printf("device - client error: %s", err) },
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					log.Printf("device - server requested disconnect: %s", d.Properties.ReasonString)
				} else {
					log.Printf("device - server requested disconnect; reason code: %d", d.ReasonCode)
				}
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	connection, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		cancel()
		return nil, err
	}

	if err = connection.AwaitConnection(ctx); err != nil {
		cancel()
		return nil, err
	}

	m.mqttConnection = connection

	subscriptions := []paho.SubscribeOptions{
		{Topic: gatewayTopic, QoS: 1},
		{Topic: generationTopic, QoS: 1},
	}
	if _, err := connection.Subscribe(ctx, &paho.Subscribe{Subscriptions: subscriptions}); err != nil {
		cancel()
		return nil, err
	}

	return m, nil
}

func (m *Mqtt) handleSample(p *paho.Publish, gateway bool) {
	var msg measurementMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		log.Printf("device - could not unmarshal incoming measurement, %s", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gateway {
		m.gateway = msg.Value
		m.hasGateway = true
	} else {
		m.netGeneration = msg.Value
		m.hasGeneration = true
	}
	m.lastSample = time.Now()
}

func (m *Mqtt) Time() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasGateway && !m.hasGeneration {
		return 0, ErrNoReading
	}
	return m.lastSample.Sub(m.start).Seconds(), nil
}

func (m *Mqtt) Gateway() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasGateway {
		return 0, ErrNoReading
	}
	return m.gateway, nil
}

func (m *Mqtt) NetGeneration() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasGeneration {
		return 0, ErrNoReading
	}
	return m.netGeneration, nil
}

// BreakerStates is empty, the telemetry topics carry no breaker positions.
func (m *Mqtt) BreakerStates() map[string]bool {
	return nil
}

func (m *Mqtt) Close() {
	m.cancel()
	if m.mqttConnection != nil {
		m.mqttConnection.Disconnect(context.Background())
	}
}

const gateway_topic = "gateway"
const generation_topic = "generation"
