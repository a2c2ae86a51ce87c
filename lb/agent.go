package lb

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"code.siemens.com/grid-load-balancer/common"
	"code.siemens.com/grid-load-balancer/device"
	"code.siemens.com/grid-load-balancer/history"
)

// Channel delivers protocol messages between peers. Sends are fire and
// forget; replies arrive through the subscription channels or not at all.
type Channel interface {
	SendStateChange(ctx context.Context, peers []string, state string) error
	SendDraftRequest(ctx context.Context, peer string) error
	SendDraftResponse(ctx context.Context, peer string, accepted bool) error
	SubscribeStateChanges(ctx context.Context) (<-chan common.StateChangeMessage, error)
	SubscribeDraftRequests(ctx context.Context) (<-chan common.DraftRequestMessage, error)
	SubscribeDraftResponses(ctx context.Context) (<-chan common.DraftResponseMessage, error)
	SubscribePeerLists(ctx context.Context) (<-chan common.PeerListMessage, error)
}

// The agent fills three narrow roles for the rest of the system.
type IdentityProvider interface {
	Id() string
}

type RoundParticipant interface {
	Start(ctx context.Context) error
	Stop()
}

type Handler interface {
	HandleStateChange(msg common.StateChangeMessage)
	HandleDraftRequest(msg common.DraftRequestMessage)
	HandleDraftResponse(msg common.DraftResponseMessage)
	HandlePeerList(msg common.PeerListMessage)
}

var _ IdentityProvider = (*Agent)(nil)
var _ RoundParticipant = (*Agent)(nil)
var _ Handler = (*Agent)(nil)

// Agent runs the balancing rounds for one node. All state below is owned by
// the agent's single event loop; message handlers and timer callbacks post
// tasks into it, so no field needs a lock.
type Agent struct {
	config  common.BalancerConfig
	id      string
	channel Channel
	device  device.Device
	history *history.Log

	peers      *peerRegistry
	state      State
	priorState State

	gateway          float64
	netGeneration    float64
	predictedGateway float64

	roundTimer common.Timer

	firstRound         bool
	forceUpdate        bool
	acceptDraftRequest bool

	lastKnownState atomic.Int32

	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAgent(config common.BalancerConfig, id string, channel Channel, dev device.Device, hist *history.Log) *Agent {
	a := &Agent{
		config:             config,
		id:                 id,
		channel:            channel,
		device:             dev,
		history:            hist,
		peers:              newPeerRegistry(id, config.InitialPeers),
		state:              Normal,
		priorState:         Normal,
		firstRound:         true,
		acceptDraftRequest: true,
		tasks:              make(chan func(), 64),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.lastKnownState.Store(int32(Normal))

	return a
}

func (a *Agent) Id() string {
	return a.id
}

// Start subscribes to the protocol messages and begins the round schedule.
func (a *Agent) Start(ctx context.Context) error {
	a.cancel()
	a.ctx, a.cancel = context.WithCancel(ctx)

	stateChanges, err := a.channel.SubscribeStateChanges(a.ctx)
	if err != nil {
		return err
	}
	draftRequests, err := a.channel.SubscribeDraftRequests(a.ctx)
	if err != nil {
		return err
	}
	draftResponses, err := a.channel.SubscribeDraftResponses(a.ctx)
	if err != nil {
		return err
	}
	peerLists, err := a.channel.SubscribePeerLists(a.ctx)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case task := <-a.tasks:
				task()
			case msg, ok := <-stateChanges:
				if !ok {
					stateChanges = nil
					continue
				}
				a.handleStateChange(msg)
			case msg, ok := <-draftRequests:
				if !ok {
					draftRequests = nil
					continue
				}
				a.handleDraftRequest(msg)
			case msg, ok := <-draftResponses:
				if !ok {
					draftResponses = nil
					continue
				}
				a.handleDraftResponse(msg)
			case msg, ok := <-peerLists:
				if !ok {
					peerLists = nil
					continue
				}
				a.handlePeerList(msg)
			case <-a.ctx.Done():
				log.Println("lb - shutdown event loop")
				a.roundTimer.Stop()
				return
			}
		}
	}()

	a.scheduleNextRound()
	log.Printf("lb - agent %s started, first round in %s", a.id, a.config.RoundInterval)

	return nil
}

func (a *Agent) Stop() {
	a.roundTimer.Stop()
	a.cancel()
}

// post hands a task to the event loop without blocking shutdown.
func (a *Agent) post(task func()) {
	select {
	case a.tasks <- task:
	case <-a.ctx.Done():
	}
}

func (a *Agent) HandleStateChange(msg common.StateChangeMessage) {
	a.post(func() { a.handleStateChange(msg) })
}

func (a *Agent) HandleDraftRequest(msg common.DraftRequestMessage) {
	a.post(func() { a.handleDraftRequest(msg) })
}

func (a *Agent) HandleDraftResponse(msg common.DraftResponseMessage) {
	a.post(func() { a.handleDraftResponse(msg) })
}

func (a *Agent) HandlePeerList(msg common.PeerListMessage) {
	a.post(func() { a.handlePeerList(msg) })
}

// State reports the last computed classification. Safe to call from any
// goroutine.
func (a *Agent) State() State {
	return State(a.lastKnownState.Load())
}

// StateAt replays the classification recorded at or before the given device
// clock time. When the historic log has no entry that old, the last known
// state is the best available answer.
func (a *Agent) StateAt(time float64) State {
	value, err := a.history.Query(stateKey, time)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			log.Printf("lb - historic state lookup failed, %s", err)
		}
		return a.State()
	}
	return State(int(value))
}

// ForceState overrides the computed classification until the next round. Test
// and commissioning hook, never part of normal operation.
func (a *Agent) ForceState(state State) {
	a.post(func() {
		a.state = state
		a.lastKnownState.Store(int32(state))
	})
}

// loadManage runs one balancing round: read the device, reclassify and
// publish, rebuild the load table, draft from a supply peer when in demand,
// then schedule the next round.
func (a *Agent) loadManage() {
	a.forceUpdate = false
	a.acceptDraftRequest = true

	if err := a.readDevices(); err != nil {
		log.Printf("lb - no measurement available, keeping state %s, %s", a.state, err)
		a.scheduleNextRound()
		return
	}

	a.updateState()
	a.loadTable()

	if !a.firstRound && a.state == Demand {
		a.sendDraftRequest()
	}
	a.firstRound = false

	a.scheduleNextRound()
}

func (a *Agent) readDevices() error {
	gateway, err := a.device.Gateway()
	if err != nil {
		return err
	}

	netGeneration, err := a.device.NetGeneration()
	if err != nil {
		return err
	}

	a.gateway = gateway
	a.netGeneration = netGeneration

	if a.firstRound {
		// the initial commitment baseline is whatever the node measures now
		a.predictedGateway = gateway
	}

	return nil
}

func (a *Agent) updateState() {
	newState := classify(a.gateway, a.predictedGateway, a.config.HysteresisMargin)

	a.priorState = a.state
	a.state = newState
	a.lastKnownState.Store(int32(newState))

	if a.firstRound || a.state != a.priorState {
		log.Printf("lb - state change %s -> %s", a.priorState, a.state)
		a.sendStateChange()
	}

	a.recordSnapshot()
}

func (a *Agent) recordSnapshot() {
	breakers := a.device.BreakerStates()

	time, err := a.device.Time()
	if err != nil {
		// pin the breaker positions to the start of the log, without this
		// the initial topology would be lost entirely
		if len(breakers) > 0 {
			a.history.AppendBreakerState(0, breakers)
		}
		log.Printf("lb - historic data not saved because no clock reading, %s", err)
		return
	}

	a.history.Append(stateKey, time, float64(a.state))
	a.history.Append(gatewayKey, time, a.gateway)
	a.history.Append(predictedKey, time, a.predictedGateway)
	if len(breakers) > 0 {
		a.history.AppendBreakerState(time, breakers)
	}
}

// loadTable logs the node's view of the system after the round's lookup
// table rebuild. The table itself is maintained incrementally by
// handleStateChange, last write per sender wins.
func (a *Agent) loadTable() {
	log.Printf("lb - state %s, gateway %f, predicted %f, net generation %f",
		a.state, a.gateway, a.predictedGateway, a.netGeneration)
	log.Printf("lb - peers: %d supply, %d demand, %d normal, %d unknown",
		a.peers.countIn(Supply), a.peers.countIn(Demand), a.peers.countIn(Normal), a.peers.countIn(Unknown))
}

func (a *Agent) sendStateChange() {
	peers := a.peers.rosterIds()
	if len(peers) == 0 {
		return
	}

	if err := a.channel.SendStateChange(a.ctx, peers, a.state.String()); err != nil {
		log.Printf("lb - could not publish state change, %s", err)
	}
}

// sendDraftRequest asks one supply peer for a migration step. At most one
// request per round bounds the rate of change.
func (a *Agent) sendDraftRequest() {
	supply := a.peers.peersIn(Supply)
	if len(supply) == 0 {
		return
	}

	peer := supply[0]
	log.Printf("lb - sending draft request to %s", peer)

	if err := a.channel.SendDraftRequest(a.ctx, peer); err != nil {
		log.Printf("lb - could not send draft request to %s, %s", peer, err)
	}
}

func (a *Agent) handleStateChange(msg common.StateChangeMessage) {
	if msg.Id == a.id {
		return
	}
	if !a.peers.contains(msg.Id) {
		log.Printf("lb - dropping state change from unknown peer %s", msg.Id)
		return
	}

	state, ok := stateFromLabel(msg.State)
	if !ok {
		log.Printf("lb - dropping state change with unknown state %q from %s", msg.State, msg.Id)
		return
	}

	a.peers.setState(msg.Id, state)
}

func (a *Agent) handleDraftRequest(msg common.DraftRequestMessage) {
	if !a.peers.contains(msg.Id) {
		log.Printf("lb - dropping draft request from unknown peer %s", msg.Id)
		return
	}

	accepted := a.state == Supply && a.acceptDraftRequest
	if accepted {
		// block further drafts until the next round so a single surplus is
		// never handed out twice
		a.acceptDraftRequest = false
		a.setPredictedGateway(a.predictedGateway - a.config.MigrationStep)
		log.Printf("lb - accepted draft request from %s", msg.Id)
	} else {
		log.Printf("lb - rejected draft request from %s", msg.Id)
	}

	if err := a.channel.SendDraftResponse(a.ctx, msg.Id, accepted); err != nil {
		log.Printf("lb - could not send draft response to %s, %s", msg.Id, err)
	}
}

func (a *Agent) handleDraftResponse(msg common.DraftResponseMessage) {
	if !a.peers.contains(msg.Id) {
		log.Printf("lb - dropping draft response from unknown peer %s", msg.Id)
		return
	}

	if !msg.Accepted {
		log.Printf("lb - draft request rejected by %s", msg.Id)
		return
	}

	log.Printf("lb - draft request accepted by %s", msg.Id)
	a.setPredictedGateway(a.predictedGateway + a.config.MigrationStep)
}

func (a *Agent) handlePeerList(msg common.PeerListMessage) {
	if !a.peers.reconcile(msg.Peers) {
		return
	}

	log.Printf("lb - peer list from %s changed the roster to %d peers", msg.Coordinator, len(msg.Peers))
	a.forceUpdate = true
	a.roundTimer.Stop()
	a.loadManage()
}

func (a *Agent) setPredictedGateway(predicted float64) {
	a.predictedGateway = predicted
	log.Printf("lb - predicted gateway now %f", predicted)
}

func (a *Agent) scheduleNextRound() {
	a.roundTimer.Stop()
	a.roundTimer.Start(a.config.RoundInterval, func() {
		a.post(a.loadManage)
	})
}

const stateKey = "lb.state"
const gatewayKey = "lb.gateway"
const predictedKey = "lb.predicted"
