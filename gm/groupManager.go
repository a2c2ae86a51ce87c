// Package gm manages group membership. The nodes elect a coordinator over the
// replicated state store; the coordinator periodically publishes the peer
// roster that the load balance agents reconcile against.
package gm

import (
	"context"
	"log"
	"time"

	"code.siemens.com/grid-load-balancer/common"
	"code.siemens.com/grid-load-balancer/dda"
	"github.com/coatyio/dda/services/state/api"
)

const COORDINATOR_KEY = "coordinator"

type GroupManager struct {
	id        string
	cfg       common.GroupConfig
	connector *dda.Connector

	members            *groupMembers
	coordinatorChannel chan bool
	fsm                *fsm
	announce           common.Ticker

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg common.GroupConfig, connector *dda.Connector) *GroupManager {
	ctx, cancel := context.WithCancel(context.Background())
	g := &GroupManager{
		id:                 connector.Id(),
		cfg:                cfg,
		connector:          connector,
		members:            newGroupMembers(),
		coordinatorChannel: make(chan bool, 1),
		ctx:                ctx,
		cancel:             cancel,
	}

	g.fsm = newFsm(g, cfg.HeartbeatPeriode, cfg.HeartbeatTimeoutBase)

	return g
}

func (g *GroupManager) Open() error {
	stateChanges, err := g.connector.ObserveStateChange(g.ctx)
	if err != nil {
		return err
	}

	membershipChanges, err := g.connector.ObserveMembershipChange(g.ctx)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case stateChange := <-stateChanges:
				g.handleStateUpdate(stateChange)
			case membershipChange := <-membershipChanges:
				g.handleMembershipChange(membershipChange)
			case isCoordinator := <-g.coordinatorChannel:
				if isCoordinator {
					log.Println("gm - became coordinator, announcing peer lists")
					g.announce.Start(g.cfg.AnnouncePeriode, g.announceRoster)
				} else {
					log.Println("gm - lost coordinatorship, stop announcing")
					g.announce.Stop()
				}
			case <-g.ctx.Done():
				log.Println("gm - shutdown observer")
				g.announce.Stop()
				return
			}
		}
	}()

	g.fsm.start()

	return nil
}

func (g *GroupManager) Close() {
	g.announce.Stop()
	g.fsm.close()
	g.cancel()
}

func (g *GroupManager) handleStateUpdate(change api.Input) {
	if change.Key != COORDINATOR_KEY {
		return
	}

	if change.Op != api.InputOpSet {
		return
	}

	if g.id == string(change.Value) {
		g.fsm.applyEvent(ownHeartbeatReceived)
	} else {
		g.fsm.applyEvent(differentHeartbeatReceived)
	}
}

func (g *GroupManager) handleMembershipChange(change api.MembershipChange) {
	if change.Joined {
		log.Printf("gm - node %s joined the group", change.Id)
		g.members.add(change.Id)
	} else {
		log.Printf("gm - node %s left the group", change.Id)
		g.members.remove(change.Id)
	}
}

func (g *GroupManager) announceRoster() {
	roster := g.members.list()
	if err := g.connector.SendPeerList(g.ctx, roster); err != nil {
		log.Printf("gm - could not publish peer list, %s", err)
	}
}

func (g *GroupManager) heartbeatTimeout() {
	g.fsm.applyEvent(heartbeatTimeout)
}

func (g *GroupManager) sendHeartbeat() {
	input := api.Input{
		Op:    api.InputOpSet,
		Key:   COORDINATOR_KEY,
		Value: []byte(g.id),
	}

	ctx, cancel := context.WithCancel(g.ctx)
	go func() {
		if err := g.connector.ProposeInput(ctx, &input); err != nil {
			log.Printf("gm - could not send heartbeat: %s", err)
		}
	}()

	<-time.After(1000 * time.Millisecond)
	cancel()
}

func (g *GroupManager) coordinatorCh() chan bool {
	return g.coordinatorChannel
}
