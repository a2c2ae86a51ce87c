// Package dda carries the balancer's protocol messages over the Data
// Distribution Agent. Point-to-point delivery uses event types suffixed with
// the receiver's identity; a set broadcast is a loop of targeted sends.
package dda

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"code.siemens.com/grid-load-balancer/common"
	"github.com/coatyio/dda/config"
	"github.com/coatyio/dda/dda"
	"github.com/coatyio/dda/services/com/api"
	"github.com/google/uuid"
)

type Connector struct {
	*dda.Dda
	cfg *common.Config
}

func NewConnector(cfg *common.Config) (*Connector, error) {
	c := Connector{cfg: cfg}

	ddaConfig := config.New()
	ddaConfig.Services.Com.Url = cfg.Url
	ddaConfig.Identity.Name = cfg.Name
	ddaConfig.Identity.Id = cfg.Id
	ddaConfig.Apis.Grpc.Disabled = true
	ddaConfig.Apis.GrpcWeb.Disabled = true
	ddaConfig.Cluster = "grid"

	if cfg.Group.Enabled {
		ddaConfig.Services.State.Protocol = "raft"
		ddaConfig.Services.State.Disabled = false
		ddaConfig.Services.State.Bootstrap = cfg.Group.Bootstrap
	}

	var err error
	if c.Dda, err = dda.New(ddaConfig); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Connector) Open() error {
	return c.Dda.Open(5 * time.Second)
}

func (c *Connector) Close() {
	log.Println("dda - close")
	c.Dda.Close()
}

func (c *Connector) Id() string {
	return c.cfg.Id
}

// SendStateChange publishes the node's new state to every peer in the set.
func (c *Connector) SendStateChange(ctx context.Context, peers []string, state string) error {
	msg := common.StateChangeMessage{Id: c.cfg.Id, State: state, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	for _, peer := range peers {
		event := api.Event{Type: common.AppendId(common.STATE_CHANGE_EVENT, peer), Id: uuid.NewString(), Source: c.cfg.Id, Data: data}
		if err := c.Dda.PublishEvent(event); err != nil {
			return err
		}
	}

	return nil
}

func (c *Connector) SendDraftRequest(ctx context.Context, peer string) error {
	msg := common.DraftRequestMessage{Id: c.cfg.Id, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	event := api.Event{Type: common.AppendId(common.DRAFT_REQUEST_EVENT, peer), Id: uuid.NewString(), Source: c.cfg.Id, Data: data}
	return c.Dda.PublishEvent(event)
}

func (c *Connector) SendDraftResponse(ctx context.Context, peer string, accepted bool) error {
	msg := common.DraftResponseMessage{Id: c.cfg.Id, Accepted: accepted, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	event := api.Event{Type: common.AppendId(common.DRAFT_RESPONSE_EVENT, peer), Id: uuid.NewString(), Source: c.cfg.Id, Data: data}
	return c.Dda.PublishEvent(event)
}

// SendPeerList publishes the current roster to the whole group.
func (c *Connector) SendPeerList(ctx context.Context, peers []string) error {
	msg := common.PeerListMessage{Coordinator: c.cfg.Id, Peers: peers, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	event := api.Event{Type: common.PEER_LIST_EVENT, Id: uuid.NewString(), Source: c.cfg.Id, Data: data}
	return c.Dda.PublishEvent(event)
}

func (c *Connector) SubscribeStateChanges(ctx context.Context) (<-chan common.StateChangeMessage, error) {
	events, err := c.Dda.SubscribeEvent(ctx, api.SubscriptionFilter{Type: common.AppendId(common.STATE_CHANGE_EVENT, c.cfg.Id)})
	if err != nil {
		return nil, err
	}

	out := make(chan common.StateChangeMessage, 256)
	go decodeLoop(ctx, "state change", events, out)

	return out, nil
}

func (c *Connector) SubscribeDraftRequests(ctx context.Context) (<-chan common.DraftRequestMessage, error) {
	events, err := c.Dda.SubscribeEvent(ctx, api.SubscriptionFilter{Type: common.AppendId(common.DRAFT_REQUEST_EVENT, c.cfg.Id)})
	if err != nil {
		return nil, err
	}

	out := make(chan common.DraftRequestMessage, 256)
	go decodeLoop(ctx, "draft request", events, out)

	return out, nil
}

func (c *Connector) SubscribeDraftResponses(ctx context.Context) (<-chan common.DraftResponseMessage, error) {
	events, err := c.Dda.SubscribeEvent(ctx, api.SubscriptionFilter{Type: common.AppendId(common.DRAFT_RESPONSE_EVENT, c.cfg.Id)})
	if err != nil {
		return nil, err
	}

	out := make(chan common.DraftResponseMessage, 256)
	go decodeLoop(ctx, "draft response", events, out)

	return out, nil
}

func (c *Connector) SubscribePeerLists(ctx context.Context) (<-chan common.PeerListMessage, error) {
	events, err := c.Dda.SubscribeEvent(ctx, api.SubscriptionFilter{Type: common.PEER_LIST_EVENT})
	if err != nil {
		return nil, err
	}

	out := make(chan common.PeerListMessage, 256)
	go decodeLoop(ctx, "peer list", events, out)

	return out, nil
}

// decodeLoop unmarshals raw events into typed messages. Malformed payloads are
// dropped with a notice, they never abort the loop.
func decodeLoop[T any](ctx context.Context, kind string, events <-chan api.Event, out chan<- T) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				close(out)
				return
			}

			var msg T
			if err := json.Unmarshal(event.Data, &msg); err != nil {
				log.Printf("dda - could not unmarshal incoming %s message, %s", kind, err)
				continue
			}
			out <- msg
		case <-ctx.Done():
			close(out)
			return
		}
	}
}
