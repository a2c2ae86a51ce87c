// Package lb implements the distributed load balance agent. Each node
// classifies itself from its gateway measurement against its predicted gateway
// (p*), publishes state changes to its peers and migrates fixed commitment
// steps from supply to demand nodes via a draft request exchange.
package lb

import (
	"code.siemens.com/grid-load-balancer/common"
)

type State int

const (
	Unknown State = iota
	Supply
	Demand
	Normal
)

func (s State) String() string {
	switch s {
	case Supply:
		return common.SUPPLY_STATE
	case Demand:
		return common.DEMAND_STATE
	case Normal:
		return common.NORMAL_STATE
	default:
		return "unknown"
	}
}

func stateFromLabel(label string) (State, bool) {
	switch label {
	case common.SUPPLY_STATE:
		return Supply, true
	case common.DEMAND_STATE:
		return Demand, true
	case common.NORMAL_STATE:
		return Normal, true
	default:
		return Unknown, false
	}
}

// classify compares the gateway reading against the predicted gateway. The
// margin keeps measurement noise from flapping a node between supply and
// demand.
func classify(gateway float64, target float64, margin float64) State {
	if gateway > target+margin {
		return Supply
	}
	if gateway < target-margin {
		return Demand
	}
	return Normal
}
