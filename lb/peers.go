package lb

import (
	"sort"
	"time"
)

type Peer struct {
	Id       string
	State    State
	LastSeen time.Time
}

// peerRegistry tracks every known peer and its last reported classification.
// A peer is a member of at most one classification set at a time; the node's
// own identity is never part of the registry.
type peerRegistry struct {
	selfId string
	roster map[string]*Peer
	sets   map[State]map[string]*Peer
}

func newPeerRegistry(selfId string, initial []string) *peerRegistry {
	r := &peerRegistry{
		selfId: selfId,
		roster: make(map[string]*Peer),
		sets: map[State]map[string]*Peer{
			Supply: make(map[string]*Peer),
			Demand: make(map[string]*Peer),
			Normal: make(map[string]*Peer),
		},
	}

	for _, id := range initial {
		r.add(id)
	}

	return r
}

func (r *peerRegistry) add(id string) {
	if id == r.selfId || id == "" {
		return
	}
	if _, ok := r.roster[id]; ok {
		return
	}
	r.roster[id] = &Peer{Id: id, State: Unknown}
}

func (r *peerRegistry) remove(id string) {
	delete(r.roster, id)
	for _, set := range r.sets {
		delete(set, id)
	}
}

func (r *peerRegistry) contains(id string) bool {
	_, ok := r.roster[id]
	return ok
}

// setState moves the peer into the classification set for its newly reported
// state, removing it from any other set first.
func (r *peerRegistry) setState(id string, state State) {
	peer, ok := r.roster[id]
	if !ok {
		return
	}

	for _, set := range r.sets {
		delete(set, id)
	}

	peer.State = state
	peer.LastSeen = time.Now()

	if set, ok := r.sets[state]; ok {
		set[id] = peer
	}
}

func (r *peerRegistry) peersIn(state State) []string {
	set, ok := r.sets[state]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (r *peerRegistry) rosterIds() []string {
	ids := make([]string, 0, len(r.roster))
	for id := range r.roster {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (r *peerRegistry) countIn(state State) int {
	if state == Unknown {
		unknown := len(r.roster)
		for _, set := range r.sets {
			unknown -= len(set)
		}
		return unknown
	}
	return len(r.sets[state])
}

// reconcile replaces the roster with the listed identities. Peers no longer
// listed are dropped from the roster and every classification set; new peers
// start out unclassified. Reports whether anything changed.
func (r *peerRegistry) reconcile(ids []string) bool {
	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != r.selfId && id != "" {
			listed[id] = true
		}
	}

	changed := false

	for id := range r.roster {
		if !listed[id] {
			r.remove(id)
			changed = true
		}
	}

	for id := range listed {
		if !r.contains(id) {
			r.add(id)
			changed = true
		}
	}

	return changed
}
