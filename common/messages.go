package common

import (
	"time"
)

const SUPPLY_STATE = "supply"
const DEMAND_STATE = "demand"
const NORMAL_STATE = "normal"

type StateChangeMessage struct {
	Id        string
	State     string
	Timestamp time.Time
}

type DraftRequestMessage struct {
	Id        string
	Timestamp time.Time
}

type DraftResponseMessage struct {
	Id        string
	Accepted  bool
	Timestamp time.Time
}

type PeerListMessage struct {
	Coordinator string
	Peers       []string
	Timestamp   time.Time
}

const STATE_CHANGE_EVENT = "com.siemens.gridlb.statechange"
const DRAFT_REQUEST_EVENT = "com.siemens.gridlb.draftrequest"
const DRAFT_RESPONSE_EVENT = "com.siemens.gridlb.draftresponse"
const PEER_LIST_EVENT = "com.siemens.gridlb.peerlist"

func AppendId(eventType string, id string) string {
	return eventType + "_" + id
}
