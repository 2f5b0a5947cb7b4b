package domain

import "time"

// TreasuryAccount receives retained fees.
const TreasuryAccount = "protocol:treasury"

// EventType names a committed state transition.
type EventType string

const (
	EventSquadCreated   EventType = "squad.created"
	EventSquadUpdated   EventType = "squad.updated"
	EventSquadDeleted   EventType = "squad.deleted"
	EventSquadRevived   EventType = "squad.revived"
	EventSquadDied      EventType = "squad.died"
	EventBidCreated     EventType = "bid.created"
	EventBidCancelled   EventType = "bid.cancelled"
	EventMatchCreated   EventType = "match.created"
	EventMatchCompleted EventType = "match.completed"
	EventMatchTied      EventType = "match.tied"
	EventMatchDisputed  EventType = "match.disputed"
	EventPrizeClaimed   EventType = "prize.claimed"
	EventDeposited      EventType = "account.deposited"
	EventFeesUpdated    EventType = "fees.updated"
)

// Event is one entry of the append-only transition log.
type Event struct {
	Seq     int64     `json:"seq"`
	Type    EventType `json:"type"`
	Account string    `json:"account,omitempty"`
	BidID   string    `json:"bid_id,omitempty"`
	MatchID string    `json:"match_id,omitempty"`
	SquadID int64     `json:"squad_id,omitempty"`
	Amount  int64     `json:"amount,omitempty"`
	At      time.Time `json:"at"`
}
