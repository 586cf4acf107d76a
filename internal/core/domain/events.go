package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an observation emitted by a successful ledger call.
type EventType string

const (
	EventNameRegistered         EventType = "NameRegistered"
	EventNameRenewed            EventType = "NameRenewed"
	EventNameTransferred        EventType = "NameTransferred"
	EventNameReleased           EventType = "NameReleased"
	EventRegistrationFeeUpdated EventType = "RegistrationFeeUpdated"
	EventPaused                 EventType = "Paused"
	EventUnpaused               EventType = "Unpaused"
	EventFeesWithdrawn          EventType = "FeesWithdrawn"
)

// Event is a persisted observation. Seq is assigned by the store on append
// and is strictly increasing in commit order.
type Event struct {
	Seq        int64            `json:"seq"`
	ID         string           `json:"id"`
	Type       EventType        `json:"type"`
	Name       string           `json:"name,omitempty"`
	Owner      Account          `json:"owner,omitempty"`
	From       Account          `json:"from,omitempty"`
	To         Account          `json:"to,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	OldFee     *decimal.Decimal `json:"old_fee,omitempty"`
	NewFee     *decimal.Decimal `json:"new_fee,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func NameRegistered(name string, owner Account, expiresAt, at time.Time) Event {
	return Event{Type: EventNameRegistered, Name: name, Owner: owner, ExpiresAt: &expiresAt, OccurredAt: at}
}

func NameRenewed(name string, owner Account, newExpiresAt, at time.Time) Event {
	return Event{Type: EventNameRenewed, Name: name, Owner: owner, ExpiresAt: &newExpiresAt, OccurredAt: at}
}

func NameTransferred(name string, from, to Account, at time.Time) Event {
	return Event{Type: EventNameTransferred, Name: name, From: from, To: to, OccurredAt: at}
}

func NameReleased(name string, owner Account, at time.Time) Event {
	return Event{Type: EventNameReleased, Name: name, Owner: owner, OccurredAt: at}
}

func RegistrationFeeUpdated(oldFee, newFee decimal.Decimal, at time.Time) Event {
	return Event{Type: EventRegistrationFeeUpdated, OldFee: &oldFee, NewFee: &newFee, OccurredAt: at}
}

func PausedBy(by Account, at time.Time) Event {
	return Event{Type: EventPaused, Owner: by, OccurredAt: at}
}

func UnpausedBy(by Account, at time.Time) Event {
	return Event{Type: EventUnpaused, Owner: by, OccurredAt: at}
}

func FeesWithdrawn(to Account, amount decimal.Decimal, at time.Time) Event {
	return Event{Type: EventFeesWithdrawn, To: to, Amount: &amount, OccurredAt: at}
}
