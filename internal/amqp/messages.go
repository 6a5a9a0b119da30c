package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a change to the ledger.
type EventType string

const (
	UserCreated    EventType = "user.created"
	IncomeCreated  EventType = "income.created"
	IncomeDeleted  EventType = "income.deleted"
	ExpenseCreated EventType = "expense.created"
	ExpenseDeleted EventType = "expense.deleted"
	BudgetUpserted EventType = "budget.upserted"
	BudgetDeleted  EventType = "budget.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case UserCreated, IncomeCreated, IncomeDeleted, ExpenseCreated, ExpenseDeleted, BudgetUpserted, BudgetDeleted:
		return true
	}
	return false
}

// LedgerEvent is published after a successful write. It carries enough of
// the record for consumers to act without reading the store back.
// Amounts travel as decimal text.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	RecordID  string    `json:"record_id"`
	UserID    string    `json:"user_id,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Label     string    `json:"label,omitempty"`
	Date      string    `json:"date,omitempty"`
	Period    string    `json:"period,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(t EventType, recordID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      t,
		RecordID:  recordID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.RecordID == "" {
		return nil, fmt.Errorf("event %s has no record id", ev.Type)
	}
	return &ev, nil
}
