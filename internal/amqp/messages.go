package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Op names the ledger change carried by a message.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpDeleteAll Op = "delete_all"
	OpImport    Op = "import"
)

var ErrInvalidMessage = errors.New("invalid ledger change message")

// LedgerChangeMessage announces a write to the ledger. It carries ids only;
// consumers load the entry from the database.
type LedgerChangeMessage struct {
	Op        Op        `json:"op"`
	EntryID   int64     `json:"entry_id,omitempty"`
	UserID    int64     `json:"user_id,omitempty"`
	Year      int       `json:"year,omitempty"`
	Month     int       `json:"month,omitempty"`
	Count     int64     `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangeMessage creates a message stamped with the current time.
func NewLedgerChangeMessage(op Op, entryID int64, year, month int) *LedgerChangeMessage {
	return &LedgerChangeMessage{
		Op:        op,
		EntryID:   entryID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// Validate checks that entry operations carry an entry id.
func (m *LedgerChangeMessage) Validate() error {
	switch m.Op {
	case OpCreate, OpUpdate, OpDelete:
		if m.EntryID <= 0 {
			return fmt.Errorf("%w: %s without entry id", ErrInvalidMessage, m.Op)
		}
	case OpDeleteAll, OpImport:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidMessage, m.Op)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangeMessageFromJSON decodes and validates a message.
func LedgerChangeMessageFromJSON(data []byte) (*LedgerChangeMessage, error) {
	var msg LedgerChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
