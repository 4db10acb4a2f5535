package amqp

import (
	"encoding/json"
	"time"
)

// Message kinds routed through the bill events queue.
const (
	KindSync   = "sync"
	KindDelete = "delete"
)

// BillEventMessage is the lightweight envelope published after a bill
// write. Sync events carry only the id; the worker fetches current state
// from the database so a reordered delivery can never resurrect stale
// fields. Delete events also carry the date, the backup row key, since the
// row is already gone from the database.
type BillEventMessage struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncMessage(id int64) *BillEventMessage {
	return &BillEventMessage{Kind: KindSync, ID: id, Timestamp: time.Now()}
}

func NewDeleteMessage(id int64, date string) *BillEventMessage {
	return &BillEventMessage{Kind: KindDelete, ID: id, Date: date, Timestamp: time.Now()}
}

func (m *BillEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MessageFromJSON(data []byte) (*BillEventMessage, error) {
	var msg BillEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
