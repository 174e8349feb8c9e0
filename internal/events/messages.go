package events

import (
	"encoding/json"
	"time"
)

// RecordChanged announces that a record was created or updated through the ledger.
type RecordChanged struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	Operation string `json:"operation"`
	UserID    string `json:"user_id"`
	// Changes lists the top-level fields an update touched, when known.
	Changes   []string  `json:"changes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordChanged(entity, id, operation, userID string) RecordChanged {
	return RecordChanged{
		Entity:    entity,
		ID:        id,
		Operation: operation,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

func (m RecordChanged) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordChangedFromJSON(data []byte) (RecordChanged, error) {
	var msg RecordChanged
	if err := json.Unmarshal(data, &msg); err != nil {
		return RecordChanged{}, err
	}
	return msg, nil
}
