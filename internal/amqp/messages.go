package amqp

import (
	"encoding/json"
	"time"
)

// ClosingSyncMessage announces a persisted closing that still needs
// to be archived. It carries only the ID and version; the worker
// fetches the full history row from the store.
type ClosingSyncMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewClosingSyncMessage(id, version int64) *ClosingSyncMessage {
	return &ClosingSyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *ClosingSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ClosingSyncMessageFromJSON(data []byte) (*ClosingSyncMessage, error) {
	var msg ClosingSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
