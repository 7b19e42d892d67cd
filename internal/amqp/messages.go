package amqp

import (
	"encoding/json"
	"time"
)

// DaySavedMessage announces that a day record changed. It carries only the
// date and the version; the worker reads the full record from SQLite.
type DaySavedMessage struct {
	Date      string    `json:"date"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDaySavedMessage(date string, version int64) *DaySavedMessage {
	return &DaySavedMessage{
		Date:      date,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *DaySavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DaySavedMessageFromJSON(data []byte) (*DaySavedMessage, error) {
	var msg DaySavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
