package models

import "encoding/json"

// WSMessage represents a message on the event channel. Event names the topic;
// Data carries the raw payload for that topic.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
