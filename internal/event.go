package internal

import "encoding/json"

// Event is the envelope published to the engine transport.
type Event struct {
	Kind       string          `json:"kind"`
	Repository string          `json:"repository,omitempty"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}
