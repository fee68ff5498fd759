package worker

import "github.com/brandonmcclure/classy/pkg/autotest"

// Delivery is one commit target received from the engine transport.
type Delivery struct {
	// Topic is the topic the message was received on.
	Topic string
	// Metadata carries the routing metadata set by the gateway (kind,
	// repository, delivery_id, request_id) and the driver for multi-driver
	// subscribers.
	Metadata map[string]string
	// Target is the decoded commit target.
	Target *autotest.CommitTarget
}

// RequestID returns the gateway request id the target was received under.
func (d *Delivery) RequestID() string {
	if d == nil {
		return ""
	}
	return d.Metadata["request_id"]
}
