package worker

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/brandonmcclure/classy/pkg/autotest"
)

// Codec turns a transport message into a Delivery.
type Codec interface {
	Decode(topic string, msg *message.Message) (*Delivery, error)
}

// DefaultCodec decodes the JSON commit target the gateway publishes. The
// metadata kind fills in a missing kind field.
type DefaultCodec struct{}

func (DefaultCodec) Decode(topic string, msg *message.Message) (*Delivery, error) {
	var target autotest.CommitTarget
	if err := json.Unmarshal(msg.Payload, &target); err != nil {
		return nil, fmt.Errorf("%w: decode target: %v", autotest.ErrValidation, err)
	}
	if target.Kind == "" {
		target.Kind = autotest.Kind(msg.Metadata.Get("kind"))
	}
	if !target.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown target kind %q", autotest.ErrValidation, target.Kind)
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}
	return &Delivery{Topic: topic, Metadata: metadata, Target: &target}, nil
}
