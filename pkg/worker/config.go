package worker

import (
	"strings"

	"github.com/brandonmcclure/classy/internal"
)

// SubscriberConfig selects the transport the worker consumes from. It reads
// the same watermill block the gateway publishes with.
type SubscriberConfig struct {
	internal.WatermillConfig
	ConsumerGroup  string
	Durable        string
	ClientIDSuffix string
}

// SubscriberConfigFrom derives the subscriber side of a gateway configuration.
func SubscriberConfigFrom(cfg internal.Config) SubscriberConfig {
	return SubscriberConfig{
		WatermillConfig: cfg.Watermill,
		ConsumerGroup:   cfg.Worker.ConsumerGroup,
		Durable:         cfg.Worker.Durable,
		ClientIDSuffix:  cfg.Worker.ClientIDSuffix,
	}
}

// Topics lists every topic the gateway can publish to: the default topic per
// kind plus the topics emitted by routing rules.
func Topics(cfg internal.Config) []string {
	topics := []string{cfg.Engine.PushTopic, cfg.Engine.CommentTopic}
	for _, rule := range cfg.Rules {
		for _, topic := range rule.Emit {
			if topic = strings.TrimSpace(topic); topic != "" {
				topics = append(topics, topic)
			}
		}
	}
	return unique(topics)
}
