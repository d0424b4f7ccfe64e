package service

import (
	"encoding/json"
	"log"

	"qa-guru-be/pkg/agent"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TurnEventsTopic carries live agent turn events from the loop to websocket
// subscribers.
const TurnEventsTopic = "AGENT_TURN_EVENTS"

type IEventPublisherService interface {
	// Publish implements agent.EventSink. It must not block the streaming
	// hot path, so marshal failures are logged and dropped.
	Publish(event agent.TurnEvent)
}

type eventPublisherService struct {
	pubSub    *gochannel.GoChannel
	topicName string
}

func NewEventPublisherService(topicName string, pubSub *gochannel.GoChannel) IEventPublisherService {
	return &eventPublisherService{
		pubSub:    pubSub,
		topicName: topicName,
	}
}

var _ agent.EventSink = &eventPublisherService{}

func (s *eventPublisherService) Publish(event agent.TurnEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENT] failed to marshal turn event: %v", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pubSub.Publish(s.topicName, msg); err != nil {
		log.Printf("[EVENT] failed to publish turn event: %v", err)
	}
}
