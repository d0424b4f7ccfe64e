package service

import (
	"context"
	"encoding/json"
	"log"

	"qa-guru-be/internal/model"
	"qa-guru-be/internal/websocket"
	"qa-guru-be/pkg/agent"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IEventConsumerService interface {
	Consume(ctx context.Context) error
}

// eventConsumerService drains the turn events topic and fans each event out
// to the websocket hub.
type eventConsumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	hub       *websocket.Hub
}

func NewEventConsumerService(pubSub *gochannel.GoChannel, topicName string, hub *websocket.Hub) IEventConsumerService {
	return &eventConsumerService{
		pubSub:    pubSub,
		topicName: topicName,
		hub:       hub,
	}
}

func (cs *eventConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *eventConsumerService) processMessage(msg *message.Message) {
	defer msg.Ack()

	var event agent.TurnEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Printf("[EVENT] failed to decode turn event: %v", err)
		return
	}

	cs.hub.Notify(event.SessionID, wsMessageType(event.Type), event.Text)
}

func wsMessageType(eventType string) string {
	switch eventType {
	case agent.EventChunk:
		return model.TurnMessageChunk
	case agent.EventTool:
		return model.TurnMessageTool
	default:
		return model.TurnMessageStatus
	}
}
