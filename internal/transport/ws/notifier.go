package ws

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/broker"
	"github.com/vedran77/hideout/internal/domain"
)

// BrokerNotifier implements service.Notifier by publishing encoded events
// to the broker every hub subscribes to.
type BrokerNotifier struct {
	broker broker.Broker
}

func NewBrokerNotifier(b broker.Broker) *BrokerNotifier {
	return &BrokerNotifier{broker: b}
}

func (n *BrokerNotifier) NotifyNewMessage(ctx context.Context, msg *domain.Message, recipients []uuid.UUID) error {
	if len(recipients) == 0 {
		return nil
	}
	data, err := encodeEvent(EventTypeMessageNew, &msg.ConversationID, MessagePayload{
		ConversationID: msg.ConversationID,
		Message:        *msg,
	})
	if err != nil {
		return fmt.Errorf("encoding message event: %w", err)
	}
	return n.broker.Publish(ctx, broker.Envelope{UserIDs: recipients, Event: data})
}
