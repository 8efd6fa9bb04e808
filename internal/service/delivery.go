package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/vedran77/hideout/internal/domain"
	"github.com/vedran77/hideout/internal/repository"
)

// Notifier pushes real-time events to connected users. Implementations must
// not block on the recipients' connections.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, msg *domain.Message, recipients []uuid.UUID) error
}

// Fanout delivers persisted messages to the other participants of their
// conversation. Delivery is best effort: failures are logged, never returned.
type Fanout struct {
	convRepo repository.ConversationRepository
	notifier Notifier
}

func NewFanout(convRepo repository.ConversationRepository) *Fanout {
	return &Fanout{convRepo: convRepo}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (f *Fanout) SetNotifier(n Notifier) {
	f.notifier = n
}

// Deliver must only be called after msg has been committed.
func (f *Fanout) Deliver(ctx context.Context, msg *domain.Message) {
	if f.notifier == nil {
		return
	}
	if err := f.deliver(context.WithoutCancel(ctx), msg); err != nil {
		log.Printf("ERROR deliver message %s: %v", msg.ID, err)
	}
}

func (f *Fanout) deliver(ctx context.Context, msg *domain.Message) error {
	participants, err := f.convRepo.ListParticipantIDs(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("%w: listing participants: %v", domain.ErrDeliveryFailure, err)
	}

	to := recipients(participants, msg.SenderID)
	if len(to) == 0 {
		return nil
	}
	if err := f.notifier.NotifyNewMessage(ctx, msg, to); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}
	return nil
}

// recipients is participants minus the sender. A nil sender (AI) excludes
// nobody.
func recipients(participants []uuid.UUID, sender *uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(participants))
	for _, id := range participants {
		if sender != nil && id == *sender {
			continue
		}
		out = append(out, id)
	}
	return out
}
