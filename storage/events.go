package storage

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tessera-modules-api/domain"
)

var lastEventTimestamp int64

// nextEventTimestamp returns a strictly increasing unix-nano timestamp, so
// events produced within the same nanosecond still order deterministically.
func nextEventTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastEventTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventTimestamp, last, now) {
			return now
		}
	}
}

func newEvent(boardID, entityID, entityType, eventType string, data any) domain.Event {
	ev := domain.Event{
		ID:         uuid.NewString(),
		BoardID:    boardID,
		EntityID:   entityID,
		EntityType: entityType,
		Type:       eventType,
		Time:       nextEventTimestamp(),
	}
	if payload, err := json.Marshal(data); err == nil {
		ev.Data = payload
	}
	return ev
}

// publishEvents enqueues domain events after a successful write. Delivery is
// best-effort: the table write already committed, so a queue failure is logged
// and swallowed rather than turned into a request error.
func (s *Storage) publishEvents(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.WithError(err).WithField("eventId", ev.ID).Error("Unable to encode domain event")
			continue
		}
		if _, err := s.eventsQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"eventId":   ev.ID,
				"eventType": ev.Type,
				"boardId":   ev.BoardID,
			}).Error("Unable to publish domain event")
		}
	}
}
