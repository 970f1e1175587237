package views

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/infrastructure/redpanda"
)

// Updater folds consumed event messages into the view store. It is the
// consumer-side half of the outbox pipeline.
type Updater struct {
	store  *Store
	logger *zap.Logger
}

func NewUpdater(store *Store, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{store: store, logger: logger}
}

// Handle dispatches a consumed message by topic. Returning an error leaves
// the offset uncommitted so the message is redelivered.
func (u *Updater) Handle(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	switch msg.Topic {
	case redpanda.TopicAppointmentEvents:
		var event appointment.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Malformed payloads can never succeed; log and commit past them.
			u.logger.Error("unparseable appointment event",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		if err := u.store.ApplyAppointmentEvent(ctx, &event); err != nil {
			return fmt.Errorf("apply appointment event %s v%d: %w", event.AggregateID, event.Version, err)
		}
		return nil

	case redpanda.TopicScheduleEvents:
		var sched schedule.Schedule
		if err := json.Unmarshal(msg.Value, &sched); err != nil {
			u.logger.Error("unparseable schedule snapshot",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		if err := u.store.UpsertSchedule(ctx, &sched); err != nil {
			return fmt.Errorf("upsert schedule %s: %w", sched.ID.String(), err)
		}
		return nil

	default:
		u.logger.Debug("ignoring message on unexpected topic", zap.String("topic", msg.Topic))
		return nil
	}
}
