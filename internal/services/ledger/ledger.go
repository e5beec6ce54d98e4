package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
	"crew-orchestrator/internal/utils"
	"crew-orchestrator/pkg/redis"
)

const (
	eventKeyPrefix = "crew:event:"
	eventKeyTTL    = 24 * time.Hour
)

// Ledger tracks which inbound webhook identifiers have already been
// applied. The database uniqueness constraints are the source of truth for
// both dedupe keys; Redis only serves as a cheap fast-path hint and is
// failure-open, so a Redis outage degrades to constraint-only dedupe.
type Ledger struct {
	activities  repository.ActivityRepository
	checkpoints repository.CheckpointRepository
	redis       *redis.Client
	log         *logrus.Logger
}

func New(activities repository.ActivityRepository, checkpoints repository.CheckpointRepository, redisClient *redis.Client, log *logrus.Logger) *Ledger {
	return &Ledger{
		activities:  activities,
		checkpoints: checkpoints,
		redis:       redisClient,
		log:         log,
	}
}

// SeenEvent reports whether the event id has already been recorded. The
// Redis hint answers cheaply for recent events; on a miss the activity
// table is consulted and the hint refreshed. Lookup failures are
// failure-open: RecordEventActivity still hits the unique constraint.
func (l *Ledger) SeenEvent(ctx context.Context, eventID string) bool {
	if l.redis != nil {
		exists, err := l.redis.Exists(ctx, eventKeyPrefix+eventID).Result()
		if err != nil {
			l.log.WithError(err).Debug("Event hint lookup failed")
		} else if exists > 0 {
			return true
		}
	}

	seen, err := l.activities.HasEvent(ctx, eventID)
	if err != nil {
		l.log.WithError(err).Debug("Event lookup failed, falling back to constraint")
		return false
	}
	if seen {
		l.markEventSeen(ctx, eventID)
	}
	return seen
}

// RecordEventActivity appends an event-derived activity. A duplicate event
// id surfaces as models.ErrDuplicateEvent; on success the Redis hint is
// refreshed.
func (l *Ledger) RecordEventActivity(ctx context.Context, activity *models.ActivityEntity, opts ...utils.DBOption) error {
	if err := l.activities.Create(ctx, activity, opts...); err != nil {
		if errors.Is(err, models.ErrDuplicateEvent) && activity.EventID.Valid {
			l.markEventSeen(ctx, activity.EventID.String)
		}
		return err
	}
	if activity.EventID.Valid {
		l.markEventSeen(ctx, activity.EventID.String)
	}
	return nil
}

// ExistingPending returns the already-pending checkpoint for the
// (execution, task) pair, or nil when a new one may be created.
func (l *Ledger) ExistingPending(ctx context.Context, executionID uuid.UUID, taskID string, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	return l.checkpoints.GetPendingByTask(ctx, executionID, taskID, opts...)
}

func (l *Ledger) markEventSeen(ctx context.Context, eventID string) {
	if l.redis == nil {
		return
	}
	if err := l.redis.SetNX(ctx, eventKeyPrefix+eventID, 1, eventKeyTTL).Err(); err != nil {
		l.log.WithError(err).Debug("Failed to set event hint")
	}
}
