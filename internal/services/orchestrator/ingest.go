package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/services/events"
	"crew-orchestrator/internal/utils"
)

// IngestHITLNotification handles the runner's human-input callback by
// opening a checkpoint and parking the execution. Duplicate notifications
// for the same (execution, task) resolve to the already-pending checkpoint.
func (s *Service) IngestHITLNotification(ctx context.Context, payload *models.HITLWebhookPayload) (*models.HITLWebhookResponse, error) {
	execution, err := s.executions.GetByCrewJobID(ctx, payload.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve crew job: %w", err)
	}
	if execution == nil {
		return nil, fmt.Errorf("crew job %s: %w", payload.ExecutionID, models.ErrNotFound)
	}

	existing, err := s.ledger.ExistingPending(ctx, execution.ID, payload.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending checkpoint: %w", err)
	}
	if existing != nil {
		return &models.HITLWebhookResponse{
			Status:       "already_pending",
			CheckpointID: existing.ID.String(),
			Message:      "Checkpoint already awaiting review",
		}, nil
	}

	agentName := payload.AgentName
	if agentName == "" {
		agentName = models.SystemAgentName
	}

	checkpoint := &models.CheckpointEntity{
		ExecutionID: execution.ID,
		Type:        models.ClassifyCheckpointType(payload.TaskID),
		TaskID:      payload.TaskID,
		Status:      models.CheckpointStatusPending,
		Content:     payload.TaskOutput,
		Metadata:    map[string]interface{}{"agent_name": agentName},
	}

	err = s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.checkpoints.Create(ctx, checkpoint, opts...); err != nil {
			return err
		}
		if err := s.executions.SetStatus(ctx, execution.ID, models.ExecutionStatusAwaitingApproval, opts...); err != nil {
			return err
		}
		return s.activities.Create(ctx, &models.ActivityEntity{
			ExecutionID: execution.ID,
			AgentName:   agentName,
			Type:        models.ActivityTypeMessage,
			Message:     fmt.Sprintf("Review requested (%s): %s", checkpoint.Type, utils.TruncateForLog(payload.TaskOutput, 200)),
			Metadata: map[string]interface{}{
				"checkpoint_id": checkpoint.ID.String(),
				"task_id":       payload.TaskID,
			},
		}, opts...)
	})
	if err != nil {
		// A concurrent duplicate notification lost the race against the
		// partial unique index; answer with the winner's checkpoint.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if winner, lookupErr := s.ledger.ExistingPending(ctx, execution.ID, payload.TaskID); lookupErr == nil && winner != nil {
				return &models.HITLWebhookResponse{
					Status:       "already_pending",
					CheckpointID: winner.ID.String(),
					Message:      "Checkpoint already awaiting review",
				}, nil
			}
		}
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}

	s.stream.Broadcast(execution.ID, "checkpoint", map[string]interface{}{
		"checkpoint_id":   checkpoint.ID.String(),
		"checkpoint_type": string(checkpoint.Type),
		"task_id":         checkpoint.TaskID,
		"content":         checkpoint.Content,
	})
	s.notifier.CheckpointPending(ctx, execution, checkpoint)

	s.log.WithFields(logrus.Fields{
		"execution_id":    execution.ID,
		"checkpoint_id":   checkpoint.ID,
		"checkpoint_type": checkpoint.Type,
	}).Info("Checkpoint created")

	return &models.HITLWebhookResponse{
		Status:       "checkpoint_created",
		CheckpointID: checkpoint.ID.String(),
		Message:      "Execution paused for human review",
	}, nil
}

// IngestEventBatch applies a batch of runner events to execution histories.
// Events are processed in timestamp order; one bad event never fails the
// batch, it is only counted.
func (s *Service) IngestEventBatch(ctx context.Context, batch []models.WebhookEvent) *models.EventIngestSummary {
	events.SortByTimestamp(batch)

	summary := &models.EventIngestSummary{
		Status: "processed",
		Total:  len(batch),
	}
	executionCache := make(map[string]*models.ExecutionEntity)

	for i := range batch {
		event := &batch[i]

		if event.ID != "" && s.ledger.SeenEvent(ctx, event.ID) {
			summary.Skipped++
			continue
		}

		execution, ok := executionCache[event.ExecutionID]
		if !ok {
			var err error
			execution, err = s.executions.GetByCrewJobID(ctx, event.ExecutionID)
			if err != nil {
				s.log.WithError(err).WithField("crew_job_id", event.ExecutionID).Error("Failed to resolve crew job for event")
				summary.Errors++
				continue
			}
			executionCache[event.ExecutionID] = execution
		}
		if execution == nil {
			s.log.WithFields(logrus.Fields{
				"crew_job_id": event.ExecutionID,
				"event_type":  event.Type,
			}).Warn("Dropping event for unknown crew job")
			summary.Skipped++
			continue
		}

		message, activityType := events.Normalize(event)
		activity := &models.ActivityEntity{
			ExecutionID: execution.ID,
			AgentName:   events.ActorName(event),
			Type:        activityType,
			Message:     message,
			Timestamp:   event.Timestamp,
			EventID:     sql.NullString{String: event.ID, Valid: event.ID != ""},
			Metadata: map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
				"event_data": event.Data,
			},
		}

		if err := s.ledger.RecordEventActivity(ctx, activity); err != nil {
			if errors.Is(err, models.ErrDuplicateEvent) {
				summary.Skipped++
				continue
			}
			s.log.WithError(err).WithField("event_id", event.ID).Error("Failed to record event activity")
			summary.Errors++
			continue
		}
		summary.Processed++

		s.stream.Broadcast(execution.ID, "message", map[string]interface{}{
			"message_id":    activity.ID.String(),
			"content":       activity.Message,
			"sender_name":   activity.AgentName,
			"sender_type":   activity.SenderType(),
			"activity_type": string(activity.Type),
			"timestamp":     activity.Timestamp.Format(time.RFC3339),
		})

		s.applyTerminalEvent(ctx, execution, event)
	}

	return summary
}

// applyTerminalEvent finishes the execution when the runner reports the
// crew is done. A Finish on an already-terminal execution affects nothing
// and is only logged.
func (s *Service) applyTerminalEvent(ctx context.Context, execution *models.ExecutionEntity, event *models.WebhookEvent) {
	var (
		status   models.ExecutionStatus
		errorMsg *string
	)

	switch event.Type {
	case "crew_kickoff_completed":
		status = models.ExecutionStatusCompleted
	case "crew_kickoff_failed":
		status = models.ExecutionStatusFailed
		msg := "Crew execution failed"
		if detail, ok := event.Data["error"].(string); ok && detail != "" {
			msg = detail
		}
		errorMsg = &msg
	default:
		return
	}

	if err := s.executions.Finish(ctx, execution.ID, status, errorMsg); err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			s.log.WithField("execution_id", execution.ID).Debug("Terminal event for already-finished execution")
			return
		}
		s.log.WithError(err).WithField("execution_id", execution.ID).Error("Failed to finish execution")
		return
	}

	if metrics, ok := event.Data["metrics"].(map[string]interface{}); ok && len(metrics) > 0 {
		if err := s.executions.UpdateMetrics(ctx, execution.ID, metrics); err != nil {
			s.log.WithError(err).WithField("execution_id", execution.ID).Warn("Failed to store execution metrics")
		}
	}

	s.stream.Broadcast(execution.ID, "status", map[string]interface{}{
		"execution_id": execution.ID.String(),
		"status":       string(status),
	})

	execution.Status = status
	if errorMsg != nil {
		execution.ErrorMessage = sql.NullString{String: *errorMsg, Valid: true}
	}
	s.notifier.ExecutionFinished(ctx, execution)
}
