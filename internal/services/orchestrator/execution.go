package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

// StartExecution creates a new execution and kicks off the crew job. The
// execution row is committed before the runner is called so a kickoff
// failure leaves an auditable failed run rather than nothing.
func (s *Service) StartExecution(ctx context.Context, user *models.UserEntity, req *models.StartExecutionRequest) (*models.StartExecutionResponse, error) {
	if !req.WorkflowMode.Valid() {
		return nil, fmt.Errorf("unknown workflow mode %q: %w", req.WorkflowMode, models.ErrValidation)
	}
	if req.WorkflowMode == models.WorkflowModeRevision && req.RevisionInstructions == "" {
		return nil, fmt.Errorf("revision mode requires revision_instructions: %w", models.ErrValidation)
	}

	project, err := s.projects.GetOwned(ctx, req.ProjectID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", req.ProjectID, models.ErrNotFound)
	}

	execution := &models.ExecutionEntity{
		ProjectID:    project.ID,
		WorkflowMode: req.WorkflowMode,
		Status:       models.ExecutionStatusPending,
		StartedAt:    time.Now().UTC(),
		CreatedBy:    user.ID,
	}
	if err := s.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	crewJobID, err := s.runner.Start(ctx, buildCrewInputs(project, req))
	if err != nil {
		msg := err.Error()
		if finishErr := s.executions.Finish(ctx, execution.ID, models.ExecutionStatusFailed, &msg); finishErr != nil {
			s.log.WithError(finishErr).WithField("execution_id", execution.ID).Error("Failed to mark execution failed after kickoff error")
		}
		return nil, fmt.Errorf("crew kickoff failed: %w", err)
	}

	err = s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.executions.SetCrewJobID(ctx, execution.ID, crewJobID, opts...); err != nil {
			return err
		}
		if err := s.executions.SetStatus(ctx, execution.ID, models.ExecutionStatusRunning, opts...); err != nil {
			return err
		}
		return s.activities.Create(ctx, &models.ActivityEntity{
			ExecutionID: execution.ID,
			AgentName:   models.SystemAgentName,
			Type:        models.ActivityTypeCrewKickoff,
			Message:     fmt.Sprintf("Crew execution started in %s mode", req.WorkflowMode),
			Metadata:    map[string]interface{}{"crew_job_id": crewJobID},
		}, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record kickoff: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"execution_id": execution.ID,
		"project_id":   project.ID,
		"crew_job_id":  crewJobID,
	}).Info("Execution started")

	return &models.StartExecutionResponse{
		ExecutionID: execution.ID,
		ProjectID:   project.ID,
		Status:      models.ExecutionStatusRunning,
		CrewJobID:   crewJobID,
		Message:     "Crew execution started",
		StreamURL:   s.streamURL(execution),
	}, nil
}

// CancelExecution moves a non-terminal execution to cancelled. The runner
// cancel call is best-effort: the local state transition happens whether or
// not the platform acknowledged.
func (s *Service) CancelExecution(ctx context.Context, user *models.UserEntity, executionID uuid.UUID) (*models.CancelExecutionResponse, error) {
	execution, err := s.executions.GetOwned(ctx, executionID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if execution == nil {
		return nil, fmt.Errorf("execution %s: %w", executionID, models.ErrNotFound)
	}
	if execution.Status.IsTerminal() {
		return nil, fmt.Errorf("execution %s is already %s: %w", executionID, execution.Status, models.ErrInvalidState)
	}

	runnerCancelled := false
	if execution.CrewJobID.Valid {
		runnerCancelled, err = s.runner.Cancel(ctx, execution.CrewJobID.String)
		if err != nil {
			s.log.WithError(err).WithField("execution_id", executionID).Warn("Crew runner cancel failed, cancelling locally anyway")
		}
	}

	err = s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.executions.Finish(ctx, executionID, models.ExecutionStatusCancelled, nil, opts...); err != nil {
			return err
		}
		return s.activities.Create(ctx, &models.ActivityEntity{
			ExecutionID: executionID,
			AgentName:   models.SystemAgentName,
			Type:        models.ActivityTypeMessage,
			Message:     "Execution cancelled by user",
			Metadata:    map[string]interface{}{"runner_cancelled": runnerCancelled},
		}, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel execution: %w", err)
	}

	s.stream.Broadcast(executionID, "cancelled", map[string]interface{}{
		"execution_id":     executionID.String(),
		"status":           string(models.ExecutionStatusCancelled),
		"runner_cancelled": runnerCancelled,
	})

	execution.Status = models.ExecutionStatusCancelled
	execution.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	s.notifier.ExecutionFinished(ctx, execution)

	return &models.CancelExecutionResponse{
		ExecutionID:     executionID,
		Status:          models.ExecutionStatusCancelled,
		Message:         "Execution cancelled",
		RunnerCancelled: runnerCancelled,
	}, nil
}

// GetStatus returns the execution snapshot, the oldest pending checkpoint
// if any, and the number of live streaming connections.
func (s *Service) GetStatus(ctx context.Context, user *models.UserEntity, executionID uuid.UUID) (*models.ExecutionStatusResponse, error) {
	execution, err := s.executions.GetOwned(ctx, executionID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if execution == nil {
		return nil, fmt.Errorf("execution %s: %w", executionID, models.ErrNotFound)
	}

	resp := &models.ExecutionStatusResponse{
		ExecutionID:       execution.ID,
		ProjectID:         execution.ProjectID,
		Status:            execution.Status,
		WorkflowMode:      execution.WorkflowMode,
		StartedAt:         execution.StartedAt,
		RetryCount:        execution.RetryCount,
		Metrics:           execution.Metrics,
		ActiveConnections: s.stream.ConnectionCount(execution.ID),
	}
	if execution.CompletedAt.Valid {
		resp.CompletedAt = utils.ToPointer(execution.CompletedAt.Time)
	}
	if execution.ErrorMessage.Valid {
		resp.ErrorMessage = execution.ErrorMessage.String
	}

	pending, err := s.checkpoints.GetPendingByExecution(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending checkpoint: %w", err)
	}
	if pending != nil {
		resp.PendingCheckpoint = &models.PendingCheckpointSummary{
			CheckpointID:   pending.ID,
			CheckpointType: pending.Type,
			TaskID:         pending.TaskID,
			CreatedAt:      pending.CreatedAt,
		}
	}
	return resp, nil
}

// GetMessages returns the execution's activity history in chronological
// order, paginated.
func (s *Service) GetMessages(ctx context.Context, user *models.UserEntity, executionID uuid.UUID, limit, offset int) (*models.MessagesResponse, error) {
	execution, err := s.executions.GetOwned(ctx, executionID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if execution == nil {
		return nil, fmt.Errorf("execution %s: %w", executionID, models.ErrNotFound)
	}

	limit = utils.ClampLimit(limit, 50, 200)
	if offset < 0 {
		offset = 0
	}

	activities, total, err := s.activities.ListByExecution(ctx, execution.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}

	messages := make([]models.MessageResponse, 0, len(activities))
	for i := range activities {
		activity := &activities[i]
		messages = append(messages, models.MessageResponse{
			MessageID:    activity.ID,
			Timestamp:    activity.Timestamp,
			SenderType:   activity.SenderType(),
			SenderName:   activity.AgentName,
			ActivityType: activity.Type,
			Content:      activity.Message,
			Metadata:     activity.Metadata,
		})
	}

	return &models.MessagesResponse{
		ExecutionID: execution.ID,
		Messages:    messages,
		Total:       total,
		HasMore:     int64(offset+len(messages)) < total,
	}, nil
}
