package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
	"crew-orchestrator/internal/utils"
)

// ApproveCheckpoint records an approval and resumes the crew job.
func (s *Service) ApproveCheckpoint(ctx context.Context, user *models.UserEntity, checkpointID uuid.UUID, feedback string) (*models.ReviewCheckpointResponse, error) {
	return s.reviewCheckpoint(ctx, user, checkpointID, feedback, true)
}

// RejectCheckpoint records a rejection and resumes the crew job with the
// feedback; the crew retries the task, so the execution's retry counter is
// bumped.
func (s *Service) RejectCheckpoint(ctx context.Context, user *models.UserEntity, checkpointID uuid.UUID, feedback string) (*models.ReviewCheckpointResponse, error) {
	return s.reviewCheckpoint(ctx, user, checkpointID, feedback, false)
}

// reviewCheckpoint commits the review, then calls the runner. If the resume
// call fails the review is rolled back to pending in a compensating
// transaction so the checkpoint stays actionable.
func (s *Service) reviewCheckpoint(ctx context.Context, user *models.UserEntity, checkpointID uuid.UUID, feedback string, approve bool) (*models.ReviewCheckpointResponse, error) {
	checkpoint, err := s.checkpoints.GetOwned(ctx, checkpointID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, models.ErrNotFound)
	}
	if checkpoint.Status != models.CheckpointStatusPending {
		return nil, fmt.Errorf("checkpoint %s is already %s: %w", checkpointID, checkpoint.Status, models.ErrInvalidState)
	}

	execution := checkpoint.Execution
	if execution == nil || !execution.CrewJobID.Valid {
		return nil, fmt.Errorf("checkpoint %s has no resumable crew job: %w", checkpointID, models.ErrInvalidState)
	}

	status := models.CheckpointStatusApproved
	action := "Approved"
	if !approve {
		status = models.CheckpointStatusRejected
		action = "Rejected"
	}

	err = s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.checkpoints.MarkReviewed(ctx, checkpointID, status, user.ID, feedback, opts...); err != nil {
			return err
		}
		return s.activities.Create(ctx, &models.ActivityEntity{
			ExecutionID: execution.ID,
			AgentName:   user.Name,
			Type:        models.ActivityTypeMessage,
			Message:     fmt.Sprintf("%s %s checkpoint: %s", action, checkpoint.Type, feedback),
			Metadata: map[string]interface{}{
				"is_human":      true,
				"checkpoint_id": checkpointID.String(),
				"action":        string(status),
			},
		}, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record review: %w", err)
	}

	if err := s.runner.Resume(ctx, execution.CrewJobID.String, checkpoint.TaskID, feedback, approve); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"checkpoint_id": checkpointID,
			"execution_id":  execution.ID,
		}).Error("Crew resume failed, reverting review")

		if revertErr := s.checkpoints.RevertToPending(ctx, checkpointID, status); revertErr != nil {
			s.log.WithError(revertErr).WithField("checkpoint_id", checkpointID).Error("Failed to revert checkpoint to pending")
		}
		return nil, fmt.Errorf("crew resume failed: %w", err)
	}

	if err := s.executions.SetStatus(ctx, execution.ID, models.ExecutionStatusRunning); err != nil {
		s.log.WithError(err).WithField("execution_id", execution.ID).Warn("Failed to move execution back to running after review")
	}
	if !approve {
		if err := s.executions.IncrementRetry(ctx, execution.ID); err != nil {
			s.log.WithError(err).WithField("execution_id", execution.ID).Warn("Failed to bump retry count")
		}
	}

	s.stream.Broadcast(execution.ID, "approval", map[string]interface{}{
		"checkpoint_id": checkpointID.String(),
		"status":        string(status),
		"feedback":      feedback,
		"will_retry":    !approve,
	})

	return &models.ReviewCheckpointResponse{
		Status:       string(status),
		CheckpointID: checkpointID,
		ExecutionID:  execution.ID,
		Message:      fmt.Sprintf("Checkpoint %s, crew resumed", status),
		CrewResumed:  true,
		WillRetry:    !approve,
	}, nil
}

// ListPendingCheckpoints returns the caller's review queue, newest first.
func (s *Service) ListPendingCheckpoints(ctx context.Context, user *models.UserEntity, filter *repository.PendingCheckpointFilter) (*models.PendingCheckpointsResponse, error) {
	if filter == nil {
		filter = &repository.PendingCheckpointFilter{}
	}
	filter.Limit = utils.ClampLimit(filter.Limit, 20, 100)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, fmt.Errorf("unknown checkpoint type %q: %w", *filter.Type, models.ErrValidation)
	}

	checkpoints, total, err := s.checkpoints.ListPending(ctx, user.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending checkpoints: %w", err)
	}

	items := make([]models.CheckpointResponse, 0, len(checkpoints))
	for i := range checkpoints {
		items = append(items, models.NewCheckpointResponse(&checkpoints[i]))
	}

	return &models.PendingCheckpointsResponse{
		Checkpoints: items,
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}, nil
}

// GetCheckpoint returns one checkpoint the caller owns.
func (s *Service) GetCheckpoint(ctx context.Context, user *models.UserEntity, checkpointID uuid.UUID) (*models.CheckpointResponse, error) {
	checkpoint, err := s.checkpoints.GetOwned(ctx, checkpointID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, models.ErrNotFound)
	}
	resp := models.NewCheckpointResponse(checkpoint)
	return &resp, nil
}
