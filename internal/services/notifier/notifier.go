package notifier

import (
	"context"

	"crew-orchestrator/internal/models"
)

// Notifier pushes review-relevant moments to a human channel. Delivery is
// best-effort; orchestration flows never fail on a notification error.
type Notifier interface {
	CheckpointPending(ctx context.Context, execution *models.ExecutionEntity, checkpoint *models.CheckpointEntity)
	ExecutionFinished(ctx context.Context, execution *models.ExecutionEntity)
}

type noopNotifier struct{}

// NewNoop returns a Notifier that discards everything. Used when no
// Telegram bot token is configured.
func NewNoop() Notifier {
	return &noopNotifier{}
}

func (n *noopNotifier) CheckpointPending(context.Context, *models.ExecutionEntity, *models.CheckpointEntity) {
}

func (n *noopNotifier) ExecutionFinished(context.Context, *models.ExecutionEntity) {}
