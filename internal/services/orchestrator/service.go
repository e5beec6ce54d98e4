package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
	"crew-orchestrator/internal/services/crewrunner"
	"crew-orchestrator/internal/services/ledger"
	"crew-orchestrator/internal/services/notifier"
	"crew-orchestrator/internal/services/stream"
)

const defaultContentLength = "1500"

// Service coordinates the execution lifecycle: kickoff against the crew
// runner, checkpoint reviews, cancellation, and ingestion of the runner's
// webhook callbacks.
type Service struct {
	cfg         *config.Config
	log         *logrus.Logger
	executions  repository.ExecutionRepository
	checkpoints repository.CheckpointRepository
	activities  repository.ActivityRepository
	projects    repository.ProjectRepository
	unitOfWork  repository.UnitOfWork
	runner      crewrunner.Runner
	ledger      *ledger.Ledger
	stream      *stream.Manager
	notifier    notifier.Notifier
}

func NewService(
	cfg *config.Config,
	log *logrus.Logger,
	executions repository.ExecutionRepository,
	checkpoints repository.CheckpointRepository,
	activities repository.ActivityRepository,
	projects repository.ProjectRepository,
	unitOfWork repository.UnitOfWork,
	runner crewrunner.Runner,
	eventLedger *ledger.Ledger,
	streamManager *stream.Manager,
	reviewNotifier notifier.Notifier,
) *Service {
	return &Service{
		cfg:         cfg,
		log:         log,
		executions:  executions,
		checkpoints: checkpoints,
		activities:  activities,
		projects:    projects,
		unitOfWork:  unitOfWork,
		runner:      runner,
		ledger:      eventLedger,
		stream:      streamManager,
		notifier:    reviewNotifier,
	}
}

// Stream exposes the connection manager for the streaming handler.
func (s *Service) Stream() *stream.Manager {
	return s.stream
}

func (s *Service) streamURL(execution *models.ExecutionEntity) string {
	return fmt.Sprintf("/api/v1/executions/%s/stream", execution.ID)
}

// buildCrewInputs assembles the flat input map the runner's kickoff
// endpoint expects. All values are strings on the wire.
func buildCrewInputs(project *models.ProjectEntity, req *models.StartExecutionRequest) map[string]string {
	inputs := map[string]string{
		"topic":            project.Topic,
		"content_type":     project.ContentType,
		"audience":         project.Audience,
		"ai_language_code": project.AILanguageCode,
		"workflow_mode":    string(req.WorkflowMode),
		"client_id":        project.ClientID.String(),
		"content_length":   defaultContentLength,
	}
	if project.Client != nil {
		inputs["client_name"] = project.Client.Name
	}
	if len(project.Keywords) > 0 {
		inputs["keywords"] = strings.Join(project.Keywords, ", ")
	}

	if req.InitialDraft != "" {
		inputs["initial_draft"] = req.InitialDraft
		inputs["draft_source"] = "user_provided"
		inputs["draft_length"] = strconv.Itoa(len(req.InitialDraft))
		inputs["draft_word_count"] = strconv.Itoa(len(strings.Fields(req.InitialDraft)))
	}
	if req.WorkflowMode == models.WorkflowModeRevision {
		inputs["revision_instructions"] = req.RevisionInstructions
	}
	return inputs
}
