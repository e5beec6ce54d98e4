package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
	"crew-orchestrator/internal/services/ledger"
	"crew-orchestrator/internal/services/stream"
	"crew-orchestrator/internal/utils"
)

// fakeStore backs the repository fakes with in-memory maps and mirrors the
// guard semantics of the SQL layer: terminal-state immutability, the
// at-most-once crew job id, and the pending-checkpoint and event-id
// uniqueness constraints.
type fakeStore struct {
	ownerID     uuid.UUID
	projects    map[uuid.UUID]*models.ProjectEntity
	executions  map[uuid.UUID]*models.ExecutionEntity
	checkpoints map[uuid.UUID]*models.CheckpointEntity
	activities  []*models.ActivityEntity
	eventIDs    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ownerID:     uuid.New(),
		projects:    make(map[uuid.UUID]*models.ProjectEntity),
		executions:  make(map[uuid.UUID]*models.ExecutionEntity),
		checkpoints: make(map[uuid.UUID]*models.CheckpointEntity),
		eventIDs:    make(map[string]bool),
	}
}

func (s *fakeStore) addProject() *models.ProjectEntity {
	project := &models.ProjectEntity{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		Name:           "Launch Blog",
		Topic:          "Product launch",
		ContentType:    "blog_post",
		Audience:       "developers",
		AILanguageCode: "en",
		Keywords:       []string{"launch", "golang"},
		Client: &models.ClientEntity{
			OwnerID: s.ownerID,
			Name:    "Acme",
		},
	}
	project.Client.ID = project.ClientID
	s.projects[project.ID] = project
	return project
}

// Execution repository fake

type fakeExecutionRepo struct{ store *fakeStore }

func (r *fakeExecutionRepo) Create(ctx context.Context, execution *models.ExecutionEntity, opts ...utils.DBOption) error {
	if execution.ID == uuid.Nil {
		execution.ID = uuid.New()
	}
	r.store.executions[execution.ID] = execution
	return nil
}

func (r *fakeExecutionRepo) GetByID(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) (*models.ExecutionEntity, error) {
	return r.store.executions[id], nil
}

func (r *fakeExecutionRepo) GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.ExecutionEntity, error) {
	execution, ok := r.store.executions[id]
	if !ok || ownerID != r.store.ownerID {
		return nil, nil
	}
	return execution, nil
}

func (r *fakeExecutionRepo) GetByCrewJobID(ctx context.Context, crewJobID string, opts ...utils.DBOption) (*models.ExecutionEntity, error) {
	for _, execution := range r.store.executions {
		if execution.CrewJobID.Valid && execution.CrewJobID.String == crewJobID {
			return execution, nil
		}
	}
	return nil, nil
}

func (r *fakeExecutionRepo) SetCrewJobID(ctx context.Context, id uuid.UUID, crewJobID string, opts ...utils.DBOption) error {
	execution, ok := r.store.executions[id]
	if !ok || execution.CrewJobID.Valid {
		return fmt.Errorf("crew job id already set for execution %s: %w", id, models.ErrInvalidState)
	}
	execution.CrewJobID = sql.NullString{String: crewJobID, Valid: true}
	return nil
}

func (r *fakeExecutionRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, opts ...utils.DBOption) error {
	execution, ok := r.store.executions[id]
	if !ok || execution.Status.IsTerminal() {
		return fmt.Errorf("execution %s is terminal or missing: %w", id, models.ErrInvalidState)
	}
	execution.Status = status
	return nil
}

func (r *fakeExecutionRepo) Finish(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, errorMessage *string, opts ...utils.DBOption) error {
	execution, ok := r.store.executions[id]
	if !ok || execution.Status.IsTerminal() {
		return fmt.Errorf("execution %s is terminal or missing: %w", id, models.ErrInvalidState)
	}
	execution.Status = status
	execution.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	if errorMessage != nil {
		execution.ErrorMessage = sql.NullString{String: *errorMessage, Valid: true}
	}
	return nil
}

func (r *fakeExecutionRepo) IncrementRetry(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) error {
	if execution, ok := r.store.executions[id]; ok {
		execution.RetryCount++
	}
	return nil
}

func (r *fakeExecutionRepo) UpdateMetrics(ctx context.Context, id uuid.UUID, metrics map[string]interface{}, opts ...utils.DBOption) error {
	if execution, ok := r.store.executions[id]; ok {
		execution.Metrics = metrics
	}
	return nil
}

// Checkpoint repository fake

type fakeCheckpointRepo struct{ store *fakeStore }

func (r *fakeCheckpointRepo) Create(ctx context.Context, checkpoint *models.CheckpointEntity, opts ...utils.DBOption) error {
	for _, existing := range r.store.checkpoints {
		if existing.ExecutionID == checkpoint.ExecutionID &&
			existing.TaskID == checkpoint.TaskID &&
			existing.Status == models.CheckpointStatusPending {
			return gorm.ErrDuplicatedKey
		}
	}
	if checkpoint.ID == uuid.Nil {
		checkpoint.ID = uuid.New()
	}
	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = time.Now().UTC()
	}
	r.store.checkpoints[checkpoint.ID] = checkpoint
	return nil
}

func (r *fakeCheckpointRepo) GetByID(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	return r.store.checkpoints[id], nil
}

func (r *fakeCheckpointRepo) GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	checkpoint, ok := r.store.checkpoints[id]
	if !ok || ownerID != r.store.ownerID {
		return nil, nil
	}
	checkpoint.Execution = r.store.executions[checkpoint.ExecutionID]
	return checkpoint, nil
}

func (r *fakeCheckpointRepo) GetPendingByTask(ctx context.Context, executionID uuid.UUID, taskID string, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	for _, checkpoint := range r.store.checkpoints {
		if checkpoint.ExecutionID == executionID &&
			checkpoint.TaskID == taskID &&
			checkpoint.Status == models.CheckpointStatusPending {
			return checkpoint, nil
		}
	}
	return nil, nil
}

func (r *fakeCheckpointRepo) GetPendingByExecution(ctx context.Context, executionID uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	var oldest *models.CheckpointEntity
	for _, checkpoint := range r.store.checkpoints {
		if checkpoint.ExecutionID != executionID || checkpoint.Status != models.CheckpointStatusPending {
			continue
		}
		if oldest == nil || checkpoint.CreatedAt.Before(oldest.CreatedAt) {
			oldest = checkpoint
		}
	}
	return oldest, nil
}

func (r *fakeCheckpointRepo) ListPending(ctx context.Context, ownerID uuid.UUID, filter *repository.PendingCheckpointFilter, opts ...utils.DBOption) ([]models.CheckpointEntity, int64, error) {
	if ownerID != r.store.ownerID {
		return nil, 0, nil
	}

	var matched []models.CheckpointEntity
	for _, checkpoint := range r.store.checkpoints {
		if checkpoint.Status != models.CheckpointStatusPending {
			continue
		}
		if filter != nil && filter.Type != nil && checkpoint.Type != *filter.Type {
			continue
		}
		if filter != nil && filter.ProjectID != nil {
			execution := r.store.executions[checkpoint.ExecutionID]
			if execution == nil || execution.ProjectID != *filter.ProjectID {
				continue
			}
		}
		matched = append(matched, *checkpoint)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[filter.Offset:]
			}
		}
		if filter.Limit > 0 && len(matched) > filter.Limit {
			matched = matched[:filter.Limit]
		}
	}
	return matched, total, nil
}

func (r *fakeCheckpointRepo) MarkReviewed(ctx context.Context, id uuid.UUID, status models.CheckpointStatus, reviewerID uuid.UUID, feedback string, opts ...utils.DBOption) error {
	checkpoint, ok := r.store.checkpoints[id]
	if !ok || checkpoint.Status != models.CheckpointStatusPending {
		return fmt.Errorf("checkpoint %s is not pending: %w", id, models.ErrInvalidState)
	}
	checkpoint.Status = status
	checkpoint.ReviewerFeedback = sql.NullString{String: feedback, Valid: true}
	checkpoint.ReviewedBy = &reviewerID
	checkpoint.ReviewedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	return nil
}

func (r *fakeCheckpointRepo) RevertToPending(ctx context.Context, id uuid.UUID, from models.CheckpointStatus, opts ...utils.DBOption) error {
	checkpoint, ok := r.store.checkpoints[id]
	if !ok || checkpoint.Status != from {
		return fmt.Errorf("checkpoint %s is not in status %s: %w", id, from, models.ErrInvalidState)
	}
	checkpoint.Status = models.CheckpointStatusPending
	checkpoint.ReviewerFeedback = sql.NullString{}
	checkpoint.ReviewedBy = nil
	checkpoint.ReviewedAt = sql.NullTime{}
	return nil
}

// Activity repository fake

type fakeActivityRepo struct{ store *fakeStore }

func (r *fakeActivityRepo) Create(ctx context.Context, activity *models.ActivityEntity, opts ...utils.DBOption) error {
	if activity.EventID.Valid {
		if r.store.eventIDs[activity.EventID.String] {
			return fmt.Errorf("event %s: %w", activity.EventID.String, models.ErrDuplicateEvent)
		}
		r.store.eventIDs[activity.EventID.String] = true
	}
	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now().UTC()
	}
	r.store.activities = append(r.store.activities, activity)
	return nil
}

func (r *fakeActivityRepo) ListByExecution(ctx context.Context, executionID uuid.UUID, limit, offset int, opts ...utils.DBOption) ([]models.ActivityEntity, int64, error) {
	var matched []models.ActivityEntity
	for _, activity := range r.store.activities {
		if activity.ExecutionID == executionID {
			matched = append(matched, *activity)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	total := int64(len(matched))
	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *fakeActivityRepo) HasEvent(ctx context.Context, eventID string, opts ...utils.DBOption) (bool, error) {
	return r.store.eventIDs[eventID], nil
}

// Project repository fake

type fakeProjectRepo struct{ store *fakeStore }

func (r *fakeProjectRepo) GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.ProjectEntity, error) {
	project, ok := r.store.projects[id]
	if !ok || ownerID != r.store.ownerID {
		return nil, nil
	}
	return project, nil
}

// Unit of work fake, runs the function without a transaction.

type fakeUnitOfWork struct{}

func (u *fakeUnitOfWork) Run(ctx context.Context, fn func(opts ...utils.DBOption) error) error {
	return fn()
}

// Crew runner fake

type resumeCall struct {
	crewJobID string
	taskID    string
	feedback  string
	approve   bool
}

type fakeRunner struct {
	kickoffID string
	startErr  error
	resumeErr error
	cancelOK  bool
	cancelErr error

	startInputs []map[string]string
	resumeCalls []resumeCall
	cancelCalls []string
}

func (r *fakeRunner) Start(ctx context.Context, inputs map[string]string) (string, error) {
	r.startInputs = append(r.startInputs, inputs)
	if r.startErr != nil {
		return "", r.startErr
	}
	return r.kickoffID, nil
}

func (r *fakeRunner) Resume(ctx context.Context, crewJobID, taskID, feedback string, approve bool) error {
	r.resumeCalls = append(r.resumeCalls, resumeCall{crewJobID: crewJobID, taskID: taskID, feedback: feedback, approve: approve})
	return r.resumeErr
}

func (r *fakeRunner) Cancel(ctx context.Context, crewJobID string) (bool, error) {
	r.cancelCalls = append(r.cancelCalls, crewJobID)
	if r.cancelErr != nil {
		return false, r.cancelErr
	}
	return r.cancelOK, nil
}

// Notifier fake

type fakeNotifier struct {
	checkpointsPending int
	executionsFinished int
	lastFinishedStatus models.ExecutionStatus
}

func (n *fakeNotifier) CheckpointPending(ctx context.Context, execution *models.ExecutionEntity, checkpoint *models.CheckpointEntity) {
	n.checkpointsPending++
}

func (n *fakeNotifier) ExecutionFinished(ctx context.Context, execution *models.ExecutionEntity) {
	n.executionsFinished++
	n.lastFinishedStatus = execution.Status
}

// Test harness

type testHarness struct {
	service  *Service
	store    *fakeStore
	runner   *fakeRunner
	notifier *fakeNotifier
	stream   *stream.Manager
	user     *models.UserEntity
}

func newTestHarness() *testHarness {
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Stream.MaxConnectionsPerUser = 3

	store := newFakeStore()
	executions := &fakeExecutionRepo{store: store}
	checkpoints := &fakeCheckpointRepo{store: store}
	activities := &fakeActivityRepo{store: store}
	projects := &fakeProjectRepo{store: store}
	runner := &fakeRunner{kickoffID: "job-123", cancelOK: true}
	reviewNotifier := &fakeNotifier{}
	streamManager := stream.NewManager(3, log)

	service := NewService(
		cfg,
		log,
		executions,
		checkpoints,
		activities,
		projects,
		&fakeUnitOfWork{},
		runner,
		ledger.New(activities, checkpoints, nil, log),
		streamManager,
		reviewNotifier,
	)

	return &testHarness{
		service:  service,
		store:    store,
		runner:   runner,
		notifier: reviewNotifier,
		stream:   streamManager,
		user:     &models.UserEntity{ID: store.ownerID, Name: "Alice", Email: "alice@example.com"},
	}
}

// startedExecution seeds a running execution with a crew job id, bypassing
// the runner.
func (h *testHarness) startedExecution(project *models.ProjectEntity) *models.ExecutionEntity {
	execution := &models.ExecutionEntity{
		ID:           uuid.New(),
		ProjectID:    project.ID,
		WorkflowMode: models.WorkflowModeCreation,
		Status:       models.ExecutionStatusRunning,
		CrewJobID:    sql.NullString{String: "job-" + uuid.NewString()[:8], Valid: true},
		StartedAt:    time.Now().UTC(),
		CreatedBy:    h.store.ownerID,
	}
	h.store.executions[execution.ID] = execution
	return execution
}

func (h *testHarness) pendingCheckpoint(execution *models.ExecutionEntity, taskID string) *models.CheckpointEntity {
	checkpoint := &models.CheckpointEntity{
		ID:          uuid.New(),
		ExecutionID: execution.ID,
		Type:        models.ClassifyCheckpointType(taskID),
		TaskID:      taskID,
		Status:      models.CheckpointStatusPending,
		Content:     "draft content",
		CreatedAt:   time.Now().UTC(),
	}
	h.store.checkpoints[checkpoint.ID] = checkpoint
	execution.Status = models.ExecutionStatusAwaitingApproval
	return checkpoint
}
