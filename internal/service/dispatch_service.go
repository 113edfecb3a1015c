package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/schedule"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type dispatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.DispatchRequest, error)
	List(ctx context.Context, filter models.DispatchFilter) ([]models.DispatchRequest, int, error)
	ListByRequester(ctx context.Context, userID string) ([]models.DispatchRequest, error)
	ListPublished(ctx context.Context, language string) ([]models.DispatchBoardItem, error)
	Create(ctx context.Context, dispatch *models.DispatchRequest) error
	Update(ctx context.Context, dispatch *models.DispatchRequest) error
	UpdateStatus(ctx context.Context, id string, status models.DispatchStatus) error
	Delete(ctx context.Context, id string) error
}

type dispatchNotifier interface {
	NotifyDispatchReceived(ctx context.Context, dispatch *models.DispatchRequest)
	NotifyDispatchPublished(ctx context.Context, dispatch *models.DispatchRequest)
}

type appliedSource interface {
	AppliedDispatchIDs(ctx context.Context, teacherProfileID string) ([]string, error)
}

const boardCachePattern = "dispatches:board:*"

// DispatchPayload is the manager's request payload.
type DispatchPayload struct {
	BranchID         string   `json:"branch_id" validate:"required"`
	TeachingLanguage string   `json:"teaching_language" validate:"required"`
	CourseTitle      string   `json:"course_title" validate:"required,max=200"`
	Weekdays         []string `json:"weekdays" validate:"required,min=1,max=7"`
	StartTime        string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime          string   `json:"end_time" validate:"required,datetime=15:04"`
	StartDate        string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	LectureCount     int      `json:"lecture_count" validate:"required,gte=1"`
	StudentsCount    *int     `json:"students_count" validate:"omitempty,gte=1"`
	Target           *string  `json:"target" validate:"omitempty,max=200"`
	Level            *string  `json:"level" validate:"omitempty,max=100"`
	IsOnline         bool     `json:"is_online"`
	Requirements     *string  `json:"requirements" validate:"omitempty,max=2000"`
	Notes            *string  `json:"notes" validate:"omitempty,max=2000"`
	RequesterName    string   `json:"requester_name" validate:"required,max=100"`
	RequesterPhone   string   `json:"requester_phone" validate:"required,max=30"`
	RequesterEmail   string   `json:"requester_email" validate:"required,email"`
}

// PublishRequest is the admin publish payload.
type PublishRequest struct {
	ApplicationDeadline *string `json:"application_deadline" validate:"omitempty,datetime=2006-01-02"`
}

// DispatchService orchestrates the dispatch request workflow.
type DispatchService struct {
	repo         dispatchRepository
	branches     geoBranchSource
	applications appliedSource
	notifier     dispatchNotifier
	audit        auditSink
	cache        directoryCache
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	boardTTL     time.Duration
}

// NewDispatchService constructs a DispatchService.
func NewDispatchService(repo dispatchRepository, branches geoBranchSource, applications appliedSource, notifier dispatchNotifier, audit auditSink, cache directoryCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, boardTTL time.Duration) *DispatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if boardTTL <= 0 {
		boardTTL = time.Minute
	}
	return &DispatchService{
		repo:         repo,
		branches:     branches,
		applications: applications,
		notifier:     notifier,
		audit:        audit,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		boardTTL:     boardTTL,
	}
}

// Create files a new dispatch request on behalf of a branch manager.
func (s *DispatchService) Create(ctx context.Context, userID string, req DispatchPayload) (*models.DispatchRequest, error) {
	dispatch := &models.DispatchRequest{
		RequestedBy: userID,
		Status:      models.DispatchStatusRequested,
	}
	if err := s.applyPayload(ctx, dispatch, req); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, dispatch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create dispatch")
	}

	if s.notifier != nil {
		s.notifier.NotifyDispatchReceived(ctx, dispatch)
	}
	return dispatch, nil
}

// MyList returns the caller's own dispatch requests.
func (s *DispatchService) MyList(ctx context.Context, userID string) ([]models.DispatchRequest, error) {
	dispatches, err := s.repo.ListByRequester(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dispatches")
	}
	return dispatches, nil
}

// Get returns a dispatch by id.
func (s *DispatchService) Get(ctx context.Context, id string) (*models.DispatchRequest, error) {
	dispatch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dispatch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dispatch")
	}
	return dispatch, nil
}

// GetForManager returns a dispatch only when the caller filed it.
func (s *DispatchService) GetForManager(ctx context.Context, userID, id string) (*models.DispatchRequest, error) {
	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dispatch.RequestedBy != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "dispatch belongs to another manager")
	}
	return dispatch, nil
}

// UpdateForManager rewrites a request the caller filed, while it is still
// editable. Once published the posting is immutable for managers.
func (s *DispatchService) UpdateForManager(ctx context.Context, userID, id string, req DispatchPayload) (*models.DispatchRequest, error) {
	dispatch, err := s.GetForManager(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !dispatch.Editable() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("dispatch can no longer be edited in status %s", dispatch.Status))
	}

	if err := s.applyPayload(ctx, dispatch, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, dispatch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update dispatch")
	}
	return dispatch, nil
}

// List returns dispatches for the admin console.
func (s *DispatchService) List(ctx context.Context, filter models.DispatchFilter) ([]models.DispatchRequest, *models.Pagination, error) {
	dispatches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dispatches")
	}
	return dispatches, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// AdminUpdate rewrites a dispatch regardless of requester, as long as the
// workflow has not reached a terminal state.
func (s *DispatchService) AdminUpdate(ctx context.Context, id string, req DispatchPayload) (*models.DispatchRequest, error) {
	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dispatch.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("dispatch is %s and cannot change", dispatch.Status))
	}

	if err := s.applyPayload(ctx, dispatch, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, dispatch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update dispatch")
	}

	s.invalidateBoard(ctx)
	return dispatch, nil
}

// StartReview moves a fresh request into review.
func (s *DispatchService) StartReview(ctx context.Context, id string) (*models.DispatchRequest, error) {
	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dispatch.Status != models.DispatchStatusRequested {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot start review from status %s", dispatch.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.DispatchStatusInReview); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start review")
	}
	dispatch.Status = models.DispatchStatusInReview
	return dispatch, nil
}

// Publish opens the dispatch for teacher applications. published_at is only
// set the first time; re-publishing a closed posting keeps the original
// timestamp.
func (s *DispatchService) Publish(ctx context.Context, adminID, id string, req PublishRequest) (*models.DispatchRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish payload")
	}

	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch dispatch.Status {
	case models.DispatchStatusRequested, models.DispatchStatusInReview, models.DispatchStatusClosed:
	case models.DispatchStatusPublished:
		return dispatch, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot publish from status %s", dispatch.Status))
	}

	if req.ApplicationDeadline != nil {
		deadline := parseOptionalDate(req.ApplicationDeadline)
		if deadline != nil && deadline.Before(truncateToDay(time.Now())) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "application deadline cannot be in the past")
		}
		dispatch.ApplicationDeadline = deadline
		if err := s.repo.Update(ctx, dispatch); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store deadline")
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, models.DispatchStatusPublished); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish dispatch")
	}
	dispatch.Status = models.DispatchStatusPublished
	if dispatch.PublishedAt == nil {
		now := time.Now().UTC()
		dispatch.PublishedAt = &now
	}

	s.metrics.RecordDispatchPublished()
	s.invalidateBoard(ctx)
	if s.notifier != nil {
		s.notifier.NotifyDispatchPublished(ctx, dispatch)
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionDispatchPublish,
		Resource:   "dispatch_request",
		ResourceID: &id,
		NewValues:  []byte(fmt.Sprintf(`{"status":%q}`, models.DispatchStatusPublished)),
	}); err != nil {
		s.logger.Warn("failed to record publish audit log", zap.Error(err))
	}
	return dispatch, nil
}

// Close takes a published posting off the board without cancelling it.
func (s *DispatchService) Close(ctx context.Context, id string) (*models.DispatchRequest, error) {
	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dispatch.Status != models.DispatchStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot close from status %s", dispatch.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.DispatchStatusClosed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close dispatch")
	}
	dispatch.Status = models.DispatchStatusClosed
	s.invalidateBoard(ctx)
	return dispatch, nil
}

// Cancel aborts a dispatch from any pre-terminal state.
func (s *DispatchService) Cancel(ctx context.Context, adminID, id string) (*models.DispatchRequest, error) {
	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if dispatch.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("dispatch is already %s", dispatch.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, models.DispatchStatusCanceled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel dispatch")
	}
	dispatch.Status = models.DispatchStatusCanceled
	s.invalidateBoard(ctx)

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionDispatchCancel,
		Resource:   "dispatch_request",
		ResourceID: &id,
		NewValues:  []byte(fmt.Sprintf(`{"status":%q}`, models.DispatchStatusCanceled)),
	}); err != nil {
		s.logger.Warn("failed to record cancel audit log", zap.Error(err))
	}
	return dispatch, nil
}

// Delete removes a dispatch that never reached the board. Published and
// assigned dispatches keep their history; only REQUESTED, IN_REVIEW and
// CANCELED requests may be deleted.
func (s *DispatchService) Delete(ctx context.Context, id string) error {
	dispatch, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch dispatch.Status {
	case models.DispatchStatusRequested, models.DispatchStatusInReview, models.DispatchStatusCanceled:
	default:
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot delete a %s dispatch", dispatch.Status))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete dispatch")
	}
	s.invalidateBoard(ctx)
	return nil
}

// Board returns the published postings a teacher may apply to: deadline not
// passed, annotated with live application counts and the caller's own
// application state. The unannotated board is cached per language.
func (s *DispatchService) Board(ctx context.Context, teacherProfileID, language string) ([]models.DispatchBoardItem, error) {
	key := fmt.Sprintf("dispatches:board:%s", language)

	var items []models.DispatchBoardItem
	cached := false
	if s.cache != nil {
		start := time.Now()
		if err := s.cache.Get(ctx, key, &items); err == nil {
			cached = true
			s.metrics.RecordCacheOperation(true, time.Since(start))
		} else {
			s.metrics.RecordCacheOperation(false, time.Since(start))
		}
	}

	if !cached {
		var err error
		items, err = s.repo.ListPublished(ctx, language)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list postings")
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, items, s.boardTTL); err != nil {
				s.logger.Warn("failed to cache posting board", zap.Error(err))
			}
		}
	}

	now := time.Now()
	open := items[:0]
	for _, item := range items {
		if !item.DeadlinePassed(now) {
			open = append(open, item)
		}
	}
	items = open

	if teacherProfileID != "" {
		ids, err := s.applications.AppliedDispatchIDs(ctx, teacherProfileID)
		if err != nil {
			s.logger.Warn("failed to annotate applied postings", zap.Error(err))
		} else {
			applied := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				applied[id] = struct{}{}
			}
			for i := range items {
				_, items[i].IsApplied = applied[items[i].ID]
			}
		}
	}
	return items, nil
}

// InvalidateBoard drops the cached posting lists. Application writes call
// this so counts stay fresh.
func (s *DispatchService) InvalidateBoard(ctx context.Context) {
	s.invalidateBoard(ctx)
}

func (s *DispatchService) invalidateBoard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, boardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate posting board cache", zap.Error(err))
	}
}

// applyPayload validates the payload, checks the branch reference and
// derives the end date from the schedule.
func (s *DispatchService) applyPayload(ctx context.Context, dispatch *models.DispatchRequest, req DispatchPayload) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dispatch payload")
	}
	if !containsString(models.TeachingLanguages, req.TeachingLanguage) {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported teaching language")
	}
	if req.EndTime <= req.StartTime {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	branch, err := s.branches.FindByID(ctx, req.BranchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "branch does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid start date")
	}
	endDate, err := schedule.DeriveEndDate(startDate, req.Weekdays, req.LectureCount)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule")
	}

	dispatch.BranchID = branch.ID
	dispatch.TeachingLanguage = req.TeachingLanguage
	dispatch.CourseTitle = strings.TrimSpace(req.CourseTitle)
	dispatch.Weekdays = models.WeekdayList(req.Weekdays)
	dispatch.StartTime = req.StartTime
	dispatch.EndTime = req.EndTime
	dispatch.StartDate = startDate
	dispatch.EndDate = endDate
	dispatch.LectureCount = req.LectureCount
	dispatch.StudentsCount = req.StudentsCount
	dispatch.Target = normalizeOptional(req.Target)
	dispatch.Level = normalizeOptional(req.Level)
	dispatch.IsOnline = req.IsOnline
	dispatch.Requirements = normalizeOptional(req.Requirements)
	dispatch.Notes = normalizeOptional(req.Notes)
	dispatch.RequesterName = strings.TrimSpace(req.RequesterName)
	dispatch.RequesterPhone = strings.TrimSpace(req.RequesterPhone)
	dispatch.RequesterEmail = strings.TrimSpace(req.RequesterEmail)
	return nil
}
