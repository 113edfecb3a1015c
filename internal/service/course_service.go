package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/repository"
	"github.com/friending/culture-dispatch-api/internal/schedule"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
	"github.com/friending/culture-dispatch-api/pkg/export"
)

type assignmentExecutor interface {
	SelectWinner(ctx context.Context, dispatchID, applicationID string) (*models.Application, error)
	ConfirmCourse(ctx context.Context, dispatchID string, adminMemo *string) (*models.Course, error)
}

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByDispatchID(ctx context.Context, dispatchID string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	ListByTeacher(ctx context.Context, teacherProfileID string) ([]models.Course, error)
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error
}

type winnerProfileSource interface {
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
	FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
}

type winnerNotifier interface {
	NotifyWinnerSelected(teacherEmail string, dispatch *models.DispatchRequest)
}

// ConfirmCourseRequest is the admin confirmation payload.
type ConfirmCourseRequest struct {
	AdminMemo *string `json:"admin_memo" validate:"omitempty,max=2000"`
}

// CourseUpdateRequest rewrites the mutable scheduling fields of a course.
type CourseUpdateRequest struct {
	CourseTitle   string   `json:"course_title" validate:"required,max=200"`
	Weekdays      []string `json:"weekdays" validate:"required,min=1,max=7"`
	StartTime     string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime       string   `json:"end_time" validate:"required,datetime=15:04"`
	StartDate     string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	LectureCount  int      `json:"lecture_count" validate:"required,gte=1"`
	StudentsCount *int     `json:"students_count" validate:"omitempty,gte=1"`
	Notes         *string  `json:"notes" validate:"omitempty,max=2000"`
	AdminMemo     *string  `json:"admin_memo" validate:"omitempty,max=2000"`
}

// CourseStatusRequest moves a course along its lifecycle.
type CourseStatusRequest struct {
	Status models.CourseStatus `json:"status" validate:"required"`
}

// CourseService orchestrates winner selection and confirmed courses.
type CourseService struct {
	assignments assignmentExecutor
	repo        courseRepository
	dispatches  postingSource
	profiles    winnerProfileSource
	notifier    winnerNotifier
	board       boardInvalidator
	audit       auditSink
	metrics     *MetricsService
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(assignments assignmentExecutor, repo courseRepository, dispatches postingSource, profiles winnerProfileSource, notifier winnerNotifier, board boardInvalidator, audit auditSink, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		assignments: assignments,
		repo:        repo,
		dispatches:  dispatches,
		profiles:    profiles,
		notifier:    notifier,
		board:       board,
		audit:       audit,
		metrics:     metrics,
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// SelectWinner promotes one application to the dispatch winner. Other live
// applications are rejected and the dispatch moves to ASSIGNED, all in one
// transaction.
func (s *CourseService) SelectWinner(ctx context.Context, adminID, dispatchID, applicationID string) (*models.Application, error) {
	winner, err := s.assignments.SelectWinner(ctx, dispatchID, applicationID)
	if err != nil {
		return nil, s.mapAssignmentError(err)
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionWinnerSelect,
		Resource:   "dispatch_request",
		ResourceID: &dispatchID,
		NewValues:  []byte(fmt.Sprintf(`{"application_id":%q}`, applicationID)),
	}); err != nil {
		s.logger.Warn("failed to record winner audit log", zap.Error(err))
	}

	if s.board != nil {
		s.board.InvalidateBoard(ctx)
	}
	s.notifyWinner(ctx, winner)
	return winner, nil
}

// ConfirmCourse snapshots an assigned dispatch into a confirmed course.
func (s *CourseService) ConfirmCourse(ctx context.Context, adminID, dispatchID string, req ConfirmCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirmation payload")
	}

	course, err := s.assignments.ConfirmCourse(ctx, dispatchID, normalizeOptional(req.AdminMemo))
	if err != nil {
		return nil, s.mapAssignmentError(err)
	}

	s.metrics.RecordCourseConfirmed()
	if s.board != nil {
		s.board.InvalidateBoard(ctx)
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionCourseConfirm,
		Resource:   "course",
		ResourceID: &course.ID,
		NewValues:  []byte(fmt.Sprintf(`{"dispatch_id":%q}`, dispatchID)),
	}); err != nil {
		s.logger.Warn("failed to record confirmation audit log", zap.Error(err))
	}
	return course, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses for the admin console.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// MyCourses returns the courses assigned to the calling teacher.
func (s *CourseService) MyCourses(ctx context.Context, userID string) ([]models.Course, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return []models.Course{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	courses, err := s.repo.ListByTeacher(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Update rewrites the mutable fields of a course, re-deriving its end date.
func (s *CourseService) Update(ctx context.Context, id string, req CourseUpdateRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start date")
	}
	endDate, err := schedule.DeriveEndDate(startDate, req.Weekdays, req.LectureCount)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule")
	}

	course.CourseTitle = strings.TrimSpace(req.CourseTitle)
	course.Weekdays = models.WeekdayList(req.Weekdays)
	course.StartTime = req.StartTime
	course.EndTime = req.EndTime
	course.StartDate = startDate
	course.EndDate = endDate
	course.LectureCount = req.LectureCount
	course.StudentsCount = req.StudentsCount
	course.Notes = normalizeOptional(req.Notes)
	course.AdminMemo = normalizeOptional(req.AdminMemo)

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// SetStatus moves a course along its lifecycle.
func (s *CourseService) SetStatus(ctx context.Context, id string, req CourseStatusRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !course.Status.CanTransition(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot move course from %s to %s", course.Status, req.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course status")
	}
	course.Status = req.Status
	return course, nil
}

// ExportPDF renders a confirmed-course summary sheet.
func (s *CourseService) ExportPDF(ctx context.Context, filter models.CourseFilter) ([]byte, error) {
	filter.Page = 1
	filter.PageSize = 100
	var rows []map[string]string
	for {
		courses, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses for export")
		}
		for _, c := range courses {
			rows = append(rows, map[string]string{
				"Course":   c.CourseTitle,
				"Language": c.TeachingLanguage,
				"Days":     strings.Join(c.Weekdays, "/"),
				"Time":     c.StartTime + "-" + c.EndTime,
				"Start":    c.StartDate.Format("2006-01-02"),
				"End":      c.EndDate.Format("2006-01-02"),
				"Status":   string(c.Status),
			})
		}
		if len(rows) >= total || len(courses) == 0 {
			break
		}
		filter.Page++
	}

	return s.pdf.Render(export.Dataset{
		Headers: []string{"Course", "Language", "Days", "Time", "Start", "End", "Status"},
		Rows:    rows,
	}, "Course Summary")
}

func (s *CourseService) notifyWinner(ctx context.Context, winner *models.Application) {
	if s.notifier == nil || winner == nil {
		return
	}
	dispatch, err := s.dispatches.FindByID(ctx, winner.DispatchID)
	if err != nil {
		s.logger.Warn("failed to load dispatch for winner notification", zap.Error(err))
		return
	}
	profile, err := s.profiles.FindByID(ctx, winner.TeacherProfileID)
	if err != nil {
		s.logger.Warn("failed to load winner profile for notification", zap.Error(err))
		return
	}
	s.notifier.NotifyWinnerSelected(profile.Email, dispatch)
}

func (s *CourseService) mapAssignmentError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "dispatch or application not found")
	case errors.Is(err, repository.ErrDispatchNotOpen):
		return appErrors.Clone(appErrors.ErrConflict, "dispatch is not in a selectable state")
	case errors.Is(err, repository.ErrCourseExists):
		return appErrors.Clone(appErrors.ErrAlreadyAssigned, "a course was already confirmed for this dispatch")
	case errors.Is(err, repository.ErrApplicationMismatch):
		return appErrors.Clone(appErrors.ErrValidation, "application does not belong to this dispatch")
	case errors.Is(err, repository.ErrApplicationWithdrawn):
		return appErrors.Clone(appErrors.ErrConflict, "application was withdrawn")
	case errors.Is(err, repository.ErrNoSelectedApplication):
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "dispatch has no selected application")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "assignment failed")
	}
}
