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
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type applicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByDispatchAndTeacher(ctx context.Context, dispatchID, teacherProfileID string) (*models.Application, error)
	ListByDispatch(ctx context.Context, dispatchID string) ([]models.ApplicationDetail, error)
	ListByTeacher(ctx context.Context, teacherProfileID string) ([]models.ApplicationWithDispatch, error)
	Create(ctx context.Context, app *models.Application) error
	Revive(ctx context.Context, id, message string) error
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error
	PromoteToSelected(ctx context.Context, dispatchID, id string) error
}

type applicantProfileSource interface {
	FindByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
}

type postingSource interface {
	FindByID(ctx context.Context, id string) (*models.DispatchRequest, error)
}

type boardInvalidator interface {
	InvalidateBoard(ctx context.Context)
}

// ApplyRequest is the teacher's application payload.
type ApplyRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// SetApplicationStatusRequest is the admin status payload.
type SetApplicationStatusRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required"`
}

// ApplicationService orchestrates teacher bids on published dispatches.
type ApplicationService struct {
	repo       applicationRepository
	profiles   applicantProfileSource
	dispatches postingSource
	board      boardInvalidator
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewApplicationService constructs an ApplicationService.
func NewApplicationService(repo applicationRepository, profiles applicantProfileSource, dispatches postingSource, board boardInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:       repo,
		profiles:   profiles,
		dispatches: dispatches,
		board:      board,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Apply places the caller's bid on a published dispatch. A withdrawn bid on
// the same dispatch is revived with the new message; any other existing bid
// conflicts.
func (s *ApplicationService) Apply(ctx context.Context, userID, dispatchID string, req ApplyRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "submit a profile before applying")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	if profile.Status != models.ProfileStatusAccepted {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "profile must be accepted before applying")
	}

	dispatch, err := s.dispatches.FindByID(ctx, dispatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "posting not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load posting")
	}
	if dispatch.Status != models.DispatchStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "posting is not open for applications")
	}
	if dispatch.DeadlinePassed(time.Now()) {
		return nil, appErrors.Clone(appErrors.ErrDeadlinePassed, "application deadline has passed")
	}

	message := strings.TrimSpace(req.Message)

	existing, err := s.repo.FindByDispatchAndTeacher(ctx, dispatchID, profile.ID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}
	if existing != nil {
		if existing.Status != models.ApplicationStatusWithdrawn {
			return nil, appErrors.Clone(appErrors.ErrAlreadyApplied, "already applied to this posting")
		}
		if err := s.repo.Revive(ctx, existing.ID, message); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-apply")
		}
		existing.Status = models.ApplicationStatusApplied
		existing.Message = message
		s.afterWrite(ctx)
		return existing, nil
	}

	app := &models.Application{
		DispatchID:       dispatchID,
		TeacherProfileID: profile.ID,
		Message:          message,
		Status:           models.ApplicationStatusApplied,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyApplied, "already applied to this posting")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply")
	}
	s.afterWrite(ctx)
	return app, nil
}

// Withdraw retracts the caller's bid while it is still retractable.
func (s *ApplicationService) Withdraw(ctx context.Context, userID, applicationID string) error {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	app, err := s.get(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.TeacherProfileID != profile.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "application belongs to another teacher")
	}
	if !app.Status.Withdrawable() {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot withdraw from status %s", app.Status))
	}

	if err := s.repo.UpdateStatus(ctx, applicationID, models.ApplicationStatusWithdrawn); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw")
	}
	if s.board != nil {
		s.board.InvalidateBoard(ctx)
	}
	return nil
}

// ProfileID resolves the teacher profile id owned by a user account.
func (s *ApplicationService) ProfileID(ctx context.Context, userID string) (string, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	return profile.ID, nil
}

// MyApplications returns the caller's bids with their postings.
func (s *ApplicationService) MyApplications(ctx context.Context, userID string) ([]models.ApplicationWithDispatch, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return []models.ApplicationWithDispatch{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	apps, err := s.repo.ListByTeacher(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, nil
}

// ListByDispatch returns the live applications on a dispatch for admins.
func (s *ApplicationService) ListByDispatch(ctx context.Context, dispatchID string) ([]models.ApplicationDetail, error) {
	apps, err := s.repo.ListByDispatch(ctx, dispatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, nil
}

// SetStatus lets an admin re-point the review state of a bid. Promoting to
// SELECTED demotes any previous winner to SHORTLISTED in the same
// transaction, so at most one bid per dispatch is ever SELECTED.
func (s *ApplicationService) SetStatus(ctx context.Context, applicationID string, req SetApplicationStatusRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !models.ValidApplicationStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
	}
	if req.Status == models.ApplicationStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrValidation, "withdrawal is reserved for the applicant")
	}

	app, err := s.get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status == models.ApplicationStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application was withdrawn")
	}

	if req.Status == models.ApplicationStatusSelected {
		if err := s.repo.PromoteToSelected(ctx, app.DispatchID, applicationID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select application")
		}
	} else {
		if err := s.repo.UpdateStatus(ctx, applicationID, req.Status); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
		}
	}

	app.Status = req.Status
	return app, nil
}

func (s *ApplicationService) get(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) afterWrite(ctx context.Context) {
	s.metrics.RecordApplicationReceived()
	if s.board != nil {
		s.board.InvalidateBoard(ctx)
	}
}
