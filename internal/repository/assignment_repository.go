package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/pkg/database"
)

// Sentinel errors surfaced by the assignment workflow. Services translate
// these into API errors.
var (
	ErrDispatchNotOpen       = errors.New("dispatch is not open for selection")
	ErrCourseExists          = errors.New("course already exists for dispatch")
	ErrApplicationMismatch   = errors.New("application does not belong to dispatch")
	ErrApplicationWithdrawn  = errors.New("application has been withdrawn")
	ErrNoSelectedApplication = errors.New("dispatch has no selected application")
)

// AssignmentRepository executes the cross-table winner-selection and course
// confirmation transactions. Both operate under FOR UPDATE locks on the
// dispatch row so concurrent admins cannot double-assign.
type AssignmentRepository struct {
	db           *sqlx.DB
	dispatches   *DispatchRepository
	applications *ApplicationRepository
	courses      *CourseRepository
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{
		db:           db,
		dispatches:   NewDispatchRepository(db),
		applications: NewApplicationRepository(db),
		courses:      NewCourseRepository(db),
	}
}

// SelectWinner marks one application as the winner of a dispatch. Under the
// dispatch lock it verifies the dispatch is still assignable, no course has
// been snapshotted, and the application is a live bid on this dispatch; it
// then rejects every other live application, promotes the winner to
// SELECTED and moves the dispatch to ASSIGNED. Any failed precondition
// rolls the whole transaction back.
func (r *AssignmentRepository) SelectWinner(ctx context.Context, dispatchID, applicationID string) (*models.Application, error) {
	var winner *models.Application
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		dispatch, err := r.dispatches.FindByIDForUpdate(ctx, tx, dispatchID)
		if err != nil {
			return err
		}
		if dispatch.Status != models.DispatchStatusPublished && dispatch.Status != models.DispatchStatusClosed {
			return ErrDispatchNotOpen
		}

		exists, err := r.courses.ExistsByDispatchTx(ctx, tx, dispatchID)
		if err != nil {
			return err
		}
		if exists {
			return ErrCourseExists
		}

		app, err := r.applications.FindByIDForUpdate(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if app.DispatchID != dispatchID {
			return ErrApplicationMismatch
		}
		if app.Status == models.ApplicationStatusWithdrawn {
			return ErrApplicationWithdrawn
		}

		if err := r.applications.RejectOthersTx(ctx, tx, dispatchID, applicationID); err != nil {
			return err
		}
		if err := r.applications.UpdateStatusTx(ctx, tx, applicationID, models.ApplicationStatusSelected); err != nil {
			return err
		}
		if err := r.dispatches.UpdateStatusTx(ctx, tx, dispatchID, models.DispatchStatusAssigned); err != nil {
			return err
		}

		app.Status = models.ApplicationStatusSelected
		winner = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return winner, nil
}

// ConfirmCourse snapshots an assigned dispatch into an operating course.
// Under the dispatch lock it requires a SELECTED application and no
// existing course, copies the scheduling fields into a CONFIRMED course
// and moves the dispatch to CONFIRMED. A second call conflicts and leaves
// nothing mutated.
func (r *AssignmentRepository) ConfirmCourse(ctx context.Context, dispatchID string, adminMemo *string) (*models.Course, error) {
	var course *models.Course
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		dispatch, err := r.dispatches.FindByIDForUpdate(ctx, tx, dispatchID)
		if err != nil {
			return err
		}
		if dispatch.Status.Terminal() {
			return ErrDispatchNotOpen
		}

		exists, err := r.courses.ExistsByDispatchTx(ctx, tx, dispatchID)
		if err != nil {
			return err
		}
		if exists {
			return ErrCourseExists
		}

		var selected models.Application
		const query = `SELECT id, dispatch_id, teacher_profile_id, message, status, created_at, updated_at FROM applications WHERE dispatch_id = $1 AND status = 'SELECTED' LIMIT 1 FOR UPDATE`
		if err := tx.GetContext(ctx, &selected, query, dispatchID); err != nil {
			if err == sql.ErrNoRows {
				return ErrNoSelectedApplication
			}
			return err
		}

		snapshot := &models.Course{
			DispatchID:       dispatch.ID,
			TeacherProfileID: selected.TeacherProfileID,
			BranchID:         dispatch.BranchID,
			TeachingLanguage: dispatch.TeachingLanguage,
			CourseTitle:      dispatch.CourseTitle,
			Weekdays:         dispatch.Weekdays,
			StartTime:        dispatch.StartTime,
			EndTime:          dispatch.EndTime,
			StartDate:        dispatch.StartDate,
			EndDate:          dispatch.EndDate,
			LectureCount:     dispatch.LectureCount,
			StudentsCount:    dispatch.StudentsCount,
			RequesterName:    dispatch.RequesterName,
			RequesterPhone:   dispatch.RequesterPhone,
			RequesterEmail:   dispatch.RequesterEmail,
			Notes:            dispatch.Notes,
			AdminMemo:        adminMemo,
			Status:           models.CourseStatusConfirmed,
		}
		if err := r.courses.CreateTx(ctx, tx, snapshot); err != nil {
			return err
		}
		if err := r.dispatches.UpdateStatusTx(ctx, tx, dispatchID, models.DispatchStatusConfirmed); err != nil {
			return err
		}

		course = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}
