package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/pkg/database"
)

const applicationColumns = `id, dispatch_id, teacher_profile_id, message, status, created_at, updated_at`

// ErrDuplicateApplication is returned when the (dispatch, teacher) unique
// constraint fires. A concurrent apply can pass the existence check and
// still lose the insert race.
var ErrDuplicateApplication = errors.New("application already exists for dispatch and teacher")

const pqUniqueViolation = "23505"

// ApplicationRepository provides database access to dispatch applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID returns an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// FindByIDForUpdate loads an application inside tx with a row lock.
func (r *ApplicationRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 FOR UPDATE`, applicationColumns)
	var app models.Application
	if err := tx.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application for update: %w", err)
	}
	return &app, nil
}

// FindByDispatchAndTeacher returns the unique application a teacher holds
// on a dispatch, including withdrawn rows.
func (r *ApplicationRepository) FindByDispatchAndTeacher(ctx context.Context, dispatchID, teacherProfileID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE dispatch_id = $1 AND teacher_profile_id = $2 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, dispatchID, teacherProfileID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by dispatch and teacher: %w", err)
	}
	return &app, nil
}

// ListByDispatch returns applications on a dispatch joined with applicant
// summary fields, withdrawn excluded, oldest first.
func (r *ApplicationRepository) ListByDispatch(ctx context.Context, dispatchID string) ([]models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.dispatch_id, a.teacher_profile_id, a.message, a.status, a.created_at, a.updated_at,
		p.first_name AS teacher_first_name, p.last_name AS teacher_last_name, p.email AS teacher_email, p.teaching_language AS teacher_language
		FROM applications a
		JOIN teacher_profiles p ON p.id = a.teacher_profile_id
		WHERE a.dispatch_id = $1 AND a.status <> 'WITHDRAWN'
		ORDER BY a.created_at ASC`
	var apps []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &apps, query, dispatchID); err != nil {
		return nil, fmt.Errorf("list applications by dispatch: %w", err)
	}
	return apps, nil
}

// ListByTeacher returns a teacher's applications joined with their postings,
// newest first. Withdrawn rows are included so the history stays visible.
func (r *ApplicationRepository) ListByTeacher(ctx context.Context, teacherProfileID string) ([]models.ApplicationWithDispatch, error) {
	const query = `SELECT a.id, a.dispatch_id, a.teacher_profile_id, a.message, a.status, a.created_at, a.updated_at,
		d.course_title, d.branch_id, d.start_date, d.status AS dispatch_status
		FROM applications a
		JOIN dispatch_requests d ON d.id = a.dispatch_id
		WHERE a.teacher_profile_id = $1
		ORDER BY a.created_at DESC`
	var apps []models.ApplicationWithDispatch
	if err := r.db.SelectContext(ctx, &apps, query, teacherProfileID); err != nil {
		return nil, fmt.Errorf("list applications by teacher: %w", err)
	}
	return apps, nil
}

// AppliedDispatchIDs returns the dispatch ids on which the teacher holds a
// live (non-withdrawn) application.
func (r *ApplicationRepository) AppliedDispatchIDs(ctx context.Context, teacherProfileID string) ([]string, error) {
	const query = `SELECT dispatch_id FROM applications WHERE teacher_profile_id = $1 AND status <> 'WITHDRAWN'`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, teacherProfileID); err != nil {
		return nil, fmt.Errorf("list applied dispatch ids: %w", err)
	}
	return ids, nil
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	const query = `INSERT INTO applications (id, dispatch_id, teacher_profile_id, message, status, created_at, updated_at) VALUES (:id, :dispatch_id, :teacher_profile_id, :message, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// Revive re-opens a withdrawn application with a fresh message. The unique
// (dispatch, teacher) row is reused instead of inserting a duplicate.
func (r *ApplicationRepository) Revive(ctx context.Context, id, message string) error {
	const query = `UPDATE applications SET status = $2, message = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ApplicationStatusApplied, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("revive application: %w", err)
	}
	return nil
}

// UpdateStatus moves an application to the given status.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// UpdateStatusTx is UpdateStatus executed inside an existing transaction.
func (r *ApplicationRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// RejectOthersTx marks every live application on the dispatch other than
// winnerID as rejected.
func (r *ApplicationRepository) RejectOthersTx(ctx context.Context, tx *sqlx.Tx, dispatchID, winnerID string) error {
	const query = `UPDATE applications SET status = $3, updated_at = $4 WHERE dispatch_id = $1 AND id <> $2 AND status NOT IN ('WITHDRAWN', 'REJECTED')`
	if _, err := tx.ExecContext(ctx, query, dispatchID, winnerID, models.ApplicationStatusRejected, time.Now().UTC()); err != nil {
		return fmt.Errorf("reject other applications: %w", err)
	}
	return nil
}

// PromoteToSelected marks one application as SELECTED and demotes any other
// selected application on the same dispatch to SHORTLISTED, atomically.
func (r *ApplicationRepository) PromoteToSelected(ctx context.Context, dispatchID, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		const demote = `UPDATE applications SET status = $3, updated_at = $4 WHERE dispatch_id = $1 AND id <> $2 AND status = 'SELECTED'`
		if _, err := tx.ExecContext(ctx, demote, dispatchID, id, models.ApplicationStatusShortlisted, now); err != nil {
			return fmt.Errorf("demote selected applications: %w", err)
		}
		const promote = `UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, promote, id, models.ApplicationStatusSelected, now); err != nil {
			return fmt.Errorf("promote application: %w", err)
		}
		return nil
	})
}

