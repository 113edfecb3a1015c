package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/friending/culture-dispatch-api/internal/models"
)

const dispatchColumns = `id, branch_id, requested_by, teaching_language, course_title, weekdays, start_time, end_time, start_date, end_date, lecture_count, students_count, target, level, is_online, requirements, notes, requester_name, requester_phone, requester_email, status, published_at, application_deadline, created_at, updated_at`

// DispatchRepository provides database access to dispatch requests.
type DispatchRepository struct {
	db *sqlx.DB
}

// NewDispatchRepository creates a new instance of DispatchRepository.
func NewDispatchRepository(db *sqlx.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

// FindByID returns a dispatch request by identifier.
func (r *DispatchRepository) FindByID(ctx context.Context, id string) (*models.DispatchRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM dispatch_requests WHERE id = $1 LIMIT 1`, dispatchColumns)
	var dispatch models.DispatchRequest
	if err := r.db.GetContext(ctx, &dispatch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find dispatch by id: %w", err)
	}
	return &dispatch, nil
}

// FindByIDForUpdate loads a dispatch row inside tx with a row lock held
// until the transaction ends.
func (r *DispatchRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.DispatchRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM dispatch_requests WHERE id = $1 FOR UPDATE`, dispatchColumns)
	var dispatch models.DispatchRequest
	if err := tx.GetContext(ctx, &dispatch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find dispatch for update: %w", err)
	}
	return &dispatch, nil
}

// List returns dispatch requests matching the filter with total count.
func (r *DispatchRepository) List(ctx context.Context, filter models.DispatchFilter) ([]models.DispatchRequest, int, error) {
	baseQuery := `FROM dispatch_requests WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.Language != "" {
		conditions = append(conditions, fmt.Sprintf("teaching_language = $%d", len(args)+1))
		args = append(args, filter.Language)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", dispatchColumns, baseQuery, pageSize, offset)

	var dispatches []models.DispatchRequest
	if err := r.db.SelectContext(ctx, &dispatches, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list dispatches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count dispatches: %w", err)
	}

	return dispatches, total, nil
}

// ListByRequester returns the dispatch requests created by one manager.
func (r *DispatchRepository) ListByRequester(ctx context.Context, userID string) ([]models.DispatchRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM dispatch_requests WHERE requested_by = $1 ORDER BY created_at DESC`, dispatchColumns)
	var dispatches []models.DispatchRequest
	if err := r.db.SelectContext(ctx, &dispatches, query, userID); err != nil {
		return nil, fmt.Errorf("list dispatches by requester: %w", err)
	}
	return dispatches, nil
}

// ListPublished returns the open posting board: published dispatches with
// their live application counts, newest publication first.
func (r *DispatchRepository) ListPublished(ctx context.Context, language string) ([]models.DispatchBoardItem, error) {
	baseQuery := fmt.Sprintf(`SELECT %s, (SELECT COUNT(*) FROM applications a WHERE a.dispatch_id = d.id AND a.status <> 'WITHDRAWN') AS applications_count FROM dispatch_requests d WHERE d.status = $1`,
		prefixColumns(dispatchColumns, "d"))
	args := []interface{}{models.DispatchStatusPublished}

	if language != "" {
		baseQuery += fmt.Sprintf(" AND d.teaching_language = $%d", len(args)+1)
		args = append(args, language)
	}
	baseQuery += " ORDER BY d.published_at DESC"

	var items []models.DispatchBoardItem
	if err := r.db.SelectContext(ctx, &items, baseQuery, args...); err != nil {
		return nil, fmt.Errorf("list published dispatches: %w", err)
	}
	return items, nil
}

// Create inserts a new dispatch request.
func (r *DispatchRepository) Create(ctx context.Context, dispatch *models.DispatchRequest) error {
	if dispatch.ID == "" {
		dispatch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dispatch.CreatedAt.IsZero() {
		dispatch.CreatedAt = now
	}
	dispatch.UpdatedAt = now

	const query = `INSERT INTO dispatch_requests (id, branch_id, requested_by, teaching_language, course_title, weekdays, start_time, end_time, start_date, end_date, lecture_count, students_count, target, level, is_online, requirements, notes, requester_name, requester_phone, requester_email, status, published_at, application_deadline, created_at, updated_at) VALUES (:id, :branch_id, :requested_by, :teaching_language, :course_title, :weekdays, :start_time, :end_time, :start_date, :end_date, :lecture_count, :students_count, :target, :level, :is_online, :requirements, :notes, :requester_name, :requester_phone, :requester_email, :status, :published_at, :application_deadline, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dispatch); err != nil {
		return fmt.Errorf("create dispatch: %w", err)
	}
	return nil
}

// Update rewrites the mutable request fields. Status changes go through
// UpdateStatus so publication timestamps stay consistent.
func (r *DispatchRepository) Update(ctx context.Context, dispatch *models.DispatchRequest) error {
	dispatch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE dispatch_requests SET branch_id = :branch_id, teaching_language = :teaching_language, course_title = :course_title, weekdays = :weekdays, start_time = :start_time, end_time = :end_time, start_date = :start_date, end_date = :end_date, lecture_count = :lecture_count, students_count = :students_count, target = :target, level = :level, is_online = :is_online, requirements = :requirements, notes = :notes, requester_name = :requester_name, requester_phone = :requester_phone, requester_email = :requester_email, application_deadline = :application_deadline, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, dispatch); err != nil {
		return fmt.Errorf("update dispatch: %w", err)
	}
	return nil
}

// UpdateStatus moves a dispatch to the given status. published_at is set
// only on the first transition into PUBLISHED and kept thereafter.
func (r *DispatchRepository) UpdateStatus(ctx context.Context, id string, status models.DispatchStatus) error {
	now := time.Now().UTC()
	if status == models.DispatchStatusPublished {
		const query = `UPDATE dispatch_requests SET status = $2, published_at = COALESCE(published_at, $3), updated_at = $3 WHERE id = $1`
		if _, err := r.db.ExecContext(ctx, query, id, status, now); err != nil {
			return fmt.Errorf("update dispatch status: %w", err)
		}
		return nil
	}
	const query = `UPDATE dispatch_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, now); err != nil {
		return fmt.Errorf("update dispatch status: %w", err)
	}
	return nil
}

// UpdateStatusTx is UpdateStatus executed inside an existing transaction.
func (r *DispatchRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.DispatchStatus) error {
	const query = `UPDATE dispatch_requests SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update dispatch status: %w", err)
	}
	return nil
}

// Delete removes a dispatch permanently. Only pre-publish requests should
// ever reach this.
func (r *DispatchRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM dispatch_requests WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete dispatch: %w", err)
	}
	return nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
