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

const courseColumns = `id, dispatch_id, teacher_profile_id, branch_id, teaching_language, course_title, weekdays, start_time, end_time, start_date, end_date, lecture_count, students_count, requester_name, requester_phone, requester_email, notes, admin_memo, status, created_at, updated_at`

// CourseRepository provides database access to operating courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindByDispatchID returns the course snapshotted from a dispatch, if any.
func (r *CourseRepository) FindByDispatchID(ctx context.Context, dispatchID string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE dispatch_id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, dispatchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by dispatch: %w", err)
	}
	return &course, nil
}

// ExistsByDispatchTx reports within tx whether a course already snapshots
// the dispatch.
func (r *CourseRepository) ExistsByDispatchTx(ctx context.Context, tx *sqlx.Tx, dispatchID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM courses WHERE dispatch_id = $1)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, dispatchID); err != nil {
		return false, fmt.Errorf("check course exists: %w", err)
	}
	return exists, nil
}

// List returns courses matching the filter with total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	baseQuery := `FROM courses WHERE 1=1`
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY start_date DESC LIMIT %d OFFSET %d", courseColumns, baseQuery, pageSize, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// ListByTeacher returns the courses assigned to a teacher, newest first.
func (r *CourseRepository) ListByTeacher(ctx context.Context, teacherProfileID string) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE teacher_profile_id = $1 ORDER BY start_date DESC`, courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, teacherProfileID); err != nil {
		return nil, fmt.Errorf("list courses by teacher: %w", err)
	}
	return courses, nil
}

// CreateTx inserts a course snapshot inside an existing transaction.
func (r *CourseRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, dispatch_id, teacher_profile_id, branch_id, teaching_language, course_title, weekdays, start_time, end_time, start_date, end_date, lecture_count, students_count, requester_name, requester_phone, requester_email, notes, admin_memo, status, created_at, updated_at) VALUES (:id, :dispatch_id, :teacher_profile_id, :branch_id, :teaching_language, :course_title, :weekdays, :start_time, :end_time, :start_date, :end_date, :lecture_count, :students_count, :requester_name, :requester_phone, :requester_email, :notes, :admin_memo, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable scheduling and memo fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET course_title = :course_title, weekdays = :weekdays, start_time = :start_time, end_time = :end_time, start_date = :start_date, end_date = :end_date, lecture_count = :lecture_count, students_count = :students_count, notes = :notes, admin_memo = :admin_memo, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateStatus moves a course to the given status.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	const query = `UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return nil
}
