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

const branchColumns = `id, center_name, region_name, branch_name, address, latitude, longitude, center_phone, manager_name, manager_phone, manager_email, notes, created_at, updated_at`

// BranchRepository provides database access to culture-center branches.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository creates a new instance of BranchRepository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// FindByID returns a branch by identifier.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	query := fmt.Sprintf(`SELECT %s FROM branches WHERE id = $1 LIMIT 1`, branchColumns)
	var branch models.Branch
	if err := r.db.GetContext(ctx, &branch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find branch by id: %w", err)
	}
	return &branch, nil
}

// List returns branches matching the filter, ordered by region then branch name.
func (r *BranchRepository) List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, error) {
	baseQuery := `FROM branches WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Region != "" {
		conditions = append(conditions, fmt.Sprintf("region_name = $%d", len(args)+1))
		args = append(args, filter.Region)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(center_name) LIKE $%d OR LOWER(branch_name) LIKE $%d OR LOWER(address) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY region_name ASC, branch_name ASC", branchColumns, baseQuery)

	var branches []models.Branch
	if err := r.db.SelectContext(ctx, &branches, listQuery, args...); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// Regions returns the distinct region names present in the directory.
func (r *BranchRepository) Regions(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT region_name FROM branches ORDER BY region_name ASC`
	var regions []string
	if err := r.db.SelectContext(ctx, &regions, query); err != nil {
		return nil, fmt.Errorf("list branch regions: %w", err)
	}
	return regions, nil
}

// Create inserts a new branch.
func (r *BranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = now
	}
	branch.UpdatedAt = now

	const query = `INSERT INTO branches (id, center_name, region_name, branch_name, address, latitude, longitude, center_phone, manager_name, manager_phone, manager_email, notes, created_at, updated_at) VALUES (:id, :center_name, :region_name, :branch_name, :address, :latitude, :longitude, :center_phone, :manager_name, :manager_phone, :manager_email, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// Update updates mutable fields of a branch.
func (r *BranchRepository) Update(ctx context.Context, branch *models.Branch) error {
	branch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE branches SET center_name = :center_name, region_name = :region_name, branch_name = :branch_name, address = :address, latitude = :latitude, longitude = :longitude, center_phone = :center_phone, manager_name = :manager_name, manager_phone = :manager_phone, manager_email = :manager_email, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, branch); err != nil {
		return fmt.Errorf("update branch: %w", err)
	}
	return nil
}

// Delete removes a branch permanently.
func (r *BranchRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM branches WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

// CountOpenDispatches returns the number of non-terminal dispatch requests
// attached to a branch. Used to guard branch deletion.
func (r *BranchRepository) CountOpenDispatches(ctx context.Context, branchID string) (int, error) {
	const query = `SELECT COUNT(*) FROM dispatch_requests WHERE branch_id = $1 AND status NOT IN ('CLOSED', 'CANCELED', 'CONFIRMED')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, branchID); err != nil {
		return 0, fmt.Errorf("count open dispatches: %w", err)
	}
	return count, nil
}
