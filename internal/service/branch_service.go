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
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type branchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
	List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, error)
	Regions(ctx context.Context) ([]string, error)
	Create(ctx context.Context, branch *models.Branch) error
	Update(ctx context.Context, branch *models.Branch) error
	Delete(ctx context.Context, id string) error
	CountOpenDispatches(ctx context.Context, branchID string) (int, error)
}

type directoryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const branchCachePattern = "branches:directory:*"

// BranchRequest is the payload for creating or updating a branch.
type BranchRequest struct {
	CenterName   string   `json:"center_name" validate:"required,max=100"`
	RegionName   string   `json:"region_name" validate:"required,max=100"`
	BranchName   string   `json:"branch_name" validate:"required,max=100"`
	Address      string   `json:"address" validate:"required,max=255"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	CenterPhone  *string  `json:"center_phone" validate:"omitempty,max=30"`
	ManagerName  *string  `json:"manager_name" validate:"omitempty,max=100"`
	ManagerPhone *string  `json:"manager_phone" validate:"omitempty,max=30"`
	ManagerEmail *string  `json:"manager_email" validate:"omitempty,email"`
	Notes        *string  `json:"notes" validate:"omitempty,max=2000"`
}

// BranchService orchestrates culture-center branch operations.
type BranchService struct {
	repo      branchRepository
	cache     directoryCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewBranchService constructs a BranchService.
func NewBranchService(repo branchRepository, cache directoryCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *BranchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &BranchService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// List returns the branch directory, served from cache when possible.
func (s *BranchService) List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, error) {
	key := fmt.Sprintf("branches:directory:%s:%s", filter.Region, filter.Search)

	if s.cache != nil {
		start := time.Now()
		var cached []models.Branch
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
	}

	branches, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list branches")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, branches, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache branch directory", zap.Error(err))
		}
	}
	return branches, nil
}

// Regions returns the distinct regions for directory filtering.
func (s *BranchService) Regions(ctx context.Context) ([]string, error) {
	regions, err := s.repo.Regions(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list regions")
	}
	return regions, nil
}

// Get returns a branch by id.
func (s *BranchService) Get(ctx context.Context, id string) (*models.Branch, error) {
	branch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	return branch, nil
}

// Create registers a new branch.
func (s *BranchService) Create(ctx context.Context, req BranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}
	if err := validateCoordinatePair(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	branch := &models.Branch{
		CenterName:   strings.TrimSpace(req.CenterName),
		RegionName:   strings.TrimSpace(req.RegionName),
		BranchName:   strings.TrimSpace(req.BranchName),
		Address:      strings.TrimSpace(req.Address),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		CenterPhone:  normalizeOptional(req.CenterPhone),
		ManagerName:  normalizeOptional(req.ManagerName),
		ManagerPhone: normalizeOptional(req.ManagerPhone),
		ManagerEmail: normalizeOptional(req.ManagerEmail),
		Notes:        normalizeOptional(req.Notes),
	}

	if err := s.repo.Create(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create branch")
	}

	s.invalidateDirectory(ctx)
	return branch, nil
}

// Update modifies an existing branch.
func (s *BranchService) Update(ctx context.Context, id string, req BranchRequest) (*models.Branch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid branch payload")
	}
	if err := validateCoordinatePair(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	branch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	branch.CenterName = strings.TrimSpace(req.CenterName)
	branch.RegionName = strings.TrimSpace(req.RegionName)
	branch.BranchName = strings.TrimSpace(req.BranchName)
	branch.Address = strings.TrimSpace(req.Address)
	branch.Latitude = req.Latitude
	branch.Longitude = req.Longitude
	branch.CenterPhone = normalizeOptional(req.CenterPhone)
	branch.ManagerName = normalizeOptional(req.ManagerName)
	branch.ManagerPhone = normalizeOptional(req.ManagerPhone)
	branch.ManagerEmail = normalizeOptional(req.ManagerEmail)
	branch.Notes = normalizeOptional(req.Notes)

	if err := s.repo.Update(ctx, branch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update branch")
	}

	s.invalidateDirectory(ctx)
	return branch, nil
}

// Delete removes a branch unless dispatch requests still reference it.
func (s *BranchService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	open, err := s.repo.CountOpenDispatches(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check branch references")
	}
	if open > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "branch has open dispatch requests")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete branch")
	}

	s.invalidateDirectory(ctx)
	return nil
}

func (s *BranchService) invalidateDirectory(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, branchCachePattern); err != nil {
		s.logger.Warn("failed to invalidate branch directory cache", zap.Error(err))
	}
}

// validateCoordinatePair rejects a half-set coordinate.
func validateCoordinatePair(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return appErrors.Clone(appErrors.ErrValidation, "latitude and longitude must be provided together")
	}
	return nil
}

// normalizeOptional trims an optional string and collapses empty to nil.
func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
