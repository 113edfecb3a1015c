package service

import (
	"context"
	"database/sql"
	"sort"

	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/geo"
	"github.com/friending/culture-dispatch-api/internal/models"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type geoProfileSource interface {
	ListWithinBox(ctx context.Context, box geo.BoundingBox, language string) ([]models.TeacherProfile, error)
}

type geoBranchSource interface {
	FindByID(ctx context.Context, id string) (*models.Branch, error)
}

// TeacherSearchService finds accepted teachers within a radius of a branch.
type TeacherSearchService struct {
	profiles        geoProfileSource
	branches        geoBranchSource
	logger          *zap.Logger
	defaultRadiusKm float64
	maxRadiusKm     float64
}

// NewTeacherSearchService constructs a TeacherSearchService.
func NewTeacherSearchService(profiles geoProfileSource, branches geoBranchSource, logger *zap.Logger, defaultRadiusKm, maxRadiusKm float64) *TeacherSearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = 10
	}
	if maxRadiusKm <= 0 {
		maxRadiusKm = 100
	}
	return &TeacherSearchService{
		profiles:        profiles,
		branches:        branches,
		logger:          logger,
		defaultRadiusKm: defaultRadiusKm,
		maxRadiusKm:     maxRadiusKm,
	}
}

// WithinRadius returns accepted, geocoded teachers within radiusKm of the
// branch, nearest first. The bounding box narrows the candidate set in SQL;
// the exact spherical distance decides membership.
func (s *TeacherSearchService) WithinRadius(ctx context.Context, branchID string, radiusKm float64, language string) ([]models.TeacherDistance, error) {
	if radiusKm <= 0 {
		radiusKm = s.defaultRadiusKm
	}
	if radiusKm > s.maxRadiusKm {
		return nil, appErrors.Clone(appErrors.ErrValidation, "radius exceeds the allowed maximum")
	}
	if language != "" && !containsString(models.TeachingLanguages, language) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported teaching language")
	}

	branch, err := s.branches.FindByID(ctx, branchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "branch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load branch")
	}
	if !branch.HasCoordinates() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "branch has no coordinates")
	}

	box := geo.BoxAround(*branch.Latitude, *branch.Longitude, radiusKm)
	candidates, err := s.profiles.ListWithinBox(ctx, box, language)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search teachers")
	}

	results := make([]models.TeacherDistance, 0, len(candidates))
	for _, p := range candidates {
		d := geo.Distance(*branch.Latitude, *branch.Longitude, *p.Latitude, *p.Longitude)
		if d <= radiusKm {
			results = append(results, models.TeacherDistance{Profile: p, DistanceKm: d})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DistanceKm < results[j].DistanceKm })
	return results, nil
}
