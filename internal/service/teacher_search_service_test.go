package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/geo"
	"github.com/friending/culture-dispatch-api/internal/models"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type mockGeoProfiles struct {
	profiles []models.TeacherProfile
}

func (m *mockGeoProfiles) ListWithinBox(ctx context.Context, box geo.BoundingBox, language string) ([]models.TeacherProfile, error) {
	return m.profiles, nil
}

func geocoded(id string, lat, lng float64) models.TeacherProfile {
	return models.TeacherProfile{ID: id, Status: models.ProfileStatusAccepted, Latitude: &lat, Longitude: &lng}
}

func searchBranches() *mockBranchReader {
	lat, lng := 37.5326, 126.9652
	return &mockBranchReader{branches: map[string]*models.Branch{
		"b1": {ID: "b1", Latitude: &lat, Longitude: &lng},
		"b2": {ID: "b2"},
	}}
}

func TestTeacherSearchWithinRadius(t *testing.T) {
	// Roughly 1 km, 6 km and 60 km from the Yongsan anchor.
	profiles := &mockGeoProfiles{profiles: []models.TeacherProfile{
		geocoded("far", 38.07, 126.9652),
		geocoded("near", 37.5416, 126.9652),
		geocoded("mid", 37.5866, 126.9652),
	}}
	svc := NewTeacherSearchService(profiles, searchBranches(), zap.NewNop(), 10, 100)

	results, err := svc.WithinRadius(context.Background(), "b1", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].Profile.ID)
	assert.Equal(t, "mid", results[1].Profile.ID)
	assert.Less(t, results[0].DistanceKm, results[1].DistanceKm)
}

func TestTeacherSearchDefaultRadius(t *testing.T) {
	profiles := &mockGeoProfiles{profiles: []models.TeacherProfile{
		geocoded("near", 37.5416, 126.9652),
		geocoded("mid", 37.70, 126.9652),
	}}
	svc := NewTeacherSearchService(profiles, searchBranches(), zap.NewNop(), 10, 100)

	results, err := svc.WithinRadius(context.Background(), "b1", 0, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].Profile.ID)
}

func TestTeacherSearchRadiusTooLarge(t *testing.T) {
	svc := NewTeacherSearchService(&mockGeoProfiles{}, searchBranches(), zap.NewNop(), 10, 100)

	_, err := svc.WithinRadius(context.Background(), "b1", 500, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherSearchUnknownLanguage(t *testing.T) {
	svc := NewTeacherSearchService(&mockGeoProfiles{}, searchBranches(), zap.NewNop(), 10, 100)

	_, err := svc.WithinRadius(context.Background(), "b1", 10, "Klingon")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherSearchBranchWithoutCoordinates(t *testing.T) {
	svc := NewTeacherSearchService(&mockGeoProfiles{}, searchBranches(), zap.NewNop(), 10, 100)

	_, err := svc.WithinRadius(context.Background(), "b2", 10, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherSearchBranchMissing(t *testing.T) {
	svc := NewTeacherSearchService(&mockGeoProfiles{}, searchBranches(), zap.NewNop(), 10, 100)

	_, err := svc.WithinRadius(context.Background(), "missing", 10, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
