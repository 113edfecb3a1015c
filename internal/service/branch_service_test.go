package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/friending/culture-dispatch-api/internal/models"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
)

type mockBranchRepo struct {
	branches map[string]models.Branch
	open     map[string]int
	created  *models.Branch
	deleted  []string
	lists    int
}

func (m *mockBranchRepo) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	if b, ok := m.branches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBranchRepo) List(ctx context.Context, filter models.BranchFilter) ([]models.Branch, error) {
	m.lists++
	var list []models.Branch
	for _, b := range m.branches {
		list = append(list, b)
	}
	return list, nil
}

func (m *mockBranchRepo) Regions(ctx context.Context) ([]string, error) {
	return []string{"Seoul", "Gyeonggi"}, nil
}

func (m *mockBranchRepo) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = "new-branch"
	}
	if m.branches == nil {
		m.branches = make(map[string]models.Branch)
	}
	m.branches[branch.ID] = *branch
	m.created = branch
	return nil
}

func (m *mockBranchRepo) Update(ctx context.Context, branch *models.Branch) error {
	m.branches[branch.ID] = *branch
	return nil
}

func (m *mockBranchRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockBranchRepo) CountOpenDispatches(ctx context.Context, branchID string) (int, error) {
	return m.open[branchID], nil
}

type mockDirectoryCache struct {
	data    map[string][]byte
	dropped []string
}

func (m *mockDirectoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if raw, ok := m.data[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	return appErrors.ErrCacheMiss
}

func (m *mockDirectoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = raw
	return nil
}

func (m *mockDirectoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.dropped = append(m.dropped, pattern)
	m.data = nil
	return nil
}

func validBranchRequest() BranchRequest {
	return BranchRequest{
		CenterName: "Hanbit Culture Center",
		RegionName: "Seoul",
		BranchName: "Yongsan",
		Address:    "12 Hangang-daero",
	}
}

func TestBranchServiceListUsesCache(t *testing.T) {
	repo := &mockBranchRepo{branches: map[string]models.Branch{"b1": {ID: "b1", BranchName: "Yongsan"}}}
	cache := &mockDirectoryCache{}
	svc := NewBranchService(repo, cache, nil, validator.New(), zap.NewNop(), time.Minute)

	first, err := svc.List(context.Background(), models.BranchFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.List(context.Background(), models.BranchFilter{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, repo.lists)
}

func TestBranchServiceCreateInvalidatesDirectory(t *testing.T) {
	repo := &mockBranchRepo{}
	cache := &mockDirectoryCache{}
	svc := NewBranchService(repo, cache, nil, validator.New(), zap.NewNop(), time.Minute)

	branch, err := svc.Create(context.Background(), validBranchRequest())
	require.NoError(t, err)
	assert.Equal(t, "Yongsan", branch.BranchName)
	assert.Contains(t, cache.dropped, branchCachePattern)
}

func TestBranchServiceCreateHalfCoordinates(t *testing.T) {
	svc := NewBranchService(&mockBranchRepo{}, nil, nil, validator.New(), zap.NewNop(), time.Minute)

	req := validBranchRequest()
	lng := 126.97
	req.Longitude = &lng
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBranchServiceDeleteWithOpenDispatches(t *testing.T) {
	repo := &mockBranchRepo{
		branches: map[string]models.Branch{"b1": {ID: "b1"}},
		open:     map[string]int{"b1": 2},
	}
	svc := NewBranchService(repo, nil, nil, validator.New(), zap.NewNop(), time.Minute)

	err := svc.Delete(context.Background(), "b1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestBranchServiceDelete(t *testing.T) {
	repo := &mockBranchRepo{branches: map[string]models.Branch{"b1": {ID: "b1"}}}
	svc := NewBranchService(repo, nil, nil, validator.New(), zap.NewNop(), time.Minute)

	err := svc.Delete(context.Background(), "b1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "b1")
}

func TestBranchServiceGetMissing(t *testing.T) {
	svc := NewBranchService(&mockBranchRepo{}, nil, nil, validator.New(), zap.NewNop(), time.Minute)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
