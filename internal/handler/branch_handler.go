package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/service"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
	"github.com/friending/culture-dispatch-api/pkg/response"
)

// BranchHandler exposes the branch directory endpoints.
type BranchHandler struct {
	branches *service.BranchService
	search   *service.TeacherSearchService
}

// NewBranchHandler constructs BranchHandler.
func NewBranchHandler(branches *service.BranchService, search *service.TeacherSearchService) *BranchHandler {
	return &BranchHandler{branches: branches, search: search}
}

// List godoc
// @Summary List branches
// @Tags Branches
// @Produce json
// @Param region query string false "Filter by region"
// @Param search query string false "Search by center or branch name"
// @Success 200 {object} response.Envelope
// @Router /branches [get]
func (h *BranchHandler) List(c *gin.Context) {
	filter := models.BranchFilter{
		Region: strings.TrimSpace(c.Query("region")),
		Search: strings.TrimSpace(c.Query("search")),
	}
	branches, err := h.branches.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branches, nil)
}

// Regions godoc
// @Summary List distinct branch regions
// @Tags Branches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /regions [get]
func (h *BranchHandler) Regions(c *gin.Context) {
	regions, err := h.branches.Regions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regions, nil)
}

// Get godoc
// @Summary Get branch detail
// @Tags Branches
// @Produce json
// @Param id path string true "Branch ID"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [get]
func (h *BranchHandler) Get(c *gin.Context) {
	branch, err := h.branches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branch, nil)
}

// Create godoc
// @Summary Create branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param payload body service.BranchRequest true "Branch payload"
// @Success 201 {object} response.Envelope
// @Router /branches [post]
func (h *BranchHandler) Create(c *gin.Context) {
	var req service.BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	branch, err := h.branches.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, branch)
}

// Update godoc
// @Summary Update branch
// @Tags Branches
// @Accept json
// @Produce json
// @Param id path string true "Branch ID"
// @Param payload body service.BranchRequest true "Branch payload"
// @Success 200 {object} response.Envelope
// @Router /branches/{id} [put]
func (h *BranchHandler) Update(c *gin.Context) {
	var req service.BranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	branch, err := h.branches.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, branch, nil)
}

// Delete godoc
// @Summary Delete branch
// @Tags Branches
// @Produce json
// @Param id path string true "Branch ID"
// @Success 204 {object} response.Envelope
// @Router /branches/{id} [delete]
func (h *BranchHandler) Delete(c *gin.Context) {
	if err := h.branches.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// NearbyTeachers godoc
// @Summary Find accepted teachers near a branch
// @Tags Branches
// @Produce json
// @Param id path string true "Branch ID"
// @Param radius_km query number false "Search radius in kilometres"
// @Param language query string false "Filter by teaching language"
// @Success 200 {object} response.Envelope
// @Router /branches/{id}/nearby-teachers [get]
func (h *BranchHandler) NearbyTeachers(c *gin.Context) {
	radius := 0.0
	if raw := c.Query("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "radius_km must be a number"))
			return
		}
		radius = parsed
	}

	teachers, err := h.search.WithinRadius(c.Request.Context(), c.Param("id"), radius, strings.TrimSpace(c.Query("language")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}
