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

// DispatchHandler exposes the dispatch request workflow endpoints.
type DispatchHandler struct {
	dispatches   *service.DispatchService
	applications *service.ApplicationService
}

// NewDispatchHandler constructs DispatchHandler.
func NewDispatchHandler(dispatches *service.DispatchService, applications *service.ApplicationService) *DispatchHandler {
	return &DispatchHandler{dispatches: dispatches, applications: applications}
}

// Create godoc
// @Summary File a new dispatch request
// @Tags Dispatches
// @Accept json
// @Produce json
// @Param payload body service.DispatchPayload true "Dispatch payload"
// @Success 201 {object} response.Envelope
// @Router /dispatches [post]
func (h *DispatchHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DispatchPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	dispatch, err := h.dispatches.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dispatch)
}

// MyList godoc
// @Summary List my dispatch requests
// @Tags Dispatches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/dispatches [get]
func (h *DispatchHandler) MyList(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dispatches, err := h.dispatches.MyList(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatches, nil)
}

// GetMine godoc
// @Summary Get one of my dispatch requests
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 200 {object} response.Envelope
// @Router /me/dispatches/{id} [get]
func (h *DispatchHandler) GetMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dispatch, err := h.dispatches.GetForManager(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// UpdateMine godoc
// @Summary Update one of my dispatch requests
// @Tags Dispatches
// @Accept json
// @Produce json
// @Param id path string true "Dispatch ID"
// @Param payload body service.DispatchPayload true "Dispatch payload"
// @Success 200 {object} response.Envelope
// @Router /me/dispatches/{id} [put]
func (h *DispatchHandler) UpdateMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DispatchPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	dispatch, err := h.dispatches.UpdateForManager(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// List godoc
// @Summary List dispatch requests
// @Tags Dispatches
// @Produce json
// @Param status query string false "Filter by status"
// @Param branch_id query string false "Filter by branch"
// @Param language query string false "Filter by teaching language"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /dispatches [get]
func (h *DispatchHandler) List(c *gin.Context) {
	var filter models.DispatchFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.DispatchStatus(raw)
		filter.Status = &status
	}
	filter.BranchID = c.Query("branch_id")
	filter.Language = strings.TrimSpace(c.Query("language"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	dispatches, pagination, err := h.dispatches.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatches, pagination)
}

// Get godoc
// @Summary Get dispatch detail
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id} [get]
func (h *DispatchHandler) Get(c *gin.Context) {
	dispatch, err := h.dispatches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// Update godoc
// @Summary Update a dispatch as admin
// @Tags Dispatches
// @Accept json
// @Produce json
// @Param id path string true "Dispatch ID"
// @Param payload body service.DispatchPayload true "Dispatch payload"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id} [put]
func (h *DispatchHandler) Update(c *gin.Context) {
	var req service.DispatchPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	dispatch, err := h.dispatches.AdminUpdate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// StartReview godoc
// @Summary Move a dispatch request into review
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id}/review [post]
func (h *DispatchHandler) StartReview(c *gin.Context) {
	dispatch, err := h.dispatches.StartReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// Publish godoc
// @Summary Publish a dispatch as an open posting
// @Tags Dispatches
// @Accept json
// @Produce json
// @Param id path string true "Dispatch ID"
// @Param payload body service.PublishRequest false "Publish options"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id}/publish [post]
func (h *DispatchHandler) Publish(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.PublishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	dispatch, err := h.dispatches.Publish(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// Close godoc
// @Summary Close a published posting
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id}/close [post]
func (h *DispatchHandler) Close(c *gin.Context) {
	dispatch, err := h.dispatches.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// Cancel godoc
// @Summary Cancel a dispatch request
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id}/cancel [post]
func (h *DispatchHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dispatch, err := h.dispatches.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dispatch, nil)
}

// Delete godoc
// @Summary Delete an unpublished dispatch request
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 204
// @Router /dispatches/{id} [delete]
func (h *DispatchHandler) Delete(c *gin.Context) {
	if err := h.dispatches.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Board godoc
// @Summary List open postings for teachers
// @Tags Dispatches
// @Produce json
// @Param language query string false "Filter by teaching language"
// @Success 200 {object} response.Envelope
// @Router /postings [get]
func (h *DispatchHandler) Board(c *gin.Context) {
	teacherProfileID := ""
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher {
		teacherProfileID = h.resolveProfileID(c, claims.UserID)
	}

	items, err := h.dispatches.Board(c.Request.Context(), teacherProfileID, strings.TrimSpace(c.Query("language")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Applications godoc
// @Summary List applications on a dispatch
// @Tags Dispatches
// @Produce json
// @Param id path string true "Dispatch ID"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id}/applications [get]
func (h *DispatchHandler) Applications(c *gin.Context) {
	apps, err := h.applications.ListByDispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Apply godoc
// @Summary Apply to a published posting
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Dispatch ID"
// @Param payload body service.ApplyRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /postings/{id}/apply [post]
func (h *DispatchHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	app, err := h.applications.Apply(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

func (h *DispatchHandler) resolveProfileID(c *gin.Context, userID string) string {
	// The board tolerates a missing profile: the posting list still renders,
	// only the is_applied annotation is skipped.
	profileID, err := h.applications.ProfileID(c.Request.Context(), userID)
	if err != nil {
		return ""
	}
	return profileID
}
