package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/service"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
	"github.com/friending/culture-dispatch-api/pkg/response"
)

// CourseHandler exposes winner selection, course confirmation, and the
// confirmed course roster.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

type selectWinnerPayload struct {
	ApplicationID string `json:"application_id" binding:"required"`
}

// SelectWinner godoc
// @Summary Select the winning application on a dispatch
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Dispatch ID"
// @Param payload body selectWinnerPayload true "Winner payload"
// @Success 200 {object} response.Envelope
// @Router /dispatches/{id}/select [post]
func (h *CourseHandler) SelectWinner(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req selectWinnerPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	winner, err := h.service.SelectWinner(c.Request.Context(), claims.UserID, c.Param("id"), req.ApplicationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, winner, nil)
}

// Confirm godoc
// @Summary Confirm the selected application into a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Dispatch ID"
// @Param payload body service.ConfirmCourseRequest false "Confirmation payload"
// @Success 201 {object} response.Envelope
// @Router /dispatches/{id}/confirm [post]
func (h *CourseHandler) Confirm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ConfirmCourseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	course, err := h.service.ConfirmCourse(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// List godoc
// @Summary List confirmed courses
// @Tags Courses
// @Produce json
// @Param status query string false "Filter by course status"
// @Param branch_id query string false "Filter by branch"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, pagination, err := h.service.List(c.Request.Context(), parseCourseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// MyCourses godoc
// @Summary List my confirmed courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/courses [get]
func (h *CourseHandler) MyCourses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courses, err := h.service.MyCourses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Update godoc
// @Summary Update a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseUpdateRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.CourseUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	course, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// SetStatus godoc
// @Summary Change a course status
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/status [patch]
func (h *CourseHandler) SetStatus(c *gin.Context) {
	var req service.CourseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	course, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ExportPDF godoc
// @Summary Export the course roster as PDF
// @Tags Courses
// @Produce application/pdf
// @Param status query string false "Filter by course status"
// @Param branch_id query string false "Filter by branch"
// @Success 200 {file} binary
// @Router /exports/courses [get]
func (h *CourseHandler) ExportPDF(c *gin.Context) {
	data, err := h.service.ExportPDF(c.Request.Context(), parseCourseFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("courses-%s.pdf", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

func parseCourseFilter(c *gin.Context) models.CourseFilter {
	var filter models.CourseFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.CourseStatus(raw)
		filter.Status = &status
	}
	filter.BranchID = strings.TrimSpace(c.Query("branch_id"))
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return filter
}
