package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/friending/culture-dispatch-api/internal/models"
	"github.com/friending/culture-dispatch-api/internal/service"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
	"github.com/friending/culture-dispatch-api/pkg/response"
)

// defaultMaxAttachmentBytes caps uploaded profile attachments when no limit
// is configured.
const defaultMaxAttachmentBytes = 10 << 20

// TeacherProfileHandler exposes teacher profile endpoints.
type TeacherProfileHandler struct {
	profiles  *service.TeacherProfileService
	maxUpload int64
}

// NewTeacherProfileHandler constructs TeacherProfileHandler.
func NewTeacherProfileHandler(profiles *service.TeacherProfileService, maxUpload int64) *TeacherProfileHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxAttachmentBytes
	}
	return &TeacherProfileHandler{profiles: profiles, maxUpload: maxUpload}
}

// Submit godoc
// @Summary Submit my teacher profile
// @Tags Teacher Profiles
// @Accept json
// @Produce json
// @Param payload body service.TeacherProfileRequest true "Profile payload"
// @Success 201 {object} response.Envelope
// @Router /me/profile [post]
func (h *TeacherProfileHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.TeacherProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	profile, err := h.profiles.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// GetMine godoc
// @Summary Get my teacher profile
// @Tags Teacher Profiles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/profile [get]
func (h *TeacherProfileHandler) GetMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	profile, err := h.profiles.GetMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateMine godoc
// @Summary Update my teacher profile
// @Tags Teacher Profiles
// @Accept json
// @Produce json
// @Param payload body service.TeacherProfileRequest true "Profile payload"
// @Success 200 {object} response.Envelope
// @Router /me/profile [put]
func (h *TeacherProfileHandler) UpdateMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.TeacherProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	profile, err := h.profiles.UpdateMine(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// List godoc
// @Summary List teacher profiles
// @Tags Teacher Profiles
// @Produce json
// @Param status query string false "Filter by review status"
// @Param language query string false "Filter by teaching language"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherProfileHandler) List(c *gin.Context) {
	filter := parseProfileFilter(c)
	profiles, pagination, err := h.profiles.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profiles, pagination)
}

// Get godoc
// @Summary Get teacher profile detail
// @Tags Teacher Profiles
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherProfileHandler) Get(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Review godoc
// @Summary Review a teacher profile
// @Tags Teacher Profiles
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param payload body service.ProfileReviewRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/review [patch]
func (h *TeacherProfileHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ProfileReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	profile, err := h.profiles.Review(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UploadAttachment godoc
// @Summary Upload a profile attachment
// @Tags Teacher Profiles
// @Accept multipart/form-data
// @Produce json
// @Param kind path string true "Attachment kind (profile_image or visa_scan)"
// @Param file formData file true "Attachment file"
// @Success 201 {object} response.Envelope
// @Router /me/attachments/{kind} [post]
func (h *TeacherProfileHandler) UploadAttachment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field is required"))
		return
	}
	if fileHeader.Size > h.maxUpload {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "attachment exceeds the size limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	key, err := h.profiles.SaveAttachment(c.Request.Context(), claims.UserID, c.Param("kind"), fileHeader.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"key": key})
}

// AttachmentURL godoc
// @Summary Issue a signed attachment download URL
// @Tags Teacher Profiles
// @Produce json
// @Param id path string true "Profile ID"
// @Param kind path string true "Attachment kind"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/attachments/{kind}/url [get]
func (h *TeacherProfileHandler) AttachmentURL(c *gin.Context) {
	token, expiresAt, err := h.profiles.AttachmentURL(c.Request.Context(), c.Param("id"), c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}, nil)
}

// DownloadAttachment godoc
// @Summary Download an attachment with a signed token
// @Tags Teacher Profiles
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /attachments [get]
func (h *TeacherProfileHandler) DownloadAttachment(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	file, err := h.profiles.OpenAttachment(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat attachment"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(file.Name())))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}

// ExportCSV godoc
// @Summary Export the teacher roster as CSV
// @Tags Teacher Profiles
// @Produce text/csv
// @Param status query string false "Filter by review status"
// @Param language query string false "Filter by teaching language"
// @Success 200 {file} binary
// @Router /exports/teachers [get]
func (h *TeacherProfileHandler) ExportCSV(c *gin.Context) {
	data, err := h.profiles.ExportCSV(c.Request.Context(), parseProfileFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("teachers-%s.csv", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

func parseProfileFilter(c *gin.Context) models.TeacherProfileFilter {
	var filter models.TeacherProfileFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.ProfileStatus(raw)
		filter.Status = &status
	}
	filter.Language = strings.TrimSpace(c.Query("language"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
