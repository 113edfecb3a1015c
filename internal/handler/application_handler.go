package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/friending/culture-dispatch-api/internal/service"
	appErrors "github.com/friending/culture-dispatch-api/pkg/errors"
	"github.com/friending/culture-dispatch-api/pkg/response"
)

// ApplicationHandler exposes the teacher application endpoints that are not
// nested under a dispatch route.
type ApplicationHandler struct {
	service *service.ApplicationService
}

// NewApplicationHandler constructs ApplicationHandler.
func NewApplicationHandler(svc *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// MyApplications godoc
// @Summary List my applications with their postings
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/applications [get]
func (h *ApplicationHandler) MyApplications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	apps, err := h.service.MyApplications(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Withdraw godoc
// @Summary Withdraw my application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 204
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetStatus godoc
// @Summary Change an application status
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.SetApplicationStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) SetStatus(c *gin.Context) {
	var req service.SetApplicationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	app, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
