package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friending/culture-dispatch-api/internal/middleware"
	"github.com/friending/culture-dispatch-api/internal/models"
)

func TestTeacherProfileHandlerSubmitWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTeacherProfileHandler(nil, 0)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/me/profile", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTeacherProfileHandlerUploadWithoutFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTeacherProfileHandler(nil, 0)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/me/attachments/resume", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "kind", Value: "resume"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.UploadAttachment(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTeacherProfileHandlerReviewInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTeacherProfileHandler(nil, 0)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/teachers/tp1/review", bytes.NewReader([]byte(`{`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tp1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})

	handler.Review(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
