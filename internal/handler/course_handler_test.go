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

func TestCourseHandlerSelectWinnerRequiresApplicationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/dispatches/d1/select", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "d1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})

	handler.SelectWinner(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCourseHandlerSelectWinnerWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/dispatches/d1/select", bytes.NewReader([]byte(`{"application_id":"a1"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "d1"}}

	handler.SelectWinner(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCourseHandlerSetStatusInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/courses/c1/status", bytes.NewReader([]byte(`nope`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "c1"}}

	handler.SetStatus(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
