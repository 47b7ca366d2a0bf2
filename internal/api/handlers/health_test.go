package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	cfg := testConfig()
	cfg.EnhancementEnabled = true

	r := gin.New()
	r.GET("/health", NewHealthHandler(cfg).HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status      string `json:"status"`
		Enhancement struct {
			Status string `json:"status"`
			Model  string `json:"model"`
		} `json:"enhancement"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "enabled", body.Enhancement.Status)
	assert.Equal(t, "gpt-5-mini", body.Enhancement.Model)
}

func TestHealthCheckEnhancementDisabled(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(testConfig()).HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"disabled"`)
}
