package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maqua/membership-api/internal/logger"
)

func protectedRouter(gate *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RequireSession(logger.Development(), gate), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func get(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireSessionDisabledGatePassesThrough(t *testing.T) {
	router := protectedRouter(NewGate("", "", time.Hour))
	assert.Equal(t, http.StatusOK, get(router, "").Code)
}

func TestRequireSessionMissingHeader(t *testing.T) {
	router := protectedRouter(NewGate("secret-word", "signing-key", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, get(router, "").Code)
}

func TestRequireSessionWrongScheme(t *testing.T) {
	router := protectedRouter(NewGate("secret-word", "signing-key", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, get(router, "Basic dXNlcjpwYXNz").Code)
}

func TestRequireSessionInvalidToken(t *testing.T) {
	router := protectedRouter(NewGate("secret-word", "signing-key", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, get(router, "Bearer garbage").Code)
}

func TestRequireSessionValidToken(t *testing.T) {
	gate := NewGate("secret-word", "signing-key", time.Hour)
	session, err := gate.Issue(0)
	require.NoError(t, err)

	router := protectedRouter(gate)
	assert.Equal(t, http.StatusOK, get(router, "Bearer "+session.Token).Code)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// Generated when absent.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// Echoed when supplied.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
