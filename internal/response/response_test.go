package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFailUsesCodeMessageAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCertificateNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrCertificateNotFound, body.Error.Code)
	assert.Equal(t, "Certificate not found.", body.Error.Message)
	assert.Equal(t, "req-123", body.Metadata.RequestID)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 10).TotalPages)
}

func TestGetMessageUnknownCode(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred.", GetMessage("NOPE"))
}
