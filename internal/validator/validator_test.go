package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revokeBody struct {
	Reason string `json:"reason" binding:"required,notblank"`
}

type listQuery struct {
	Page int `form:"page" binding:"omitempty,min=1"`
}

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body string) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var dst revokeBody
	return Bind(c, &dst)
}

func TestBindUsesJSONFieldNames(t *testing.T) {
	fields := bindBody(t, `{}`)
	require.Contains(t, fields, "reason")
	assert.Contains(t, fields["reason"], "required")
}

func TestBindNotBlank(t *testing.T) {
	fields := bindBody(t, `{"reason":"   "}`)
	assert.Equal(t, "reason must not be blank", fields["reason"])
}

func TestBindSyntaxError(t *testing.T) {
	fields := bindBody(t, `{"reason":`)
	assert.Contains(t, fields, "detail")
}

func TestBindQueryUsesFormNames(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=-1", nil)

	var q listQuery
	fields := BindQuery(c, &q)
	assert.Contains(t, fields, "page")
}
