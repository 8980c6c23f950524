package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestStockLevelValidation(t *testing.T) {
	SetupValidator()

	type request struct {
		Level string `json:"level" binding:"required,stock_level"`
	}

	engine := gin.New()
	engine.POST("/", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"warehouse accepted", `{"level":"WAREHOUSE"}`, http.StatusOK},
		{"operator accepted", `{"level":"OPERATOR"}`, http.StatusOK},
		{"machine accepted", `{"level":"MACHINE"}`, http.StatusOK},
		{"unknown level rejected", `{"level":"DEPOT"}`, http.StatusBadRequest},
		{"missing level rejected", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
		})
	}
}
