package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name   string
		store  Pinger
		broker Pinger
		status int
	}{
		{"all up", up, up, http.StatusOK},
		{"no broker configured", up, nil, http.StatusOK},
		{"store down", down, up, http.StatusServiceUnavailable},
		{"broker down", up, down, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewHandler(tt.store, tt.broker).RegisterRoutes(r.Group(""))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
