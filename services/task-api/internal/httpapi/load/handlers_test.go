package load

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/loadsim"
)

func TestSimulate(t *testing.T) {
	r := chi.NewRouter()
	RegisterRoutes(r, loadsim.New(40*time.Millisecond), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	start := time.Now()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/load", nil))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Carga simulada por 10s", rec.Body.String())
}
