package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/tasklist/internal/domain"
)

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func TestMetrics_Middleware(t *testing.T) {
	t.Run("Should label requests with the route pattern", func(t *testing.T) {
		m := New(false)
		r := chi.NewRouter()
		r.Use(m.Middleware)
		r.Get("/api/todos/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		for i := 1; i <= 3; i++ {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/todos/%d", i), nil))
			assert.Equal(t, http.StatusNotFound, rec.Code)
		}

		count := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/todos/{id}", "404"))
		assert.Equal(t, float64(3), count)

		family := findFamily(t, m, "tasklist_http_request_duration_seconds")
		require.NotNil(t, family)
		require.Len(t, family.GetMetric(), 1)
		assert.Equal(t, uint64(3), family.GetMetric()[0].GetHistogram().GetSampleCount())
	})

	t.Run("Should default to 200 when the handler never writes a header", func(t *testing.T) {
		m := New(false)
		r := chi.NewRouter()
		r.Use(m.Middleware)
		r.Get("/", func(http.ResponseWriter, *http.Request) {})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/", "200")))
	})

	t.Run("Should group unknown paths under a single label", func(t *testing.T) {
		m := New(false)
		r := chi.NewRouter()
		r.Use(m.Middleware)
		r.Get("/", func(http.ResponseWriter, *http.Request) {})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
	})
}

func TestMetrics_Operations(t *testing.T) {
	t.Run("Should classify outcomes", func(t *testing.T) {
		m := New(false)
		m.ObserveOperation("rename", nil)
		m.ObserveOperation("rename", fmt.Errorf("wrapped: %w", domain.ErrTodoNotFound))
		m.ObserveOperation("rename", &domain.StorageError{Op: "rename", Err: errors.New("boom")})

		assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("rename", OutcomeSuccess)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("rename", OutcomeNotFound)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("rename", OutcomeError)))
	})

	t.Run("Should accumulate archived counts and ignore zero", func(t *testing.T) {
		m := New(false)
		m.ObserveArchived(3)
		m.ObserveArchived(0)
		m.ObserveArchived(2)
		assert.Equal(t, float64(5), testutil.ToFloat64(m.archived))
	})
}

func TestMetrics_Handler(t *testing.T) {
	t.Run("Should expose registered families", func(t *testing.T) {
		m := New(true)
		m.ObserveArchived(1)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "tasklist_todos_archived_total 1"))
		assert.True(t, strings.Contains(string(body), "go_goroutines"))
	})
}
