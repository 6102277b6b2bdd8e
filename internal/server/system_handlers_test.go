package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compass/internal/work"
)

func newSystemFixture(register func(*work.Registry, *work.CompletionTracker)) *SystemHandlers {
	registry := work.NewRegistry()
	completion := work.NewCompletionTracker()
	if register != nil {
		register(registry, completion)
	}
	processor := work.NewProcessor(registry, completion)

	return NewSystemHandlers(zerolog.Nop(), "", nil, registry, completion, processor, nil)
}

func TestHandleJobsStatus(t *testing.T) {
	executed := 0
	handlers := newSystemFixture(func(registry *work.Registry, completion *work.CompletionTracker) {
		registry.Register(&work.WorkType{
			ID:           "prices:quotes",
			Priority:     work.PriorityHigh,
			Interval:     30 * time.Minute,
			FindSubjects: func() []string { return []string{""} },
			Execute: func(_ context.Context, _ string) error {
				executed++
				return nil
			},
		})
		registry.Register(&work.WorkType{
			ID:           "analytics:refresh",
			Priority:     work.PriorityMedium,
			Interval:     time.Hour,
			DependsOn:    []string{"prices:quotes"},
			FindSubjects: func() []string { return nil },
			Execute:      func(_ context.Context, _ string) error { return nil },
		})

		completion.MarkCompletedAt(
			work.NewWorkItem(&work.WorkType{ID: "prices:quotes"}, ""),
			time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/system/jobs", nil)
	rec := httptest.NewRecorder()
	handlers.HandleJobsStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response JobsStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Jobs, 2)

	// Ordered by priority, high first.
	assert.Equal(t, "prices:quotes", response.Jobs[0].ID)
	assert.Equal(t, "High", response.Jobs[0].Priority)
	assert.Equal(t, "30m0s", response.Jobs[0].Interval)
	require.NotNil(t, response.Jobs[0].LastCompleted)
	assert.Equal(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC), response.Jobs[0].LastCompleted.UTC())

	assert.Equal(t, "analytics:refresh", response.Jobs[1].ID)
	assert.Equal(t, []string{"prices:quotes"}, response.Jobs[1].DependsOn)
	assert.Nil(t, response.Jobs[1].LastCompleted)

	assert.Empty(t, response.InFlight)
	assert.Zero(t, response.RetryQueue)
	assert.Zero(t, executed)
}

func TestHandleTriggerJob(t *testing.T) {
	executed := 0
	handlers := newSystemFixture(func(registry *work.Registry, _ *work.CompletionTracker) {
		registry.Register(&work.WorkType{
			ID:           "prices:quotes",
			Priority:     work.PriorityHigh,
			Interval:     30 * time.Minute,
			FindSubjects: func() []string { return []string{""} },
			Execute: func(_ context.Context, _ string) error {
				executed++
				return nil
			},
		})
	})

	router := chi.NewRouter()
	handlers.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/jobs/prices:quotes/trigger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, executed)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "completed", response["status"])
}

func TestHandleTriggerJobUnknown(t *testing.T) {
	handlers := newSystemFixture(nil)

	router := chi.NewRouter()
	handlers.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/jobs/no:such:job/trigger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
