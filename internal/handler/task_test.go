package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/auth"
	"github.com/BuzzLyutic/taskflow/internal/event"
	"github.com/BuzzLyutic/taskflow/internal/model"
	"github.com/BuzzLyutic/taskflow/internal/repo"
	"github.com/BuzzLyutic/taskflow/internal/service"
)

var testSecret = []byte("test-secret")

func setupRouter(t *testing.T) (http.Handler, *repo.MemoryRepo) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	memRepo := repo.NewMemoryRepo()
	logger := zap.NewNop()
	channel := event.NewRedisChannel(client, logger)
	svc := service.NewTaskService(memRepo, channel, logger)
	taskHandler := NewTaskHandler(svc, channel, logger)
	adminHandler := NewAdminHandler(svc, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(testSecret))

		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)
			r.Post("/reorder", taskHandler.Reorder)
			r.Get("/{id}", taskHandler.Get)
			r.Patch("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
			r.Post("/{id}/restore", taskHandler.Restore)
			r.With(auth.RequireAdmin).Delete("/{id}/purge", taskHandler.Purge)
		})

		r.Get("/api/events/stream", taskHandler.Stream)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/dashboard", adminHandler.Dashboard)
			r.Get("/users/{id}/tasks", adminHandler.UserTasks)
			r.Get("/tasks", adminHandler.AllTasks)
		})
	})

	return r, memRepo
}

func token(t *testing.T, userID int64, admin bool) string {
	t.Helper()
	raw, err := auth.NewToken(testSecret, userID, admin, time.Hour)
	require.NoError(t, err)
	return raw
}

func doRequest(t *testing.T, h http.Handler, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, r *repo.MemoryRepo, ownerID int64, title, status, priority string) model.Task {
	t.Helper()
	created, err := r.Create(t.Context(), model.Task{
		UserID: ownerID, Title: title, Status: status, Priority: priority,
	})
	require.NoError(t, err)
	return created
}

func TestTaskHandler_Unauthorized(t *testing.T) {
	router, _ := setupRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTaskHandler_ListWithStatistics(t *testing.T) {
	router, memRepo := setupRouter(t)
	bearer := token(t, 7, false)

	seed(t, memRepo, 7, "one", model.StatusPending, model.PriorityLow)
	seed(t, memRepo, 7, "two", model.StatusCompleted, model.PriorityHigh)
	seed(t, memRepo, 8, "foreign", model.StatusPending, model.PriorityLow)

	t.Run("owner scoped with statistics", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/tasks", bearer, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Tasks      []model.Task     `json:"tasks"`
			Statistics model.Statistics `json:"statistics"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		require.Len(t, resp.Tasks, 2)
		for _, task := range resp.Tasks {
			assert.Equal(t, int64(7), task.UserID)
		}
		assert.Equal(t, 2, resp.Statistics.Total)
		assert.Equal(t, 1, resp.Statistics.Completed)
		assert.Equal(t, 1, resp.Statistics.Pending)
	})

	t.Run("status filter", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/tasks?status=completed", bearer, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Tasks []model.Task `json:"tasks"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Tasks, 1)
		assert.Equal(t, "two", resp.Tasks[0].Title)
	})
}

func TestTaskHandler_Create(t *testing.T) {
	router, memRepo := setupRouter(t)
	bearer := token(t, 7, false)

	// Существующий максимум order = 3
	existing := seed(t, memRepo, 7, "existing", model.StatusPending, model.PriorityLow)
	_, err := memRepo.Update(t.Context(), func() model.Task { existing.Order = 3; return existing }())
	require.NoError(t, err)

	t.Run("defaults and next order", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/tasks", bearer, map[string]string{"title": "Buy milk"})
		require.Equal(t, http.StatusCreated, w.Code)

		var task model.Task
		require.NoError(t, json.NewDecoder(w.Body).Decode(&task))
		assert.Equal(t, 4, task.Order, "order = max existing + 1")
		assert.Equal(t, model.StatusPending, task.Status)
		assert.Equal(t, model.PriorityMedium, task.Priority)
		assert.Contains(t, w.Header().Get("Location"), "/api/tasks/")
	})

	t.Run("validation error", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/tasks", bearer, map[string]string{"title": "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/tasks", bearer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTaskHandler_UpdateAndDelete(t *testing.T) {
	router, memRepo := setupRouter(t)
	bearer := token(t, 7, false)

	task := seed(t, memRepo, 7, "original", model.StatusPending, model.PriorityLow)
	foreign := seed(t, memRepo, 8, "foreign", model.StatusPending, model.PriorityLow)

	t.Run("partial update", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", task.ID), bearer,
			map[string]string{"status": model.StatusCompleted})
		require.Equal(t, http.StatusOK, w.Code)

		var updated model.Task
		require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
		assert.Equal(t, model.StatusCompleted, updated.Status)
		assert.Equal(t, "original", updated.Title, "untouched fields survive")
	})

	t.Run("foreign task forbidden", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", foreign.ID), bearer,
			map[string]string{"title": "hijack"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("delete then restore", func(t *testing.T) {
		w := doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), bearer, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), bearer, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/tasks/%d/restore", task.ID), bearer, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), bearer, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTaskHandler_Reorder(t *testing.T) {
	router, memRepo := setupRouter(t)
	bearer := token(t, 7, false)

	a := seed(t, memRepo, 7, "a", model.StatusPending, model.PriorityLow)
	b := seed(t, memRepo, 7, "b", model.StatusPending, model.PriorityLow)
	foreign := seed(t, memRepo, 8, "foreign", model.StatusPending, model.PriorityLow)

	t.Run("foreign id rejects the whole batch", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/tasks/reorder", bearer, map[string]interface{}{
			"tasks": []model.TaskOrder{
				{ID: a.ID, Order: 2},
				{ID: foreign.ID, Order: 1},
			},
		})
		require.Equal(t, http.StatusForbidden, w.Code)

		// Валидные id из той же пачки не тронуты
		current, err := memRepo.Get(t.Context(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, current.Order)
	})

	t.Run("successful reorder", func(t *testing.T) {
		w := doRequest(t, router, http.MethodPost, "/api/tasks/reorder", bearer, map[string]interface{}{
			"tasks": []model.TaskOrder{
				{ID: a.ID, Order: 2},
				{ID: b.ID, Order: 1},
			},
		})
		require.Equal(t, http.StatusNoContent, w.Code)

		tasks, err := memRepo.ListByOwner(t.Context(), 7, model.TaskFilter{})
		require.NoError(t, err)
		assert.Equal(t, b.ID, tasks[0].ID)
	})
}

func TestTaskHandler_PurgeRequiresAdmin(t *testing.T) {
	router, memRepo := setupRouter(t)

	task := seed(t, memRepo, 7, "doomed", model.StatusPending, model.PriorityLow)

	w := doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/tasks/%d/purge", task.ID), token(t, 7, false), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/api/tasks/%d/purge", task.ID), token(t, 1, true), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := memRepo.GetAny(t.Context(), task.ID)
	assert.ErrorIs(t, err, repo.ErrorNotFound)
}

func TestTaskHandler_StreamAccess(t *testing.T) {
	router, _ := setupRouter(t)

	// Чужой приватный топик закрыт
	w := doRequest(t, router, http.MethodGet, "/api/events/stream?topic=user.99", token(t, 7, false), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Админ может слушать любой топик
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?topic=user.99", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 1, true))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestAdminHandler_Dashboard(t *testing.T) {
	router, memRepo := setupRouter(t)

	seed(t, memRepo, 7, "one", model.StatusPending, model.PriorityLow)
	seed(t, memRepo, 7, "two", model.StatusCompleted, model.PriorityHigh)
	seed(t, memRepo, 8, "three", model.StatusPending, model.PriorityMedium)

	t.Run("forbidden for regular user", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/admin/dashboard", token(t, 7, false), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("per-user counts and global stats", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/admin/dashboard", token(t, 1, true), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Users            []repo.UserTaskCount `json:"users"`
			GlobalStatistics model.Statistics     `json:"global_statistics"`
			Pagination       struct {
				Total int `json:"total"`
			} `json:"pagination"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		require.Len(t, resp.Users, 2)
		assert.Equal(t, int64(7), resp.Users[0].UserID)
		assert.Equal(t, 2, resp.Users[0].Total)
		assert.Equal(t, 3, resp.GlobalStatistics.Total)
		assert.Equal(t, 2, resp.Pagination.Total)
	})

	t.Run("per-user task list", func(t *testing.T) {
		w := doRequest(t, router, http.MethodGet, "/api/admin/users/7/tasks", token(t, 1, true), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Tasks []model.Task `json:"tasks"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Len(t, resp.Tasks, 2)
	})
}
