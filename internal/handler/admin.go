package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/model"
	"github.com/BuzzLyutic/taskflow/internal/repo"
	"github.com/BuzzLyutic/taskflow/internal/service"
	"github.com/BuzzLyutic/taskflow/pkg/respond"
)

// AdminHandler — read-only агрегаты для админской панели
type AdminHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewAdminHandler(srv *service.TaskService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: srv,
		logger:  logger,
	}
}

type pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

func newPagination(page, perPage, total int) pagination {
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	return pagination{
		CurrentPage: page,
		LastPage:    last,
		PerPage:     perPage,
		Total:       total,
	}
}

type dashboardResponse struct {
	Users            []repo.UserTaskCount `json:"users"`
	Pagination       pagination           `json:"pagination"`
	GlobalStatistics model.Statistics     `json:"global_statistics"`
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)

	users, total, err := h.service.UserTaskCounts(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	global, err := h.service.GlobalStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, dashboardResponse{
		Users:            users,
		Pagination:       newPagination(page, perPage, total),
		GlobalStatistics: global,
	})
}

func (h *AdminHandler) UserTasks(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	tasks, err := h.service.UserTasks(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, map[string]interface{}{
		"user_id":    userID,
		"tasks":      tasks,
		"statistics": stats,
	})
}

func (h *AdminHandler) AllTasks(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)

	tasks, total, err := h.service.AllTasks(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, map[string]interface{}{
		"tasks":      tasks,
		"pagination": newPagination(page, perPage, total),
	})
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("admin query failed", zap.Error(err))
	respond.Error(w, r, http.StatusInternalServerError, "internal error")
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 15
	}
	return page, perPage
}
