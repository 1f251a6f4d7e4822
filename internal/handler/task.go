package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/auth"
	"github.com/BuzzLyutic/taskflow/internal/event"
	"github.com/BuzzLyutic/taskflow/internal/model"
	"github.com/BuzzLyutic/taskflow/internal/repo"
	"github.com/BuzzLyutic/taskflow/internal/service"
	"github.com/BuzzLyutic/taskflow/pkg/respond"
)

type TaskHandler struct {
	service *service.TaskService
	channel event.Channel
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, channel event.Channel, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		channel: channel,
		logger:  logger,
	}
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Order       int    `json:"order"`
}

type updateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Order       *int    `json:"order"`
}

type reorderRequest struct {
	Tasks []model.TaskOrder `json:"tasks"`
}

type listResponse struct {
	Tasks      []model.Task     `json:"tasks"`
	Statistics model.Statistics `json:"statistics"`
}

// List отдает задачи владельца вместе с агрегированной статистикой
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	filter := model.TaskFilter{
		Status:   r.URL.Query().Get("status"),
		Priority: r.URL.Query().Get("priority"),
		Search:   r.URL.Query().Get("search"),
	}

	tasks, err := h.service.List(r.Context(), ident.UserID, filter)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), ident.UserID)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, listResponse{Tasks: tasks, Statistics: stats})
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	task, err := h.service.Create(r.Context(), ident.UserID, service.TaskAttrs{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Order:       req.Order,
	})
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/tasks/%d", task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	task, err := h.service.Get(r.Context(), ident.UserID, id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	task, err := h.service.Update(r.Context(), ident.UserID, id, service.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Order:       req.Order,
	})
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	if err := h.service.Delete(r.Context(), ident.UserID, id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.NoContent(w)
}

func (h *TaskHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	task, err := h.service.Restore(r.Context(), ident.UserID, id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, task)
}

// Purge — необратимое удаление; роут закрыт auth.RequireAdmin
func (h *TaskHandler) Purge(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	if err := h.service.Purge(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.NoContent(w)
}

// Reorder применяет пачку (id, order). Чужой id в пачке отклоняет
// запрос целиком, ни один order не меняется.
func (h *TaskHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.service.Reorder(r.Context(), ident.UserID, req.Tasks); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.NoContent(w)
}

// Stream отдает события владельца как server-sent events.
// По умолчанию — приватный топик сессии; ?topic=tasks подписывает на
// общий канал.
func (h *TaskHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = event.UserTopic(ident.UserID)
	}

	access := func(t string) bool {
		return t == event.PublicTopic || t == event.UserTopic(ident.UserID) || ident.Admin
	}

	sub, err := h.channel.Subscribe(r.Context(), topic, access)
	if err != nil {
		if errors.Is(err, event.ErrAccessDenied) {
			respond.Error(w, r, http.StatusForbidden, "access denied")
			return
		}
		h.handleErrors(w, r, err)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, r, http.StatusInternalServerError, "stream unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrForbidden):
		respond.Error(w, r, http.StatusForbidden, "forbidden")
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
