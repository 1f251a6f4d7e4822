package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/event"
	"github.com/BuzzLyutic/taskflow/internal/model"
	"github.com/BuzzLyutic/taskflow/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
)

// TaskAttrs — входные атрибуты новой задачи. Order <= 0 означает
// "назначить в конец списка" в момент записи.
type TaskAttrs struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Order       int
}

// TaskPatch — частичное обновление; nil-поля не трогаются
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Order       *int
}

// TaskService — единственная точка, где мутация хранилища порождает
// событие изменения. Событие публикуется строго после успешной записи;
// ошибка публикации логируется и не роняет мутацию.
type TaskService struct {
	repo    repo.TaskRepository
	channel event.Channel
	logger  *zap.Logger
}

func NewTaskService(repo repo.TaskRepository, channel event.Channel, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:    repo,
		channel: channel,
		logger:  logger,
	}
}

func (s *TaskService) List(ctx context.Context, ownerID int64, filter model.TaskFilter) ([]model.Task, error) {
	return s.repo.ListByOwner(ctx, ownerID, filter)
}

func (s *TaskService) Get(ctx context.Context, ownerID, id int64) (model.Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return t, err
	}
	if t.UserID != ownerID {
		return model.Task{}, ErrForbidden
	}
	return t, nil
}

func (s *TaskService) Create(ctx context.Context, ownerID int64, attrs TaskAttrs) (model.Task, error) {
	t := model.Task{
		UserID:      ownerID,
		Title:       strings.TrimSpace(attrs.Title),
		Description: attrs.Description,
		Status:      attrs.Status,
		Priority:    attrs.Priority,
		Order:       attrs.Order,
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}

	if err := validate(t); err != nil {
		return t, err
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return created, err
	}

	s.publish(ctx, event.Created(created))
	return created, nil
}

func (s *TaskService) Update(ctx context.Context, ownerID, id int64, patch TaskPatch) (model.Task, error) {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return current, err
	}

	if patch.Title != nil {
		current.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.Priority != nil {
		current.Priority = *patch.Priority
	}
	if patch.Order != nil {
		current.Order = *patch.Order
	}

	if err := validate(current); err != nil {
		return current, err
	}

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return updated, err
	}

	s.publish(ctx, event.Updated(updated))
	return updated, nil
}

// Delete мягко удаляет задачу. Событие уходит только после
// подтвержденного удаления — неудачная мутация ничего не анонсирует.
func (s *TaskService) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	ok, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return repo.ErrorNotFound
	}

	s.publish(ctx, event.Deleted(id, ownerID))
	return nil
}

func (s *TaskService) Restore(ctx context.Context, ownerID, id int64) (model.Task, error) {
	t, err := s.repo.GetAny(ctx, id)
	if err != nil {
		return t, err
	}
	if t.UserID != ownerID {
		return model.Task{}, ErrForbidden
	}

	ok, err := s.repo.Restore(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if !ok {
		return model.Task{}, repo.ErrorNotFound
	}

	restored, err := s.repo.Get(ctx, id)
	if err != nil {
		return restored, err
	}

	// Для чужих сессий восстановление выглядит как появление задачи
	s.publish(ctx, event.Created(restored))
	return restored, nil
}

// Purge — необратимое удаление, только для админа (роль проверяет
// HTTP-слой). События нет: скрытая задача и так отсутствует в списках.
func (s *TaskService) Purge(ctx context.Context, id int64) error {
	return s.repo.Purge(ctx, id)
}

// Reorder применяет пакетное переупорядочивание. Владелец передается
// явно и каждая задача пачки проверяется на принадлежность ему до
// первой записи; чужой id отклоняет пачку целиком.
func (s *TaskService) Reorder(ctx context.Context, ownerID int64, orders []model.TaskOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		if o.Order < 0 {
			return fieldError("order", "must be non-negative")
		}
		ids = append(ids, o.ID)
	}

	ok, err := s.repo.OwnedByUser(ctx, ownerID, ids)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}

	if err := s.repo.BulkSetOrder(ctx, ownerID, orders); err != nil {
		return err
	}

	s.publish(ctx, event.Reordered(orders, ownerID))
	return nil
}

func (s *TaskService) Stats(ctx context.Context, ownerID int64) (model.Statistics, error) {
	return s.repo.StatsByOwner(ctx, ownerID)
}

func (s *TaskService) GlobalStats(ctx context.Context) (model.Statistics, error) {
	return s.repo.GlobalStats(ctx)
}

func (s *TaskService) AllTasks(ctx context.Context, page, perPage int) ([]model.Task, int, error) {
	page, perPage = normalizePage(page, perPage)
	return s.repo.ListAll(ctx, page, perPage)
}

func (s *TaskService) UserTaskCounts(ctx context.Context, page, perPage int) ([]repo.UserTaskCount, int, error) {
	page, perPage = normalizePage(page, perPage)
	return s.repo.UserTaskCounts(ctx, page, perPage)
}

func (s *TaskService) UserTasks(ctx context.Context, userID int64) ([]model.Task, error) {
	return s.repo.ListByOwner(ctx, userID, model.TaskFilter{})
}

// publish рассылает событие в приватный топик владельца и (кроме
// reorder) в общий топик. Канал — best-effort: сбой не эскалируется.
func (s *TaskService) publish(ctx context.Context, ev event.Event) {
	topics := []string{event.UserTopic(ev.UserID)}
	if ev.Type != event.TypeReordered {
		topics = append(topics, event.PublicTopic)
	}

	for _, topic := range topics {
		if err := s.channel.Publish(ctx, topic, ev); err != nil {
			s.logger.Warn("failed to publish change event",
				zap.String("topic", topic),
				zap.String("type", string(ev.Type)),
				zap.Int64("user_id", ev.UserID),
				zap.Error(err),
			)
		}
	}
}

func validate(t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return fieldError("title", "must not be empty")
	}
	if len(t.Title) > model.MaxTitleLen {
		return fieldError("title", "too long")
	}
	if len(t.Description) > model.MaxDescriptionLen {
		return fieldError("description", "too long")
	}
	if !model.ValidStatus(t.Status) {
		return fieldError("status", "must be pending or completed")
	}
	if !model.ValidPriority(t.Priority) {
		return fieldError("priority", "must be low, medium or high")
	}
	if t.Order < 0 {
		return fieldError("order", "must be non-negative")
	}
	return nil
}

func fieldError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}

func normalizePage(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 15
	}
	return page, perPage
}
