package repo

import (
	"context"
	"time"

	"github.com/BuzzLyutic/taskflow/internal/model"
)

// UserTaskCount — агрегаты по владельцу для админской панели
type UserTaskCount struct {
	UserID    int64 `json:"user_id"`
	Total     int   `json:"tasks_count"`
	Completed int   `json:"completed_tasks_count"`
	Pending   int   `json:"pending_tasks_count"`
}

// TaskRepository определяет интерфейс для работы с задачами.
// Проверка владения задачей — обязанность вызывающего (сервиса).
type TaskRepository interface {
	ListByOwner(ctx context.Context, ownerID int64, filter model.TaskFilter) ([]model.Task, error)
	Get(ctx context.Context, id int64) (model.Task, error)
	GetAny(ctx context.Context, id int64) (model.Task, error) // включая мягко удаленные
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Update(ctx context.Context, t model.Task) (model.Task, error)
	SoftDelete(ctx context.Context, id int64) (bool, error)
	Restore(ctx context.Context, id int64) (bool, error)
	Purge(ctx context.Context, id int64) error
	BulkSetOrder(ctx context.Context, ownerID int64, orders []model.TaskOrder) error
	OwnedByUser(ctx context.Context, ownerID int64, ids []int64) (bool, error)
	StatsByOwner(ctx context.Context, ownerID int64) (model.Statistics, error)
	GlobalStats(ctx context.Context) (model.Statistics, error)
	ListAll(ctx context.Context, page, perPage int) ([]model.Task, int, error)
	UserTaskCounts(ctx context.Context, page, perPage int) ([]UserTaskCount, int, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
