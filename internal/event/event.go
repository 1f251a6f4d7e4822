package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/taskflow/internal/model"
)

type Type string

const (
	TypeCreated   Type = "task.created"
	TypeUpdated   Type = "task.updated"
	TypeDeleted   Type = "task.deleted"
	TypeReordered Type = "tasks.reordered"
)

// PublicTopic — общий канал без фильтрации по владельцу
const PublicTopic = "tasks"

// UserTopic — приватный канал владельца
func UserTopic(userID int64) string {
	return fmt.Sprintf("user.%d", userID)
}

// Event несет достаточно данных, чтобы получатель применил изменение
// без дополнительного запроса к серверу.
type Event struct {
	ID     string            `json:"id"`
	Type   Type              `json:"type"`
	UserID int64             `json:"user_id"`
	Task   *model.Task       `json:"task,omitempty"`
	TaskID int64             `json:"task_id,omitempty"`
	Orders []model.TaskOrder `json:"tasks,omitempty"`
	Time   int64             `json:"time"`
}

func Created(t model.Task) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   TypeCreated,
		UserID: t.UserID,
		Task:   &t,
		Time:   time.Now().Unix(),
	}
}

func Updated(t model.Task) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   TypeUpdated,
		UserID: t.UserID,
		Task:   &t,
		Time:   time.Now().Unix(),
	}
}

func Deleted(taskID, userID int64) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   TypeDeleted,
		UserID: userID,
		TaskID: taskID,
		Time:   time.Now().Unix(),
	}
}

func Reordered(orders []model.TaskOrder, userID int64) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   TypeReordered,
		UserID: userID,
		Orders: orders,
		Time:   time.Now().Unix(),
	}
}
