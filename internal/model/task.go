package model

import (
	"strings"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	MaxTitleLen       = 255
	MaxDescriptionLen = 1000
)

type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ContentEquals сравнивает пользовательские поля задачи, без таймстемпов
func (t Task) ContentEquals(o Task) bool {
	return t.ID == o.ID &&
		t.UserID == o.UserID &&
		t.Title == o.Title &&
		t.Description == o.Description &&
		t.Status == o.Status &&
		t.Priority == o.Priority &&
		t.Order == o.Order
}

// TaskFilter — конъюнктивные фильтры списка задач
type TaskFilter struct {
	Status   string
	Priority string
	Search   string
}

func (f TaskFilter) IsZero() bool {
	return f.Status == "" && f.Priority == "" && f.Search == ""
}

// Matches проверяет задачу по фильтру (поиск — подстрока без учета регистра)
func (f TaskFilter) Matches(t Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), s) &&
			!strings.Contains(strings.ToLower(t.Description), s) {
			return false
		}
	}
	return true
}

// TaskOrder — пара (id, order) для массового переупорядочивания
type TaskOrder struct {
	ID    int64 `json:"id"`
	Order int   `json:"order"`
}

type Statistics struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	HighPriority   int `json:"high_priority"`
	MediumPriority int `json:"medium_priority"`
	LowPriority    int `json:"low_priority"`
}

// ComputeStatistics пересчитывает счетчики по списку задач
func ComputeStatistics(tasks []Task) Statistics {
	s := Statistics{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case StatusCompleted:
			s.Completed++
		case StatusPending:
			s.Pending++
		}
		switch t.Priority {
		case PriorityHigh:
			s.HighPriority++
		case PriorityMedium:
			s.MediumPriority++
		case PriorityLow:
			s.LowPriority++
		}
	}
	return s
}

func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusCompleted
}

func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}
