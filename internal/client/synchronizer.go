package client

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/event"
	"github.com/BuzzLyutic/taskflow/internal/model"
)

// Synchronizer держит локальную копию списка задач одной сессии.
// Копия не является источником истины: каждое входящее событие
// авторитетно для полей, которые оно несет. Оптимистичные локальные
// мутации применяются сразу и возвращают revert для отката при
// неудачном запросе.
type Synchronizer struct {
	ownerID int64
	logger  *zap.Logger

	mu     sync.Mutex
	tasks  []model.Task
	stats  model.Statistics
	filter model.TaskFilter
}

func NewSynchronizer(ownerID int64, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		ownerID: ownerID,
		logger:  logger,
		tasks:   make([]model.Task, 0),
	}
}

// Reset заменяет состояние полным снимком сервера (начальная загрузка
// или рефетч после переподключения). Задачам без order назначается
// позиция по индексу.
func (s *Synchronizer) Reset(tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make([]model.Task, len(tasks))
	copy(s.tasks, tasks)
	for i := range s.tasks {
		if s.tasks[i].Order <= 0 {
			s.tasks[i].Order = i + 1
		}
	}
	s.finishLocked()
}

func (s *Synchronizer) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *Synchronizer) Statistics() model.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Synchronizer) SetFilter(f model.TaskFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

// Filtered — чистая проекция для отображения; список не мутирует
func (s *Synchronizer) Filtered() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if s.filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// Run прокачивает события подписки до закрытия канала или контекста
func (s *Synchronizer) Run(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.Apply(ev)
		}
	}
}

// Apply применяет входящее событие к локальному состоянию и сообщает,
// изменилось ли оно. События чужих владельцев (шум общего топика)
// игнорируются; повторная доставка любого события — no-op.
func (s *Synchronizer) Apply(ev event.Event) bool {
	if ev.UserID != s.ownerID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	switch ev.Type {
	case event.TypeCreated:
		if ev.Task != nil {
			changed = s.applyCreatedLocked(*ev.Task)
		}
	case event.TypeUpdated:
		if ev.Task != nil {
			changed = s.applyUpdatedLocked(*ev.Task)
		}
	case event.TypeDeleted:
		changed = s.removeLocked(ev.TaskID)
	case event.TypeReordered:
		changed = s.applyReorderedLocked(ev.Orders)
	default:
		s.logger.Warn("unknown event type", zap.String("type", string(ev.Type)))
	}

	if changed {
		s.finishLocked()
	}
	return changed
}

func (s *Synchronizer) applyCreatedLocked(t model.Task) bool {
	if s.indexOfLocked(t.ID) != -1 {
		// Эхо собственного создания — уже в списке
		return false
	}
	if t.Order <= 0 {
		t.Order = s.maxOrderLocked() + 1
	}
	s.tasks = append(s.tasks, t)
	return true
}

func (s *Synchronizer) applyUpdatedLocked(t model.Task) bool {
	i := s.indexOfLocked(t.ID)
	if i == -1 {
		// Пропущенное создание — вставляем как новую
		s.tasks = append(s.tasks, t)
		return true
	}
	if s.tasks[i].ContentEquals(t) {
		return false // Идентичный снимок — без лишнего ререндера
	}
	s.tasks[i] = t
	return true
}

func (s *Synchronizer) applyReorderedLocked(orders []model.TaskOrder) bool {
	changed := false
	for _, o := range orders {
		i := s.indexOfLocked(o.ID)
		if i == -1 {
			continue // Отсутствующие задачи не вставляются
		}
		if s.tasks[i].Order != o.Order {
			s.tasks[i].Order = o.Order
			changed = true
		}
	}
	return changed
}

// ApplyCreate — оптимистичная вставка из синхронного ответа сервера
func (s *Synchronizer) ApplyCreate(t model.Task) (revert func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revert = s.snapshotLocked()
	if t.Order <= 0 {
		t.Order = s.maxOrderLocked() + 1
	}
	if i := s.indexOfLocked(t.ID); i != -1 {
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
	}
	s.finishLocked()
	return revert
}

func (s *Synchronizer) ApplyUpdate(t model.Task) (revert func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revert = s.snapshotLocked()
	if i := s.indexOfLocked(t.ID); i != -1 {
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
	}
	s.finishLocked()
	return revert
}

func (s *Synchronizer) ApplyDelete(id int64) (revert func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revert = s.snapshotLocked()
	if s.removeLocked(id) {
		s.finishLocked()
	}
	return revert
}

func (s *Synchronizer) ApplyReorder(orders []model.TaskOrder) (revert func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revert = s.snapshotLocked()
	if s.applyReorderedLocked(orders) {
		s.finishLocked()
	}
	return revert
}

func (s *Synchronizer) removeLocked(id int64) bool {
	i := s.indexOfLocked(id)
	if i == -1 {
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return true
}

func (s *Synchronizer) indexOfLocked(id int64) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) maxOrderLocked() int {
	max := 0
	for _, t := range s.tasks {
		if t.Order > max {
			max = t.Order
		}
	}
	return max
}

// snapshotLocked готовит откат к текущему состоянию
func (s *Synchronizer) snapshotLocked() func() {
	snap := make([]model.Task, len(s.tasks))
	copy(snap, s.tasks)
	stats := s.stats

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tasks = snap
		s.stats = stats
	}
}

// finishLocked — инвариант после каждой мутации: список отсортирован
// по order (стабильно по id), статистика пересчитана из списка
func (s *Synchronizer) finishLocked() {
	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].Order != s.tasks[j].Order {
			return s.tasks[i].Order < s.tasks[j].Order
		}
		return s.tasks[i].ID < s.tasks[j].ID
	})
	s.stats = model.ComputeStatistics(s.tasks)
}
