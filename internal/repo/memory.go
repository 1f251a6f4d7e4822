package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BuzzLyutic/taskflow/internal/model"
)

// MemoryRepo — потокобезопасная in-memory реализация TaskRepository.
// Повторяет семантику TaskRepo (назначение order, сортировка, мягкое
// удаление); используется в тестах вместо живой БД.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]model.Task
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tasks: make(map[int64]model.Task),
	}
}

func (r *MemoryRepo) ListByOwner(_ context.Context, ownerID int64, filter model.TaskFilter) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := make([]model.Task, 0)
	for _, t := range r.tasks {
		if t.UserID != ownerID || t.DeletedAt != nil {
			continue
		}
		if !filter.Matches(t) {
			continue
		}
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks, nil
}

func (r *MemoryRepo) Get(_ context.Context, id int64) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.DeletedAt != nil {
		return model.Task{}, ErrorNotFound
	}
	return t, nil
}

func (r *MemoryRepo) GetAny(_ context.Context, id int64) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrorNotFound
	}
	return t, nil
}

func (r *MemoryRepo) Create(_ context.Context, t model.Task) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Order <= 0 {
		max := 0
		for _, existing := range r.tasks {
			if existing.UserID == t.UserID && existing.DeletedAt == nil && existing.Order > max {
				max = existing.Order
			}
		}
		t.Order = max + 1
	}

	r.nextID++
	t.ID = r.nextID
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.DeletedAt = nil
	r.tasks[t.ID] = t
	return t, nil
}

func (r *MemoryRepo) Update(_ context.Context, t model.Task) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tasks[t.ID]
	if !ok || current.DeletedAt != nil {
		return model.Task{}, ErrorNotFound
	}

	current.Title = t.Title
	current.Description = t.Description
	current.Status = t.Status
	current.Priority = t.Priority
	current.Order = t.Order
	current.UpdatedAt = time.Now()
	r.tasks[current.ID] = current
	return current, nil
}

func (r *MemoryRepo) SoftDelete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.DeletedAt = &now
	r.tasks[id] = t
	return true, nil
}

func (r *MemoryRepo) Restore(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.DeletedAt == nil {
		return false, nil
	}
	t.DeletedAt = nil
	t.UpdatedAt = time.Now()
	r.tasks[id] = t
	return true, nil
}

func (r *MemoryRepo) Purge(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrorNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepo) BulkSetOrder(_ context.Context, ownerID int64, orders []model.TaskOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range orders {
		t, ok := r.tasks[o.ID]
		if !ok || t.UserID != ownerID {
			continue
		}
		t.Order = o.Order
		t.UpdatedAt = time.Now()
		r.tasks[o.ID] = t
	}
	return nil
}

func (r *MemoryRepo) OwnedByUser(_ context.Context, ownerID int64, ids []int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		t, ok := r.tasks[id]
		if !ok || t.DeletedAt != nil || t.UserID != ownerID {
			return false, nil
		}
	}
	return true, nil
}

func (r *MemoryRepo) StatsByOwner(ctx context.Context, ownerID int64) (model.Statistics, error) {
	tasks, err := r.ListByOwner(ctx, ownerID, model.TaskFilter{})
	if err != nil {
		return model.Statistics{}, err
	}
	return model.ComputeStatistics(tasks), nil
}

func (r *MemoryRepo) GlobalStats(_ context.Context) (model.Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.DeletedAt == nil {
			live = append(live, t)
		}
	}
	return model.ComputeStatistics(live), nil
}

func (r *MemoryRepo) ListAll(_ context.Context, page, perPage int) ([]model.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if t.DeletedAt == nil {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UserID != all[j].UserID {
			return all[i].UserID < all[j].UserID
		}
		if all[i].Order != all[j].Order {
			return all[i].Order < all[j].Order
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	return paginate(all, page, perPage), total, nil
}

func (r *MemoryRepo) UserTaskCounts(_ context.Context, page, perPage int) ([]UserTaskCount, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser := make(map[int64]*UserTaskCount)
	for _, t := range r.tasks {
		if t.DeletedAt != nil {
			continue
		}
		c, ok := byUser[t.UserID]
		if !ok {
			c = &UserTaskCount{UserID: t.UserID}
			byUser[t.UserID] = c
		}
		c.Total++
		switch t.Status {
		case model.StatusCompleted:
			c.Completed++
		case model.StatusPending:
			c.Pending++
		}
	}

	counts := make([]UserTaskCount, 0, len(byUser))
	for _, c := range byUser {
		counts = append(counts, *c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].UserID < counts[j].UserID })

	total := len(counts)
	return paginate(counts, page, perPage), total, nil
}

func (r *MemoryRepo) PurgeDeletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, t := range r.tasks {
		if t.DeletedAt != nil && t.DeletedAt.Before(cutoff) {
			delete(r.tasks, id)
			purged++
		}
	}
	return purged, nil
}

func sortTasks(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func paginate[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
