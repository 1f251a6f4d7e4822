package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/taskflow/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

const taskColumns = `id, user_id, title, description, status, priority, "order", created_at, updated_at, deleted_at`

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Order, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	return t, err
}

func (r *TaskRepo) ListByOwner(ctx context.Context, ownerID int64, filter model.TaskFilter) ([]model.Task, error) {
	// Сортировка по order, id — стабильный порядок при дублях order
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR priority = $3)
		  AND ($4 = '' OR title ILIKE '%' || $4 || '%' OR description ILIKE '%' || $4 || '%')
		ORDER BY "order" ASC, id ASC
	`, ownerID, filter.Status, filter.Priority, filter.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *TaskRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1 AND deleted_at IS NULL
	`, id))

	if err == pgx.ErrNoRows {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TaskRepo) GetAny(ctx context.Context, id int64) (model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))

	if err == pgx.ErrNoRows {
		return t, ErrorNotFound
	}
	return t, err
}

// Create вставляет задачу. При Order <= 0 значение вычисляется в момент
// записи: max("order") владельца + 1, для пустого списка — 1.
func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	created, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO tasks (user_id, title, description, status, priority, "order")
		VALUES ($1, $2, $3, $4, $5, CASE
			WHEN $6 > 0 THEN $6
			ELSE (SELECT COALESCE(MAX("order"), 0) + 1 FROM tasks WHERE user_id = $1 AND deleted_at IS NULL)
		END)
		RETURNING `+taskColumns+`
	`, t.UserID, t.Title, t.Description, t.Status, t.Priority, t.Order))
	return created, r.mapError(err)
}

func (r *TaskRepo) Update(ctx context.Context, t model.Task) (model.Task, error) {
	updated, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, priority = $5, "order" = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+taskColumns+`
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.Order))

	if err == pgx.ErrNoRows {
		return updated, ErrorNotFound
	}
	return updated, r.mapError(err)
}

func (r *TaskRepo) SoftDelete(ctx context.Context, id int64) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE tasks SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *TaskRepo) Restore(ctx context.Context, id int64) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE tasks SET deleted_at = NULL, updated_at = now() WHERE id = $1 AND deleted_at IS NOT NULL
	`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *TaskRepo) Purge(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

// BulkSetOrder переписывает order для пачки задач одним батчем.
// Уникальность и непрерывность значений не проверяются — за целевой
// порядок отвечает вызывающий.
func (r *TaskRepo) BulkSetOrder(ctx context.Context, ownerID int64, orders []model.TaskOrder) error {
	if len(orders) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, o := range orders {
		b.Queue(`UPDATE tasks SET "order" = $2, updated_at = now() WHERE id = $1 AND user_id = $3`,
			o.ID, o.Order, ownerID)
	}

	// Пачка применяется целиком: конкурирующий reorder не должен
	// оставить смесь двух перестановок
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, b)
	for range orders {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// OwnedByUser проверяет, что каждый id из пачки — живая задача владельца
func (r *TaskRepo) OwnedByUser(ctx context.Context, ownerID int64, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE id = ANY($2::bigint[]) AND user_id = $1 AND deleted_at IS NULL
	`, ownerID, ids).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == len(ids), nil
}

func (r *TaskRepo) StatsByOwner(ctx context.Context, ownerID int64) (model.Statistics, error) {
	return r.stats(ctx, ownerID)
}

func (r *TaskRepo) GlobalStats(ctx context.Context) (model.Statistics, error) {
	return r.stats(ctx, 0)
}

func (r *TaskRepo) stats(ctx context.Context, ownerID int64) (model.Statistics, error) {
	var s model.Statistics
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE priority = 'high'),
			COUNT(*) FILTER (WHERE priority = 'medium'),
			COUNT(*) FILTER (WHERE priority = 'low')
		FROM tasks
		WHERE deleted_at IS NULL AND ($1 = 0 OR user_id = $1)
	`, ownerID).Scan(
		&s.Total, &s.Completed, &s.Pending,
		&s.HighPriority, &s.MediumPriority, &s.LowPriority,
	)
	return s, err
}

func (r *TaskRepo) ListAll(ctx context.Context, page, perPage int) ([]model.Task, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM tasks WHERE deleted_at IS NULL",
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE deleted_at IS NULL
		ORDER BY user_id ASC, "order" ASC, id ASC
		LIMIT $1 OFFSET $2
	`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks, err := collectTasks(rows)
	return tasks, total, err
}

func (r *TaskRepo) UserTaskCounts(ctx context.Context, page, perPage int) ([]UserTaskCount, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT user_id) FROM tasks WHERE deleted_at IS NULL",
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM tasks
		WHERE deleted_at IS NULL
		GROUP BY user_id
		ORDER BY user_id ASC
		LIMIT $1 OFFSET $2
	`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make([]UserTaskCount, 0, perPage)
	for rows.Next() {
		var c UserTaskCount
		if err := rows.Scan(&c.UserID, &c.Total, &c.Completed, &c.Pending); err != nil {
			return nil, 0, err
		}
		counts = append(counts, c)
	}
	return counts, total, rows.Err()
}

func (r *TaskRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM tasks WHERE deleted_at IS NOT NULL AND deleted_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func collectTasks(rows pgx.Rows) ([]model.Task, error) {
	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ErrorConflict
		}
	}
	return err
}
