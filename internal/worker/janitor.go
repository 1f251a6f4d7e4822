package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/taskflow/internal/repo"
)

// Janitor по расписанию окончательно удаляет задачи, мягко удаленные
// раньше окна хранения.
type Janitor struct {
	repo      repo.TaskRepository
	logger    *zap.Logger
	cron      *cron.Cron
	retention time.Duration
}

func NewJanitor(r repo.TaskRepository, logger *zap.Logger, schedule string, retention time.Duration) (*Janitor, error) {
	j := &Janitor{
		repo:      r,
		logger:    logger,
		cron:      cron.New(),
		retention: retention,
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		if err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error("cleanup run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.logger.Info("Starting cleanup janitor",
		zap.Duration("retention", j.retention),
	)
	j.cron.Start()
}

func (j *Janitor) Stop() {
	j.logger.Info("Stopping cleanup janitor...")
	<-j.cron.Stop().Done() // Ждем завершения текущего прогона
	j.logger.Info("Cleanup janitor stopped")
}

// RunOnce выполняет один проход очистки
func (j *Janitor) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)

	purged, err := j.repo.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	if purged > 0 {
		j.logger.Info("Purged expired tasks",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
