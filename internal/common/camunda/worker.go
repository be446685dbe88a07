package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"support-agent/internal/common/logger"
)

type WorkerConfig struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// Worker is one open job subscription.
type Worker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// StartWorker opens a job worker for cfg.TaskType that hands every job to
// handler. Handlers complete or fail their own jobs.
func StartWorker(client zbc.Client, cfg WorkerConfig, handler worker.JobHandler, log logger.Logger) *Worker {
	if cfg.MaxJobsActive <= 0 {
		cfg.MaxJobsActive = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	jw := client.NewJobWorker().
		JobType(cfg.TaskType).
		Handler(handler).
		MaxJobsActive(cfg.MaxJobsActive).
		Timeout(cfg.Timeout).
		Open()

	w := &Worker{
		worker:   jw,
		logger:   log.WithFields(map[string]interface{}{"taskType": cfg.TaskType}),
		taskType: cfg.TaskType,
	}
	w.logger.Info("worker started", map[string]interface{}{
		"maxJobsActive": cfg.MaxJobsActive,
		"timeout":       cfg.Timeout.String(),
	})
	return w
}

// Stop closes the subscription and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
