package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"rentledger/models"
	"rentledger/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript снимает блокировку, только если она принадлежит вызывающему
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// WorkerConfig настройки воркера пересчёта
type WorkerConfig struct {
	QueueKey    string
	LockKey     string
	LockTTL     time.Duration
	Interval    time.Duration
	PollTimeout time.Duration
	RetryDelay  time.Duration
}

// ArrearsWorker выполняет пересчёт задолженности вне запроса импорта:
// по заданиям из очереди Redis и периодически по таймеру
type ArrearsWorker struct {
	arrears  *ArrearsService
	runs     *ImportRunService
	client   *redis.Client
	cfg      WorkerConfig
	notifier Notifier
	metrics  *utils.Metrics

	wg sync.WaitGroup
}

// NewArrearsWorker создает новый экземпляр ArrearsWorker.
// Без клиента Redis работает только периодический пересчёт без распределённой блокировки.
func NewArrearsWorker(arrears *ArrearsService, runs *ImportRunService, client *redis.Client, cfg WorkerConfig, notifier Notifier, metrics *utils.Metrics) *ArrearsWorker {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &ArrearsWorker{
		arrears:  arrears,
		runs:     runs,
		client:   client,
		cfg:      cfg,
		notifier: notifier,
		metrics:  metrics,
	}
}

// Start запускает обработку очереди и периодический пересчёт до отмены ctx
func (w *ArrearsWorker) Start(ctx context.Context) {
	if w.client != nil && w.cfg.QueueKey != "" {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(ctx)
		}()
	}

	if w.cfg.Interval > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			ticker := time.NewTicker(w.cfg.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := w.HandleJob(ctx, RecomputeJob{RequestedAt: time.Now().UTC()}); err != nil {
						utils.LogError("Scheduled arrears recompute failed: %v", err)
					}
				}
			}
		}()
	}
	utils.LogInfo("Arrears worker started (queue=%t, interval=%v)", w.client != nil, w.cfg.Interval)
}

// Wait ожидает завершения фоновых горутин после отмены контекста
func (w *ArrearsWorker) Wait() {
	w.wg.Wait()
}

func (w *ArrearsWorker) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := w.client.BRPop(ctx, w.cfg.PollTimeout, w.cfg.QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			utils.LogError("Arrears queue read failed: %v", err)
			w.sleep(ctx, w.cfg.RetryDelay)
			continue
		}

		// BRPOP возвращает пару [ключ, значение]
		var job RecomputeJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			utils.LogError("Dropping malformed recompute job %q: %v", res[1], err)
			continue
		}
		if err := w.HandleJob(ctx, job); err != nil {
			utils.LogError("Recompute job for run %d failed: %v", job.RunID, err)
		}
	}
}

// HandleJob выполняет пересчёт под блокировкой и обновляет статус запуска импорта.
// Занятая блокировка возвращает задание в очередь после паузы.
func (w *ArrearsWorker) HandleJob(ctx context.Context, job RecomputeJob) error {
	var result *RecomputeResult
	acquired, err := w.withLock(ctx, func() error {
		var recomputeErr error
		result, recomputeErr = w.arrears.Recompute(ctx)
		return recomputeErr
	})
	if !acquired && err == nil {
		utils.LogDebug("Recompute lock busy, requeueing run %d", job.RunID)
		return w.requeue(ctx, job)
	}

	if w.metrics != nil && acquired {
		snapshots := 0
		if result != nil {
			snapshots = result.Snapshots
		}
		w.metrics.RecordRecompute(snapshots, err)
	}

	if job.RunID != 0 && acquired && w.runs != nil {
		status := models.ArrearsStatusDone
		if err != nil {
			status = models.ArrearsStatusFailed
		}
		if updErr := w.runs.SetArrearsStatus(ctx, job.RunID, status, err); updErr != nil {
			utils.LogError("Failed to update arrears status of run %d: %v", job.RunID, updErr)
		}
	}

	if err != nil && w.notifier != nil {
		if notifyErr := w.notifier.NotifyRecomputeFailed(job.RunID, err); notifyErr != nil {
			utils.LogError("Failed to send recompute alert: %v", notifyErr)
		}
	}
	return err
}

// withLock выполняет fn под блокировкой Redis SETNX. Без клиента fn выполняется сразу,
// в процессе вызовы всё равно сериализуются мьютексом ArrearsService.
func (w *ArrearsWorker) withLock(ctx context.Context, fn func() error) (bool, error) {
	if w.client == nil || w.cfg.LockKey == "" {
		return true, fn()
	}

	token := uuid.NewString()
	ok, err := w.client.SetNX(ctx, w.cfg.LockKey, token, w.cfg.LockTTL).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// Снимаем блокировку и после отмены ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, w.client, []string{w.cfg.LockKey}, token).Err(); err != nil {
			utils.LogError("Failed to release recompute lock: %v", err)
		}
	}()
	return true, fn()
}

func (w *ArrearsWorker) requeue(ctx context.Context, job RecomputeJob) error {
	if w.client == nil || w.cfg.QueueKey == "" || job.RunID == 0 {
		return nil
	}
	w.sleep(ctx, w.cfg.RetryDelay)
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return w.client.LPush(ctx, w.cfg.QueueKey, payload).Err()
}

func (w *ArrearsWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
