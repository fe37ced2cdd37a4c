package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentledger/models"
	"rentledger/utils"

	"github.com/redis/go-redis/v9"
)

// RecomputeDispatcher запускает пересчёт задолженности после импорта
type RecomputeDispatcher interface {
	Dispatch(ctx context.Context, runID uint) (models.ArrearsStatus, error)
}

// RecomputeJob задание пересчёта в очереди Redis
type RecomputeJob struct {
	RunID       uint      `json:"runId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// InlineDispatcher выполняет пересчёт синхронно, до завершения импорта
type InlineDispatcher struct {
	arrears *ArrearsService
	metrics *utils.Metrics
}

// NewInlineDispatcher создает новый экземпляр InlineDispatcher
func NewInlineDispatcher(arrears *ArrearsService, metrics *utils.Metrics) *InlineDispatcher {
	return &InlineDispatcher{arrears: arrears, metrics: metrics}
}

// Dispatch выполняет пересчёт немедленно
func (d *InlineDispatcher) Dispatch(ctx context.Context, runID uint) (models.ArrearsStatus, error) {
	res, err := d.arrears.Recompute(ctx)
	if d.metrics != nil {
		snapshots := 0
		if res != nil {
			snapshots = res.Snapshots
		}
		d.metrics.RecordRecompute(snapshots, err)
	}
	if err != nil {
		return models.ArrearsStatusFailed, err
	}
	return models.ArrearsStatusDone, nil
}

// RedisDispatcher ставит задание пересчёта в очередь Redis для ArrearsWorker
type RedisDispatcher struct {
	client *redis.Client
	key    string
}

// NewRedisDispatcher создает новый экземпляр RedisDispatcher
func NewRedisDispatcher(client *redis.Client, key string) *RedisDispatcher {
	return &RedisDispatcher{client: client, key: key}
}

// Dispatch публикует задание и сразу возвращает статус queued
func (d *RedisDispatcher) Dispatch(ctx context.Context, runID uint) (models.ArrearsStatus, error) {
	payload, err := json.Marshal(RecomputeJob{RunID: runID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return models.ArrearsStatusFailed, err
	}
	if err := d.client.LPush(ctx, d.key, payload).Err(); err != nil {
		return models.ArrearsStatusFailed, fmt.Errorf("ошибка постановки пересчёта в очередь: %w", err)
	}
	return models.ArrearsStatusQueued, nil
}
