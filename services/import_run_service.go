package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// ErrImportRunNotFound возвращается, когда запуск импорта не найден
var ErrImportRunNotFound = errors.New("запуск импорта не найден")

// ImportRunService ведёт аудиторские записи запусков импорта
type ImportRunService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewImportRunService создает новый экземпляр ImportRunService
func NewImportRunService(db *gorm.DB) *ImportRunService {
	return &ImportRunService{db: db, now: time.Now}
}

// Start создаёт запись в статусе processing до начала чтения файла
func (s *ImportRunService) Start(ctx context.Context, sourceFile string) (*models.ImportRun, error) {
	run := &models.ImportRun{
		PublicID:      uuid.NewString(),
		SourceFile:    sourceFile,
		Status:        models.ImportRunStatusProcessing,
		ArrearsStatus: models.ArrearsStatusPending,
		CreatedAt:     s.now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании записи импорта: %w", err)
	}
	return run, nil
}

// Finish записывает итоговые счётчики, статус, время окончания и усечённый список ошибок
func (s *ImportRunService) Finish(ctx context.Context, run *models.ImportRun, stats *ImportStats) error {
	status := models.ImportRunStatusCompleted
	if stats.RowsFailed > 0 {
		status = models.ImportRunStatusCompletedWithErrors
	}

	detail := ""
	if len(stats.Errors) > 0 {
		raw, err := json.Marshal(stats.Errors)
		if err != nil {
			return fmt.Errorf("ошибка при сериализации ошибок импорта: %w", err)
		}
		detail = string(raw)
	}

	finishedAt := s.now()
	updates := map[string]interface{}{
		"status":          string(status),
		"rows_total":      stats.RowsTotal,
		"rows_inserted":   stats.RowsInserted,
		"rows_duplicated": stats.RowsDuplicated,
		"rows_failed":     stats.RowsFailed,
		"arrears_status":  string(stats.ArrearsStatus),
		"arrears_error":   stats.ArrearsError,
		"error_detail":    detail,
		"finished_at":     finishedAt,
	}
	if err := s.db.WithContext(ctx).Model(&models.ImportRun{}).
		Where("id = ?", run.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("ошибка при завершении записи импорта: %w", err)
	}

	run.Status = status
	run.RowsTotal = stats.RowsTotal
	run.RowsInserted = stats.RowsInserted
	run.RowsDuplicated = stats.RowsDuplicated
	run.RowsFailed = stats.RowsFailed
	run.ArrearsStatus = stats.ArrearsStatus
	run.ArrearsError = stats.ArrearsError
	run.ErrorDetail = detail
	run.FinishedAt = &finishedAt
	return nil
}

// SetArrearsStatus обновляет состояние пересчёта для запуска, обработанного воркером
func (s *ImportRunService) SetArrearsStatus(ctx context.Context, id uint, status models.ArrearsStatus, recomputeErr error) error {
	message := ""
	if recomputeErr != nil {
		message = recomputeErr.Error()
	}
	res := s.db.WithContext(ctx).Model(&models.ImportRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"arrears_status": string(status),
			"arrears_error":  message,
		})
	if res.Error != nil {
		return fmt.Errorf("ошибка при обновлении статуса пересчёта: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrImportRunNotFound
	}
	return nil
}

// Get возвращает запуск импорта по идентификатору
func (s *ImportRunService) Get(ctx context.Context, id uint) (*models.ImportRun, error) {
	var run models.ImportRun
	if err := s.db.WithContext(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImportRunNotFound
		}
		return nil, fmt.Errorf("ошибка при получении запуска импорта: %w", err)
	}
	return &run, nil
}

// GetByPublicID возвращает запуск импорта по публичному UUID
func (s *ImportRunService) GetByPublicID(ctx context.Context, publicID string) (*models.ImportRun, error) {
	var run models.ImportRun
	if err := s.db.WithContext(ctx).Where("public_id = ?", publicID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImportRunNotFound
		}
		return nil, fmt.Errorf("ошибка при получении запуска импорта: %w", err)
	}
	return &run, nil
}

// ListRecent возвращает последние запуски, новые первыми.
// Лимит ограничен сверху 1000, неположительный лимит заменяется на 50.
func (s *ImportRunService) ListRecent(ctx context.Context, limit int) ([]models.ImportRun, error) {
	limit = clampLimit(limit)

	var runs []models.ImportRun
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении списка запусков: %w", err)
	}
	return runs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
