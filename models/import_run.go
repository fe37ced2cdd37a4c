package models

import (
	"time"
)

// ImportRunStatus представляет статус запуска импорта
type ImportRunStatus string

const (
	ImportRunStatusProcessing          ImportRunStatus = "processing"
	ImportRunStatusCompleted           ImportRunStatus = "completed"
	ImportRunStatusCompletedWithErrors ImportRunStatus = "completed_with_errors"
)

// ArrearsStatus состояние пересчёта задолженности после импорта
type ArrearsStatus string

const (
	ArrearsStatusPending ArrearsStatus = "pending"
	ArrearsStatusDone    ArrearsStatus = "done"
	ArrearsStatusQueued  ArrearsStatus = "queued"
	ArrearsStatusFailed  ArrearsStatus = "failed"
)

// ImportRun аудиторская запись одного запуска импорта.
// Создаётся до чтения файла, поэтому сбой посреди пакета оставляет след в статусе processing.
type ImportRun struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	PublicID       string          `gorm:"column:public_id;uniqueIndex;not null;size:36" json:"publicId"`
	SourceFile     string          `gorm:"column:source_file;not null;size:255" json:"sourceFile"`
	Status         ImportRunStatus `gorm:"column:status;type:varchar(30);not null;default:'processing'" json:"status"`
	RowsTotal      int             `gorm:"column:rows_total;not null;default:0" json:"rowsTotal"`
	RowsInserted   int             `gorm:"column:rows_inserted;not null;default:0" json:"rowsInserted"`
	RowsDuplicated int             `gorm:"column:rows_duplicated;not null;default:0" json:"rowsDuplicated"`
	RowsFailed     int             `gorm:"column:rows_failed;not null;default:0" json:"rowsFailed"`
	ArrearsStatus  ArrearsStatus   `gorm:"column:arrears_status;type:varchar(20);not null;default:'pending'" json:"arrearsStatus"`
	ArrearsError   string          `gorm:"column:arrears_error;type:text" json:"arrearsError,omitempty"`
	ErrorDetail    string          `gorm:"column:error_detail;type:text" json:"errorDetail,omitempty"` // JSON усечённого списка ошибок строк
	CreatedAt      time.Time       `gorm:"column:created_at;index" json:"createdAt"`
	FinishedAt     *time.Time      `gorm:"column:finished_at" json:"finishedAt,omitempty"`
}

// TableName возвращает имя таблицы для модели ImportRun
func (ImportRun) TableName() string {
	return "import_runs"
}
