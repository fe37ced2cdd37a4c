package models

import (
	"time"
)

// PressureLevel уровень давления по задолженности
type PressureLevel string

const (
	PressureLevelNone     PressureLevel = "none"
	PressureLevelReminder PressureLevel = "reminder"
	PressureLevelPressure PressureLevel = "pressure"
)

// PaymentStatusYear годовой срез начислено/оплачено/долг по договору.
// Полностью пересчитываемый кэш, вручную не редактируется.
type PaymentStatusYear struct {
	ID            uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	ContractID    uint          `gorm:"column:contract_id;not null;uniqueIndex:idx_psy_contract_year" json:"contractId"`
	Contract      Contract      `gorm:"foreignKey:ContractID;references:ID" json:"-"`
	Year          int           `gorm:"column:year;not null;uniqueIndex:idx_psy_contract_year" json:"year"`
	DueAmount     int64         `gorm:"column:due_amount;not null;default:0" json:"dueAmount"`
	PaidAmount    int64         `gorm:"column:paid_amount;not null;default:0" json:"paidAmount"`
	ArrearsAmount int64         `gorm:"column:arrears_amount;not null;default:0" json:"arrearsAmount"`
	ArrearsMonths int           `gorm:"column:arrears_months;not null;default:0" json:"arrearsMonths"`
	PressureLevel PressureLevel `gorm:"column:pressure_level;type:varchar(20);not null;default:'none';index" json:"pressureLevel"`
	LastUpdate    time.Time     `gorm:"column:last_update;not null" json:"lastUpdate"`
}

// TableName возвращает имя таблицы для модели PaymentStatusYear
func (PaymentStatusYear) TableName() string {
	return "payment_status_years"
}
