package models

import (
	"time"
)

// PaymentMode представляет канонический способ оплаты
type PaymentMode string

const (
	PaymentModeCash        PaymentMode = "cash"         // Наличные
	PaymentModeOrangeMoney PaymentMode = "orange_money" // Мобильные деньги
	PaymentModeMarchand    PaymentMode = "marchand"     // Оплата через торговую точку
	PaymentModeVirement    PaymentMode = "virement"     // Банковский перевод
	PaymentModeOther       PaymentMode = "autre"
)

// Payment представляет неизменяемый факт оплаты аренды.
// Записи только добавляются, RawHash глобально уникален.
type Payment struct {
	ID          uint        `gorm:"primaryKey;autoIncrement"`
	ExternalRef *string     `gorm:"column:external_ref;size:100"`
	TenantID    uint        `gorm:"column:tenant_id;not null;index"`
	OwnerID     uint        `gorm:"column:owner_id;not null"`
	SiteID      uint        `gorm:"column:site_id;not null"`
	ContractID  uint        `gorm:"column:contract_id;not null;index"`
	Contract    Contract    `gorm:"foreignKey:ContractID;references:ID"`
	PaidAt      time.Time   `gorm:"column:paid_at;not null;index"`
	Amount      int64       `gorm:"column:amount;not null"`
	Mode        PaymentMode `gorm:"column:mode;type:varchar(20);not null"`
	Allocation  string      `gorm:"column:allocation;size:255"`
	Channel     string      `gorm:"column:channel;size:100"`
	Comment     string      `gorm:"column:comment;type:text"`
	RawHash     string      `gorm:"column:raw_hash;uniqueIndex;not null;size:64"`
	SourceFile  string      `gorm:"column:source_file;not null;size:255"`
	ImportRunID *uint       `gorm:"column:import_run_id;index"`
	CreatedAt   time.Time   `gorm:"column:created_at"`
}

// TableName возвращает имя таблицы для модели Payment
func (Payment) TableName() string {
	return "payments"
}
