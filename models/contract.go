package models

import (
	"time"
)

// ContractStatus представляет статус договора аренды
type ContractStatus string

const (
	ContractStatusActive     ContractStatus = "active"
	ContractStatusTerminated ContractStatus = "terminated"
	ContractStatusSuspended  ContractStatus = "suspended"
)

// Periodicity представляет периодичность оплаты по договору
type Periodicity string

const (
	PeriodicityMonthly    Periodicity = "monthly"
	PeriodicityQuarterly  Periodicity = "quarterly"
	PeriodicitySemiannual Periodicity = "semiannual"
	PeriodicityAnnual     Periodicity = "annual"
)

// Contract представляет договор аренды
type Contract struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"`
	TenantID    uint           `gorm:"column:tenant_id;not null;index:idx_contracts_tenant_site"`
	Tenant      Tenant         `gorm:"foreignKey:TenantID;references:ID"`
	SiteID      uint           `gorm:"column:site_id;not null;index:idx_contracts_tenant_site"`
	Site        Site           `gorm:"foreignKey:SiteID;references:ID"`
	OwnerID     uint           `gorm:"column:owner_id;not null"`
	Owner       Owner          `gorm:"foreignKey:OwnerID;references:ID"`
	Ref         *string        `gorm:"column:ref;uniqueIndex;size:100"` // NULL не участвует в уникальности
	MonthlyRent int64          `gorm:"column:monthly_rent;not null;default:0"`
	Periodicity Periodicity    `gorm:"column:periodicity;type:varchar(20);not null;default:'monthly'"`
	Status      ContractStatus `gorm:"column:status;type:varchar(20);not null;default:'active';index"`
	StartDate   *time.Time     `gorm:"column:start_date"`
	EndDate     *time.Time     `gorm:"column:end_date"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы для модели Contract
func (Contract) TableName() string {
	return "contracts"
}
