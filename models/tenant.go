package models

import (
	"time"
)

// Tenant представляет арендатора. Уникален по паре (ФИО, текущий объект).
type Tenant struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	FullName      string    `gorm:"column:full_name;not null;size:255;uniqueIndex:idx_tenants_name_site"`
	CurrentSiteID uint      `gorm:"column:current_site_id;not null;uniqueIndex:idx_tenants_name_site"`
	CurrentSite   Site      `gorm:"foreignKey:CurrentSiteID;references:ID"`
	Phone         *string   `gorm:"column:phone;size:32"`
	Active        bool      `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы для модели Tenant
func (Tenant) TableName() string {
	return "tenants"
}
