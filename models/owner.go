package models

import (
	"time"
)

// Owner представляет собственника (арендодателя)
type Owner struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;uniqueIndex;not null;size:255"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы для модели Owner
func (Owner) TableName() string {
	return "owners"
}
