package models

import (
	"time"
)

// Site представляет здание или площадку, принадлежащую одному собственнику
type Site struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;uniqueIndex;not null;size:255"`
	OwnerID   uint      `gorm:"column:owner_id;not null;index"`
	Owner     Owner     `gorm:"foreignKey:OwnerID;references:ID"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы для модели Site
func (Site) TableName() string {
	return "sites"
}
