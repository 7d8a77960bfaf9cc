// Package models contains database model definitions.
package models

import (
	"time"
)

// Department mirrors an organizational unit from the directory service.
// The primary key is assigned by the external directory and is never
// generated locally, so re-running a sync keeps existing rows stable.
type Department struct {
	// ID is the department identifier assigned by the directory service.
	ID int64 `gorm:"primaryKey;autoIncrement:false"`
	// Name is the department name synced from the directory.
	Name string `gorm:"size:200;not null"`
	// CreatedAt is the timestamp when the department was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the department was last updated (managed by GORM).
	UpdatedAt time.Time
}
