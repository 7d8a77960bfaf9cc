package models

import (
	"time"
)

// Identity represents a person record mirrored from the directory service.
// The directory reconciler is the sole writer of directory-sourced fields;
// other components read them but never mutate them.
type Identity struct {
	// ID is the unique identifier for the identity.
	ID uint64 `gorm:"primaryKey"`
	// Username is the unique login name, shared with the directory's cn attribute.
	Username string `gorm:"unique;size:100;not null"`
	// DisplayName is the person's display name (directory sn attribute).
	DisplayName string `gorm:"size:100"`
	// Email is the person's email address.
	Email string `gorm:"size:255"`
	// Active indicates whether the identity is present in the directory.
	// Identities absent from a full sync are deactivated, never deleted.
	Active bool
	// Staff indicates administrative UI access.
	Staff bool
	// Superuser marks an administrator. Superusers are never deactivated by
	// a directory sync, as a safety net against directory outages.
	Superuser bool
	// EmployeeNumber is the directory employeeNumber attribute, if present.
	EmployeeNumber string `gorm:"size:50"`
	// DepartmentID is a weak reference to the synced department. It is set
	// to nil when the referenced department is unknown locally.
	DepartmentID *int64
	// Department is the associated department row.
	Department *Department `gorm:"foreignKey:DepartmentID;references:ID;constraint:OnDelete:SET NULL,OnUpdate:CASCADE"`
	// PlainPassword is an encrypted cache of the user's plaintext password,
	// used when provisioning downstream systems. May be empty.
	PlainPassword string `gorm:"size:255"`
	// CreatedAt is the timestamp when the identity was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the identity was last updated (managed by GORM).
	UpdatedAt time.Time
}
