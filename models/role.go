package models

import "time"

// Role names seeded into the roles table.
const (
	RoleAdministrator = "administrator"
	RoleUser          = "user"
)

// Role represents user roles with numeric primary key
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}

// MasterRoles are ensured to exist on every start.
func MasterRoles() []Role {
	return []Role{
		{Name: RoleAdministrator, Description: "full access, may edit the answer key"},
		{Name: RoleUser, Description: "grades sheets"},
	}
}
