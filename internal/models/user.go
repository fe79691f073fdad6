package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleFarmer Role = "farmer"
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// User is the identity row the chat core reads; account management lives in
// the identity service, this table is only synced for lookups.
type User struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name   string    `gorm:"not null" json:"name"`
	Mobile string    `gorm:"type:varchar(30);uniqueIndex" json:"mobile"`

	Role     Role `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
