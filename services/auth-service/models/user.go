package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID       string `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Name     string `gorm:"not null" json:"name"`
	Role     string `gorm:"default:'citizen'" json:"role"`

	// Reputation ledger. Badge is always the highest threshold satisfied
	// by Points and is recomputed on every point mutation.
	Points           int        `gorm:"not null;default:0" json:"points"`
	MonthlyPoints    int        `gorm:"not null;default:0" json:"monthlyPoints"`
	LastMonthlyReset *time.Time `json:"lastMonthlyReset,omitempty"`
	Badge            string     `gorm:"default:'Bronze'" json:"badge"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
