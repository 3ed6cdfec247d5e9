package models

import (
	"time"

	"exam-system/internal/identity"
)

// Account is the single login entity. Exactly one profile matching Role is
// attached, except for admins which carry none.
type Account struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Username  string        `json:"username" gorm:"size:255;uniqueIndex;not null"`
	Email     string        `json:"email" gorm:"size:254"`
	FirstName string        `json:"first_name" gorm:"size:255"`
	LastName  string        `json:"last_name" gorm:"size:255"`
	Password  string        `json:"-" gorm:"not null"`
	Role      identity.Role `json:"role" gorm:"size:20;not null;index"`
	IsActive  bool          `json:"is_active" gorm:"not null"`
	LastLogin *time.Time    `json:"last_login,omitempty"`
}

type Institute struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	CreatedAt        time.Time `json:"created_at"`
	AccountID        uint      `json:"account_id" gorm:"uniqueIndex;not null"`
	Account          *Account  `json:"account,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Name             string    `json:"name" gorm:"size:255;uniqueIndex;not null"`
	RegistrationCode string    `json:"registration_code" gorm:"size:50;uniqueIndex;not null"`
	Address          string    `json:"address" gorm:"size:1000"`
	Phone            string    `json:"phone" gorm:"size:20"`
	Website          string    `json:"website"`
}

type Teacher struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time  `json:"created_at"`
	AccountID    uint       `json:"account_id" gorm:"uniqueIndex;not null"`
	Account      *Account   `json:"account,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	InstituteID  uint       `json:"institute_id" gorm:"index;not null"`
	Institute    *Institute `json:"institute,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	NationalCode string     `json:"national_code" gorm:"size:10;uniqueIndex;not null"`
	PhoneNumber  string     `json:"phone_number" gorm:"size:20"`
	Expertise    string     `json:"expertise" gorm:"size:100"`
}

type Major struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:100;not null"`
}

type Student struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time  `json:"created_at"`
	AccountID    uint       `json:"account_id" gorm:"uniqueIndex;not null"`
	Account      *Account   `json:"account,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	InstituteID  uint       `json:"institute_id" gorm:"index;not null"`
	Institute    *Institute `json:"institute,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	NationalCode string     `json:"national_code" gorm:"size:10;uniqueIndex;not null"`
	PhoneNumber  string     `json:"phone_number" gorm:"size:20"`
	MajorID      uint       `json:"major_id" gorm:"index;not null"`
	Major        *Major     `json:"major,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Gender       string     `json:"gender" gorm:"size:10"`
}
