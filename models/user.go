package models

import (
	"errors"
	"strings"
	"time"

	"github.com/foodtrust/foodtrust_backend/utils"
)

type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Password     string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"size:20;not null;default:consumer" json:"role"`
	AuditorId    *string   `gorm:"size:36;index" json:"auditor_id"`
	RestaurantId *string   `gorm:"size:36;index" json:"restaurant_id"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name         string   `json:"name" validate:"required,min=2,max=100"`
	Email        string   `json:"email" validate:"required,email,max=100"`
	Password     string   `json:"password" validate:"required,min=8,max=72"`
	Role         UserRole `json:"role" validate:"required"`
	AuditorId    *string  `json:"auditor_id"`
	RestaurantId *string  `json:"restaurant_id"`
	// LedgerSecret proves ownership of RestaurantId when no admin registers the user.
	LedgerSecret string `json:"ledger_secret,omitempty"`
}

func (input *NewUser) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = utils.NormalizeEmail(input.Email)
	input.Role = UserRole(strings.ToLower(string(input.Role)))
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Role.IsValid() {
		return errors.New("invalid role")
	}
	if input.Role == UserRoleAuditor && (input.AuditorId == nil || *input.AuditorId == "") {
		return errors.New("auditor user requires auditor_id")
	}
	if input.Role == UserRoleRestaurant && (input.RestaurantId == nil || *input.RestaurantId == "") {
		return errors.New("restaurant user requires restaurant_id")
	}
	// bindings only make sense for the matching role
	if input.Role != UserRoleAuditor {
		input.AuditorId = nil
	}
	if input.Role != UserRoleRestaurant {
		input.RestaurantId = nil
	}
	return nil
}

// UpdateUser changes the caller's own profile. Nil fields are left as they are.
type UpdateUser struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=100"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

func (input *UpdateUser) Validate() error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		input.Name = &name
	}
	if input.Email != nil {
		email := utils.NormalizeEmail(*input.Email)
		input.Email = &email
	}
	if input.Name == nil && input.Email == nil && input.Password == nil {
		return errors.New("nothing to update")
	}
	return utils.ValidateStruct(input)
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginInfo struct {
	Token     string   `json:"access_token"`
	TokenType string   `json:"token_type"`
	UserId    string   `json:"user_id"`
	Name      string   `json:"name"`
	Role      UserRole `json:"role"`
}
