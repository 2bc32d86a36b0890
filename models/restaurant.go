package models

import (
	"strings"
	"time"

	"github.com/foodtrust/foodtrust_backend/utils"
)

type Restaurant struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `gorm:"size:100;not null;index" json:"name"`
	Address       string    `gorm:"size:200;not null" json:"address"`
	LedgerAddress string    `gorm:"size:56;not null;uniqueIndex" json:"ledger_address"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewRestaurant struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Address string `json:"address" validate:"required,min=10,max=200"`
}

func (input *NewRestaurant) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Address = strings.TrimSpace(input.Address)
	return utils.ValidateStruct(input)
}

// RegisteredRestaurant carries the ledger secret, which is disclosed only once.
type RegisteredRestaurant struct {
	Restaurant   *Restaurant `json:"restaurant"`
	LedgerSecret string      `json:"ledger_secret"`
	Funded       bool        `json:"funded"`
}
