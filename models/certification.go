package models

import (
	"strings"
	"time"

	"github.com/foodtrust/foodtrust_backend/utils"
)

// CertificationValidity is the lifetime of an approved certification.
const CertificationValidity = 365 * 24 * time.Hour

type Certification struct {
	ID                string              `gorm:"primaryKey;size:36" json:"id"`
	RestaurantId      string              `gorm:"size:36;not null;index" json:"restaurant_id"`
	CertificationType CertificationType   `gorm:"size:20;not null;index" json:"certification_type"`
	Products          StringList          `gorm:"type:text;not null" json:"products"`
	Notes             *string             `gorm:"type:text" json:"notes"`
	Status            CertificationStatus `gorm:"size:20;not null;index" json:"status"`
	AuditorId         *string             `gorm:"size:36;index" json:"auditor_id"`
	IssuedAt          *time.Time          `json:"issued_at"`
	ExpiresAt         *time.Time          `json:"expires_at"`
	DecidedAt         *time.Time          `json:"decided_at"`
	TransactionHash   *string             `gorm:"size:64" json:"transaction_hash"`
	AssetCode         *string             `gorm:"size:12" json:"asset_code"`
	// PendingKey is "{restaurantId}:{type}" while PENDING and NULL after a decision,
	// so the unique index admits one pending row per pair.
	PendingKey *string   `gorm:"size:80;uniqueIndex" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func PendingKeyFor(restaurantId string, certType CertificationType) string {
	return restaurantId + ":" + strings.ToLower(string(certType))
}

type NewCertificationRequest struct {
	RestaurantId      string            `json:"restaurant_id" validate:"required"`
	CertificationType CertificationType `json:"certification_type" validate:"required"`
	Products          []string          `json:"products" validate:"required,min=1,dive,required"`
	Notes             *string           `json:"notes" validate:"omitempty,max=500"`
}

func (input *NewCertificationRequest) Validate() error {
	input.RestaurantId = strings.TrimSpace(input.RestaurantId)
	t, err := ParseCertificationType(string(input.CertificationType))
	if err != nil {
		return err
	}
	input.CertificationType = t
	return utils.ValidateStruct(input)
}

// CertificationDetail is a certification joined with its restaurant and deciding auditor.
type CertificationDetail struct {
	*Certification
	Restaurant *Restaurant `json:"restaurant"`
	Auditor    *Auditor    `json:"auditor,omitempty"`
}
