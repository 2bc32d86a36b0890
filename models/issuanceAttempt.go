package models

import "time"

type IssuanceStatus string

const (
	IssuanceStatusStarted   IssuanceStatus = "STARTED"
	IssuanceStatusSucceeded IssuanceStatus = "SUCCEEDED"
	IssuanceStatusFailed    IssuanceStatus = "FAILED"
)

// IssuanceAttempt is the durable in-flight marker for a certification token payment.
// One row per certification; it is overwritten when a failed attempt is retried.
type IssuanceAttempt struct {
	CertificationId string         `gorm:"primaryKey;size:36" json:"certification_id"`
	AuditorId       string         `gorm:"size:36;not null" json:"auditor_id"`
	Status          IssuanceStatus `gorm:"size:20;not null;index" json:"status"`
	TransactionHash string         `gorm:"size:64;not null" json:"transaction_hash"`
	AssetCode       string         `gorm:"size:12;not null" json:"asset_code"`
	IssuedAt        time.Time      `gorm:"not null" json:"issued_at"`
	ValidUntil      time.Time      `gorm:"not null" json:"valid_until"`
	LastError       *string        `gorm:"type:text" json:"last_error"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
