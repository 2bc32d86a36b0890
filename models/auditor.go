package models

import (
	"errors"
	"strings"
	"time"

	"github.com/foodtrust/foodtrust_backend/utils"
)

type Auditor struct {
	ID                   string             `gorm:"primaryKey;size:36" json:"id"`
	Name                 string             `gorm:"size:100;not null" json:"name"`
	Email                string             `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Specializations      CertificationTypes `gorm:"type:text;not null" json:"specializations"`
	LedgerAddress        string             `gorm:"size:56;not null;uniqueIndex" json:"ledger_address"`
	IsActive             *bool              `gorm:"not null;default:true" json:"is_active"`
	CertificationsIssued int                `gorm:"not null;default:0" json:"certifications_issued"`
	CreatedAt            time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (a *Auditor) Active() bool {
	return a != nil && a.IsActive != nil && *a.IsActive
}

type NewAuditor struct {
	Name            string              `json:"name" validate:"required,min=2,max=100"`
	Email           string              `json:"email" validate:"required,email,max=100"`
	Specializations []CertificationType `json:"specializations" validate:"required,min=1"`
}

func (input *NewAuditor) Validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = utils.NormalizeEmail(input.Email)
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	seen := make(map[CertificationType]bool, len(input.Specializations))
	specs := make([]CertificationType, 0, len(input.Specializations))
	for _, s := range input.Specializations {
		t, err := ParseCertificationType(string(s))
		if err != nil {
			return errors.New("invalid specialization: " + string(s))
		}
		if !seen[t] {
			seen[t] = true
			specs = append(specs, t)
		}
	}
	input.Specializations = specs
	return nil
}

type RegisteredAuditor struct {
	Auditor      *Auditor `json:"auditor"`
	LedgerSecret string   `json:"ledger_secret"`
	Funded       bool     `json:"funded"`
}

type AuditorStats struct {
	AuditorId            string             `json:"auditor_id"`
	Name                 string             `json:"name"`
	CertificationsIssued int                `json:"certifications_issued"`
	Specializations      CertificationTypes `json:"specializations"`
	IsActive             bool               `json:"is_active"`
	MemberSince          time.Time          `json:"member_since"`
}
