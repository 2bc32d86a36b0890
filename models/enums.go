package models

import (
	"encoding/json"
	"errors"
	"strings"
)

type CertificationType string

const (
	CertificationTypeVegan       CertificationType = "vegan"
	CertificationTypeGlutenFree  CertificationType = "gluten_free"
	CertificationTypeSeafoodFree CertificationType = "seafood_free"
	CertificationTypeKosher      CertificationType = "kosher"
	CertificationTypeHalal       CertificationType = "halal"
)

var ErrInvalidCertificationType = errors.New("invalid certification type")

// AllCertificationTypes lists the enumeration in a stable order.
func AllCertificationTypes() []CertificationType {
	return []CertificationType{
		CertificationTypeVegan,
		CertificationTypeGlutenFree,
		CertificationTypeSeafoodFree,
		CertificationTypeKosher,
		CertificationTypeHalal,
	}
}

// ParseCertificationType normalizes case and surrounding space.
func ParseCertificationType(s string) (CertificationType, error) {
	t := CertificationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidCertificationType
	}
	return t, nil
}

func (t CertificationType) IsValid() bool {
	switch t {
	case CertificationTypeVegan,
		CertificationTypeGlutenFree,
		CertificationTypeSeafoodFree,
		CertificationTypeKosher,
		CertificationTypeHalal:
		return true
	}
	return false
}

// Equal compares two types case-insensitively.
func (t CertificationType) Equal(other CertificationType) bool {
	return strings.EqualFold(string(t), string(other))
}

func (t *CertificationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("certification type must be string")
	}
	parsed, err := ParseCertificationType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type CertificationStatus string

const (
	CertificationStatusPending  CertificationStatus = "PENDING"
	CertificationStatusApproved CertificationStatus = "APPROVED"
	CertificationStatusRejected CertificationStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s CertificationStatus) IsTerminal() bool {
	return s == CertificationStatusApproved || s == CertificationStatusRejected
}

type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleAuditor    UserRole = "auditor"
	UserRoleRestaurant UserRole = "restaurant"
	UserRoleConsumer   UserRole = "consumer"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleAuditor, UserRoleRestaurant, UserRoleConsumer:
		return true
	}
	return false
}
