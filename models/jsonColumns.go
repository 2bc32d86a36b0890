package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CertificationTypes is stored as a JSON array in a text column.
type CertificationTypes []CertificationType

func (c CertificationTypes) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]CertificationType(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CertificationTypes) Scan(src any) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*c = CertificationTypes{}
		return nil
	}
	var out []CertificationType
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*c = out
	return nil
}

// Contains compares case-insensitively.
func (c CertificationTypes) Contains(t CertificationType) bool {
	for _, v := range c {
		if v.Equal(t) {
			return true
		}
	}
	return false
}

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

func scanText(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}
