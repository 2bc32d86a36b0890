package ledger

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMemoBytes is the network's hard cap on a text memo.
const MaxMemoBytes = 28

const memoType = "certification"

var memoPrefix = `{"type":"` + memoType + `"`

type CertificationMemo struct {
	Type         string `json:"type"`
	CertType     string `json:"cert_type"`
	RestaurantId string `json:"restaurant_id"`
	IssuedAt     string `json:"issued_at"`
	AuditorId    string `json:"auditor_id"`
}

// IssueMetadata is what the payment memo records about an approval.
type IssueMetadata struct {
	RestaurantId string
	AuditorId    string
	IssuedAt     time.Time
}

func NewCertificationMemo(certType string, meta IssueMetadata) CertificationMemo {
	return CertificationMemo{
		Type:         memoType,
		CertType:     certType,
		RestaurantId: meta.RestaurantId,
		IssuedAt:     meta.IssuedAt.UTC().Format(time.RFC3339),
		AuditorId:    meta.AuditorId,
	}
}

// Encode returns the compact JSON cut to MaxMemoBytes.
func (m CertificationMemo) Encode() string {
	b, err := json.Marshal(m)
	if err != nil {
		return memoPrefix
	}
	return truncateMemo(string(b))
}

func truncateMemo(s string) string {
	if len(s) <= MaxMemoBytes {
		return s
	}
	s = s[:MaxMemoBytes]
	// never leave half a multi-byte rune at the end
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// IsCertificationMemo accepts a memo that decodes as a certification record or
// that is the truncated head of one.
func IsCertificationMemo(memo string) bool {
	var m CertificationMemo
	if err := json.Unmarshal([]byte(memo), &m); err == nil {
		return m.Type == memoType
	}
	return strings.HasPrefix(memo, memoPrefix)
}
