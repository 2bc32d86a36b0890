package ledger

import (
	"strings"

	"github.com/foodtrust/foodtrust_backend/models"
)

var assetCodes = map[models.CertificationType]string{
	models.CertificationTypeVegan:       "VEGAN",
	models.CertificationTypeGlutenFree:  "GLUTENFREE",
	models.CertificationTypeSeafoodFree: "SEAFOODFREE",
	models.CertificationTypeKosher:      "KOSHER",
	models.CertificationTypeHalal:       "HALAL",
}

// AssetCodeFor maps a certification type to its token code.
func AssetCodeFor(certType models.CertificationType) (string, error) {
	code, ok := assetCodes[models.CertificationType(strings.ToLower(string(certType)))]
	if !ok {
		return "", errorf(KindInvalidAsset, "asset code", "unknown certification type %q", certType)
	}
	return code, nil
}

// CertificationTypeFor is the reverse mapping; codes compare case-insensitively.
func CertificationTypeFor(assetCode string) (models.CertificationType, bool) {
	for t, code := range assetCodes {
		if strings.EqualFold(code, assetCode) {
			return t, true
		}
	}
	return "", false
}

// NormalizeAssetCode upper-cases a known code and rejects unknown ones.
func NormalizeAssetCode(assetCode string) (string, error) {
	t, ok := CertificationTypeFor(strings.TrimSpace(assetCode))
	if !ok {
		return "", errorf(KindInvalidAsset, "asset code", "unknown asset code %q", assetCode)
	}
	return assetCodes[t], nil
}
