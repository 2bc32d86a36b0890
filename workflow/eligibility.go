package workflow

import "github.com/foodtrust/foodtrust_backend/models"

// CanDecide reports whether the auditor may approve a request of certType.
func CanDecide(auditor *models.Auditor, certType models.CertificationType) bool {
	return CheckDecider(auditor, certType) == nil
}

// CheckDecider is CanDecide with the reason.
func CheckDecider(auditor *models.Auditor, certType models.CertificationType) error {
	if auditor == nil {
		return ErrAuditorNotFound
	}
	if !auditor.Active() {
		return ErrAuditorInactive
	}
	if !auditor.Specializations.Contains(certType) {
		return ErrAuditorNotSpecialized
	}
	return nil
}

// IsDuplicatePending reports whether existing already holds a pending request
// for the same restaurant and type.
func IsDuplicatePending(existing []*models.Certification, restaurantId string, certType models.CertificationType) bool {
	for _, c := range existing {
		if c == nil {
			continue
		}
		if c.RestaurantId == restaurantId && c.CertificationType.Equal(certType) && c.Status == models.CertificationStatusPending {
			return true
		}
	}
	return false
}
