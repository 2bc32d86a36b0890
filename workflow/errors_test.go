package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
)

func TestClassify(t *testing.T) {
	upstream := func(kind ledger.ErrorKind) error {
		return fmt.Errorf("%w: %w", ErrIssuanceFailed, &ledger.Error{Kind: kind, Op: "issue token"})
	}
	cases := []struct {
		name      string
		err       error
		want      Category
		retryable bool
	}{
		{"not found", ErrNotFound, CategoryNotFound, false},
		{"restaurant", ErrRestaurantNotFound, CategoryNotFound, false},
		{"store not found", fmt.Errorf("load: %w", store.ErrNotFound), CategoryNotFound, false},
		{"duplicate", ErrDuplicatePending, CategoryConflict, false},
		{"not pending", ErrNotPending, CategoryConflict, false},
		{"busy", ErrLockNotObtained, CategoryConflict, false},
		{"email", ErrEmailTaken, CategoryConflict, false},
		{"inactive", ErrAuditorInactive, CategoryUnauthorized, false},
		{"specialization", ErrAuditorNotSpecialized, CategoryUnauthorized, false},
		{"invalid", invalidInput(errors.New("name too short")), CategoryInvalidInput, false},
		{"bad type", models.ErrInvalidCertificationType, CategoryInvalidInput, false},
		{"bad address", ledger.ErrInvalidAddress, CategoryInvalidInput, false},
		{"unavailable", upstream(ledger.KindNetworkUnavailable), CategoryUpstreamFailure, true},
		{"rejected", upstream(ledger.KindRejectedByNetwork), CategoryUpstreamFailure, true},
		{"unknown outcome", upstream(ledger.KindOutcomeUnknown), CategoryUpstreamFailure, true},
		{"account missing", upstream(ledger.KindAccountMissing), CategoryUpstreamFailure, true},
		{"issuer", upstream(ledger.KindIssuerNotConfigured), CategoryUpstreamFailure, false},
		{"asset", upstream(ledger.KindInvalidAsset), CategoryUpstreamFailure, false},
		{"bare asset", &ledger.Error{Kind: ledger.KindInvalidAsset}, CategoryInvalidInput, false},
		{"in progress", ErrIssuanceInProgress, CategoryUpstreamFailure, true},
		{"other", errors.New("disk full"), CategoryInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
			if got := Retryable(tc.err); got != tc.retryable {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestEligibility(t *testing.T) {
	active, inactive := true, false
	vegan := &models.Auditor{ID: "a1", IsActive: &active, Specializations: models.CertificationTypes{"VEGAN"}}
	off := &models.Auditor{ID: "a2", IsActive: &inactive, Specializations: models.CertificationTypes{"vegan"}}

	cases := []struct {
		auditor *models.Auditor
		ct      models.CertificationType
		want    error
	}{
		{vegan, models.CertificationTypeVegan, nil},
		{vegan, models.CertificationTypeKosher, ErrAuditorNotSpecialized},
		{off, models.CertificationTypeVegan, ErrAuditorInactive},
		{nil, models.CertificationTypeVegan, ErrAuditorNotFound},
	}
	for _, tc := range cases {
		if err := CheckDecider(tc.auditor, tc.ct); !errors.Is(err, tc.want) {
			t.Fatalf("CheckDecider(%v, %s) = %v, want %v", tc.auditor, tc.ct, err, tc.want)
		}
		if CanDecide(tc.auditor, tc.ct) != (tc.want == nil) {
			t.Fatalf("CanDecide disagrees with CheckDecider for %s", tc.ct)
		}
	}

	existing := []*models.Certification{
		{RestaurantId: "r1", CertificationType: "vegan", Status: models.CertificationStatusPending},
		{RestaurantId: "r1", CertificationType: "halal", Status: models.CertificationStatusRejected},
	}
	if !IsDuplicatePending(existing, "r1", "VEGAN") {
		t.Fatalf("pending vegan not detected")
	}
	if IsDuplicatePending(existing, "r1", "halal") || IsDuplicatePending(existing, "r2", "vegan") {
		t.Fatalf("false duplicate")
	}
}
