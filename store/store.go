// Package store is the persistence collaborator of the certification workflow.
// The workflow engine depends only on the Store interface; GormStore backs it with
// MySQL or SQLite and MemoryStore with process-local maps.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/foodtrust/foodtrust_backend/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict reports a conditional update that matched no row in the expected state.
	ErrConflict = errors.New("record not in expected state")
)

type RestaurantFilter struct {
	Name string
}

type AuditorFilter struct {
	ActiveOnly     bool
	Specialization models.CertificationType
}

type UserFilter struct {
	Name  string
	Email string
}

type CertificationFilter struct {
	RestaurantId      string
	AuditorId         string
	Status            models.CertificationStatus
	CertificationType models.CertificationType
}

// Approval is everything written by the approve transition in one transaction.
type Approval struct {
	CertificationId string
	AuditorId       string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	TransactionHash string
	AssetCode       string
}

// Rejection is everything written by the reject transition.
type Rejection struct {
	CertificationId string
	AuditorId       string
	Notes           string
	DecidedAt       time.Time
}

type Store interface {
	CreateRestaurant(ctx context.Context, r *models.Restaurant) error
	GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error)
	ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]*models.Restaurant, error)
	// DeleteRestaurant removes the restaurant and its certification records.
	// It fails with ErrConflict while a certification is still pending.
	DeleteRestaurant(ctx context.Context, id string) error

	CreateAuditor(ctx context.Context, a *models.Auditor) error
	GetAuditor(ctx context.Context, id string) (*models.Auditor, error)
	GetAuditorByEmail(ctx context.Context, email string) (*models.Auditor, error)
	ListAuditors(ctx context.Context, filter AuditorFilter) ([]*models.Auditor, error)
	SetAuditorActive(ctx context.Context, id string, active bool) (*models.Auditor, error)

	// CreateCertification returns ErrDuplicate when a pending row for the same
	// restaurant and type already exists.
	CreateCertification(ctx context.Context, c *models.Certification) error
	GetCertification(ctx context.Context, id string) (*models.Certification, error)
	// FindPending returns nil, nil when there is no pending row for the pair.
	FindPending(ctx context.Context, restaurantId string, certType models.CertificationType) (*models.Certification, error)
	ListCertifications(ctx context.Context, filter CertificationFilter) ([]*models.Certification, error)
	// FinalizeApproval moves a pending certification to APPROVED, increments the
	// auditor's issued count and marks the issuance attempt SUCCEEDED atomically.
	FinalizeApproval(ctx context.Context, a Approval) (*models.Certification, error)
	RejectCertification(ctx context.Context, r Rejection) (*models.Certification, error)

	// GetIssuanceAttempt returns nil, nil when no attempt was recorded.
	GetIssuanceAttempt(ctx context.Context, certificationId string) (*models.IssuanceAttempt, error)
	// PutIssuanceAttempt returns ErrConflict rather than replace a STARTED attempt.
	PutIssuanceAttempt(ctx context.Context, a *models.IssuanceAttempt) error
	MarkIssuanceFailed(ctx context.Context, certificationId string, reason string) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser saves name, email and password. A taken email is ErrDuplicate.
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}
