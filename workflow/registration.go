package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
	"github.com/foodtrust/foodtrust_backend/utils"
)

// RegisterRestaurant provisions a ledger account and stores the restaurant.
// The returned secret is not persisted anywhere.
func (e *Engine) RegisterRestaurant(ctx context.Context, input models.NewRestaurant) (*models.RegisteredRestaurant, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.RegisterRestaurant")
	defer span.End()

	if err := input.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	account, err := e.ledger.ProvisionAccount(ctx)
	if err != nil {
		config.LogError(e.logger, "workflow", "RegisterRestaurant", "provision account", input, err)
		return nil, err
	}
	restaurant := &models.Restaurant{
		ID:            uuid.NewString(),
		Name:          input.Name,
		Address:       input.Address,
		LedgerAddress: account.Address,
	}
	if err := e.store.CreateRestaurant(ctx, restaurant); err != nil {
		config.LogError(e.logger, "workflow", "RegisterRestaurant", "create restaurant", input, err)
		return nil, err
	}
	e.log(ctx, logrus.Fields{"restaurant_id": restaurant.ID, "address": account.Address, "funded": account.Funded}).
		Info("restaurant registered")
	return &models.RegisteredRestaurant{Restaurant: restaurant, LedgerSecret: account.Secret, Funded: account.Funded}, nil
}

func (e *Engine) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	return e.getRestaurant(ctx, id)
}

func (e *Engine) ListRestaurants(ctx context.Context, name string) ([]*models.Restaurant, error) {
	return e.store.ListRestaurants(ctx, store.RestaurantFilter{Name: name})
}

// DeleteRestaurant removes the restaurant with its request history. It is
// refused while a request is pending, since an approve may be in flight.
func (e *Engine) DeleteRestaurant(ctx context.Context, id string) error {
	// hold every request lock of the restaurant so no request slips in
	// between the pending check and the delete
	types := models.AllCertificationTypes()
	keys := make([]string, 0, len(types))
	for _, t := range types {
		keys = append(keys, requestLockKey(id, string(t)))
	}
	err := withLocks(ctx, e.locks, keys, func(ctx context.Context) error {
		return e.store.DeleteRestaurant(ctx, id)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRestaurantNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrRestaurantHasPending
	case err != nil:
		return err
	}
	e.log(ctx, logrus.Fields{"restaurant_id": id}).Info("restaurant deleted")
	return nil
}

// EstablishTrustline opens a trustline from the restaurant's account to the
// platform issuer. The holder secret must belong to the restaurant.
func (e *Engine) EstablishTrustline(ctx context.Context, restaurantId, holderSecret, assetCode string) (*ledger.TrustlineResult, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.EstablishTrustline")
	defer span.End()

	restaurant, err := e.getRestaurant(ctx, restaurantId)
	if err != nil {
		return nil, err
	}
	address, err := ledger.AddressOfSecret(holderSecret)
	if err != nil {
		return nil, err
	}
	if address != restaurant.LedgerAddress {
		return nil, ErrForbidden
	}
	return e.ledger.EstablishTrustline(ctx, holderSecret, assetCode)
}

func (e *Engine) RegisterAuditor(ctx context.Context, input models.NewAuditor) (*models.RegisteredAuditor, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.RegisterAuditor")
	defer span.End()

	if err := input.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	if _, err := e.store.GetAuditorByEmail(ctx, input.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	account, err := e.ledger.ProvisionAccount(ctx)
	if err != nil {
		config.LogError(e.logger, "workflow", "RegisterAuditor", "provision account", input, err)
		return nil, err
	}
	auditor := &models.Auditor{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Email:           input.Email,
		Specializations: models.CertificationTypes(input.Specializations),
		LedgerAddress:   account.Address,
		IsActive:        utils.NewTrue(),
	}
	if err := e.store.CreateAuditor(ctx, auditor); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	e.log(ctx, logrus.Fields{"auditor_id": auditor.ID, "address": account.Address}).Info("auditor registered")
	return &models.RegisteredAuditor{Auditor: auditor, LedgerSecret: account.Secret, Funded: account.Funded}, nil
}

func (e *Engine) GetAuditor(ctx context.Context, id string) (*models.Auditor, error) {
	a, err := e.store.GetAuditor(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuditorNotFound
	}
	return a, err
}

// ListAuditors optionally narrows to active auditors specialized in certType.
func (e *Engine) ListAuditors(ctx context.Context, activeOnly bool, certType string) ([]*models.Auditor, error) {
	filter := store.AuditorFilter{ActiveOnly: activeOnly}
	if certType != "" {
		t, err := models.ParseCertificationType(certType)
		if err != nil {
			return nil, invalidInput(err)
		}
		filter.Specialization = t
	}
	return e.store.ListAuditors(ctx, filter)
}

func (e *Engine) SetAuditorActive(ctx context.Context, id string, active bool) (*models.Auditor, error) {
	a, err := e.store.SetAuditorActive(ctx, id, active)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuditorNotFound
	}
	if err != nil {
		return nil, err
	}
	e.log(ctx, logrus.Fields{"auditor_id": id, "is_active": active}).Info("auditor status changed")
	return a, nil
}

func (e *Engine) AuditorStats(ctx context.Context, id string) (*models.AuditorStats, error) {
	a, err := e.GetAuditor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.AuditorStats{
		AuditorId:            a.ID,
		Name:                 a.Name,
		CertificationsIssued: a.CertificationsIssued,
		Specializations:      a.Specializations,
		IsActive:             a.Active(),
		MemberSince:          a.CreatedAt,
	}, nil
}
