package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
)

const historyLimit = 50

// RestaurantCertifications joins the local request history with what the
// ledger holds now. OnLedger is the authority on whether the restaurant is
// certified; Local may legitimately disagree with it.
type RestaurantCertifications struct {
	Restaurant *models.Restaurant            `json:"restaurant"`
	Local      []*models.Certification       `json:"local_certifications"`
	OnLedger   []ledger.CertificationBalance `json:"ledger_certifications"`
	History    []ledger.TxSummary            `json:"ledger_history"`
}

type RestaurantWithCertifications struct {
	Restaurant     *models.Restaurant            `json:"restaurant"`
	Certifications []ledger.CertificationBalance `json:"certifications"`
}

func (e *Engine) GetRestaurantCertifications(ctx context.Context, restaurantId string) (result *RestaurantCertifications, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.GetRestaurantCertifications")
	defer func() { endSpan(span, err) }()

	restaurant, err := e.getRestaurant(ctx, restaurantId)
	if err != nil {
		return nil, err
	}
	local, err := e.store.ListCertifications(ctx, store.CertificationFilter{RestaurantId: restaurantId})
	if err != nil {
		return nil, err
	}
	onLedger, err := e.ledger.ListCertifications(ctx, restaurant.LedgerAddress)
	if err != nil {
		return nil, err
	}
	history, err := e.ledger.ListCertificationTransactions(ctx, restaurant.LedgerAddress, historyLimit)
	if err != nil {
		return nil, err
	}
	return &RestaurantCertifications{
		Restaurant: restaurant,
		Local:      local,
		OnLedger:   onLedger,
		History:    history,
	}, nil
}

// SearchByCertifications returns the restaurants whose ledger account holds a
// positive balance of every required asset code.
func (e *Engine) SearchByCertifications(ctx context.Context, requiredAssetCodes []string) (results []*RestaurantWithCertifications, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.SearchByCertifications")
	defer func() { endSpan(span, err) }()

	required := make([]string, 0, len(requiredAssetCodes))
	seen := map[string]bool{}
	for _, raw := range requiredAssetCodes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		code, err := ledger.NormalizeAssetCode(raw)
		if err != nil {
			return nil, invalidInput(fmt.Errorf("unknown certification code %q", raw))
		}
		if !seen[code] {
			seen[code] = true
			required = append(required, code)
		}
	}

	restaurants, err := e.store.ListRestaurants(ctx, store.RestaurantFilter{})
	if err != nil {
		return nil, err
	}
	results = make([]*RestaurantWithCertifications, 0)
	for _, r := range restaurants {
		balances, err := e.ledger.ListCertifications(ctx, r.LedgerAddress)
		if err != nil {
			return nil, err
		}
		held := map[string]bool{}
		certified := make([]ledger.CertificationBalance, 0, len(balances))
		for _, b := range balances {
			if b.Certified() {
				held[strings.ToUpper(b.AssetCode)] = true
				certified = append(certified, b)
			}
		}
		if !holdsAll(held, required) {
			continue
		}
		results = append(results, &RestaurantWithCertifications{Restaurant: r, Certifications: certified})
	}
	return results, nil
}

func holdsAll(held map[string]bool, required []string) bool {
	for _, code := range required {
		if !held[code] {
			return false
		}
	}
	return true
}

func (e *Engine) GetCertification(ctx context.Context, certificationId string) (*models.CertificationDetail, error) {
	cert, err := e.store.GetCertification(ctx, certificationId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	detail := &models.CertificationDetail{Certification: cert}
	restaurant, err := e.store.GetRestaurant(ctx, cert.RestaurantId)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	detail.Restaurant = restaurant
	if cert.AuditorId != nil {
		auditor, err := e.store.GetAuditor(ctx, *cert.AuditorId)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.Auditor = auditor
	}
	return detail, nil
}

// ListPending returns PENDING requests with their restaurant, optionally
// narrowed to one certification type.
func (e *Engine) ListPending(ctx context.Context, certType string) ([]*models.CertificationDetail, error) {
	filter := store.CertificationFilter{Status: models.CertificationStatusPending}
	if strings.TrimSpace(certType) != "" {
		t, err := models.ParseCertificationType(certType)
		if err != nil {
			return nil, invalidInput(err)
		}
		filter.CertificationType = t
	}
	pending, err := e.store.ListCertifications(ctx, filter)
	if err != nil {
		return nil, err
	}
	restaurants := map[string]*models.Restaurant{}
	results := make([]*models.CertificationDetail, 0, len(pending))
	for _, c := range pending {
		r, ok := restaurants[c.RestaurantId]
		if !ok {
			r, err = e.store.GetRestaurant(ctx, c.RestaurantId)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			restaurants[c.RestaurantId] = r
		}
		results = append(results, &models.CertificationDetail{Certification: c, Restaurant: r})
	}
	return results, nil
}

func (e *Engine) getRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	r, err := e.store.GetRestaurant(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}
	return r, nil
}
