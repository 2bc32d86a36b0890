package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/keypair"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/ledger/ledgertest"
	"github.com/foodtrust/foodtrust_backend/metrics"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	engine  *Engine
	store   *store.MemoryStore
	horizon *ledgertest.Horizon
	funder  *ledgertest.Funder
	gateway *ledger.Gateway
	issuer  *keypair.Full
	clock   *testClock
	seq     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := ledgertest.NewHorizon()
	h.SetClock(clk.Now)
	funder := ledgertest.NewFunder(h)

	issuer := keypair.MustRandom()
	h.CreateAccount(issuer.Address())
	cfg := config.LedgerConfig{
		Network:        config.NetworkTestnet,
		IssuerSecret:   issuer.Seed(),
		TrustlineLimit: "1000",
		TxTimeout:      30 * time.Second,
		BaseFee:        100,
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g, err := ledger.NewGateway(cfg, h, funder, ledger.WithClock(clk.Now), ledger.WithLogger(logger))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	s := store.NewMemoryStore()
	e := NewEngine(s, g, NewLocalLocker(10*time.Second),
		WithClock(clk.Now),
		WithLogger(logger),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	return &fixture{engine: e, store: s, horizon: h, funder: funder, gateway: g, issuer: issuer, clock: clk}
}

// restaurant registers a restaurant whose account trusts every certification asset.
func (fx *fixture) restaurant(t *testing.T) *models.Restaurant {
	t.Helper()
	fx.seq++
	reg, err := fx.engine.RegisterRestaurant(context.Background(), models.NewRestaurant{
		Name:    fmt.Sprintf("Casa Verde %d", fx.seq),
		Address: "12 Harbour Street, Lisbon",
	})
	if err != nil {
		t.Fatalf("register restaurant: %v", err)
	}
	for _, ct := range models.AllCertificationTypes() {
		code, _ := ledger.AssetCodeFor(ct)
		fx.horizon.AddTrustline(reg.Restaurant.LedgerAddress, code, fx.issuer.Address())
	}
	return reg.Restaurant
}

func (fx *fixture) auditor(t *testing.T, specs ...models.CertificationType) *models.Auditor {
	t.Helper()
	fx.seq++
	reg, err := fx.engine.RegisterAuditor(context.Background(), models.NewAuditor{
		Name:            fmt.Sprintf("Auditor %d", fx.seq),
		Email:           fmt.Sprintf("auditor%d@example.com", fx.seq),
		Specializations: specs,
	})
	if err != nil {
		t.Fatalf("register auditor: %v", err)
	}
	return reg.Auditor
}

func (fx *fixture) request(t *testing.T, restaurantId string, ct models.CertificationType) *models.Certification {
	t.Helper()
	cert, err := fx.engine.Request(context.Background(), models.NewCertificationRequest{
		RestaurantId:      restaurantId,
		CertificationType: ct,
		Products:          []string{"lentil soup", "falafel"},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return cert
}

func (fx *fixture) status(t *testing.T, id string) models.CertificationStatus {
	t.Helper()
	c, err := fx.store.GetCertification(context.Background(), id)
	if err != nil {
		t.Fatalf("get certification: %v", err)
	}
	return c.Status
}

func (fx *fixture) attempt(t *testing.T, id string) *models.IssuanceAttempt {
	t.Helper()
	a, err := fx.store.GetIssuanceAttempt(context.Background(), id)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	return a
}

func (fx *fixture) veganBalance(r *models.Restaurant) string {
	return fx.horizon.BalanceOf(r.LedgerAddress, "VEGAN", fx.issuer.Address())
}

func TestRequestApproveHappyPath(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)

	cert := fx.request(t, r.ID, models.CertificationTypeVegan)
	if cert.Status != models.CertificationStatusPending {
		t.Fatalf("status = %s, want PENDING", cert.Status)
	}

	_, err := fx.engine.Request(ctx, models.NewCertificationRequest{
		RestaurantId:      r.ID,
		CertificationType: "VEGAN",
		Products:          []string{"tofu"},
	})
	if !errors.Is(err, ErrDuplicatePending) || Classify(err) != CategoryConflict {
		t.Fatalf("second request: expected Conflict, got %v", err)
	}

	res, err := fx.engine.Approve(ctx, cert.ID, a.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.AssetCode != "VEGAN" || res.TransactionHash == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.ExpiresAt.Equal(res.IssuedAt.Add(365 * 24 * time.Hour)) {
		t.Fatalf("expires_at = %s, issued_at = %s", res.ExpiresAt, res.IssuedAt)
	}
	if got := fx.status(t, cert.ID); got != models.CertificationStatusApproved {
		t.Fatalf("status = %s, want APPROVED", got)
	}
	updated, _ := fx.store.GetAuditor(ctx, a.ID)
	if updated.CertificationsIssued != 1 {
		t.Fatalf("issued count = %d, want 1", updated.CertificationsIssued)
	}
	if got := fx.veganBalance(r); got != "1.0000000" {
		t.Fatalf("ledger balance = %q, want 1.0000000", got)
	}
	if att := fx.attempt(t, cert.ID); att == nil || att.Status != models.IssuanceStatusSucceeded || att.TransactionHash != res.TransactionHash {
		t.Fatalf("attempt not succeeded: %+v", att)
	}

	if _, err := fx.engine.Approve(ctx, cert.ID, a.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second approve: expected ErrNotPending, got %v", err)
	}
	if _, err := fx.engine.Reject(ctx, cert.ID, a.ID, "late"); !errors.Is(err, ErrNotPending) {
		t.Fatalf("reject after approve: expected ErrNotPending, got %v", err)
	}
	if fx.horizon.Submits() != 1 {
		t.Fatalf("submits = %d, want 1", fx.horizon.Submits())
	}

	// a decided request frees the pair for a new one
	fx.request(t, r.ID, models.CertificationTypeVegan)
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	long := strings.Repeat("x", 501)

	cases := []struct {
		name  string
		input models.NewCertificationRequest
		want  error
	}{
		{"unknown type", models.NewCertificationRequest{RestaurantId: r.ID, CertificationType: "organic", Products: []string{"a"}}, ErrInvalidInput},
		{"no products", models.NewCertificationRequest{RestaurantId: r.ID, CertificationType: "vegan"}, ErrInvalidInput},
		{"notes too long", models.NewCertificationRequest{RestaurantId: r.ID, CertificationType: "vegan", Products: []string{"a"}, Notes: &long}, ErrInvalidInput},
		{"unknown restaurant", models.NewCertificationRequest{RestaurantId: "missing", CertificationType: "vegan", Products: []string{"a"}}, ErrRestaurantNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fx.engine.Request(ctx, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApproveEligibility(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	cert := fx.request(t, r.ID, models.CertificationTypeHalal)

	kosher := fx.auditor(t, models.CertificationTypeKosher)
	if _, err := fx.engine.Approve(ctx, cert.ID, kosher.ID); !errors.Is(err, ErrAuditorNotSpecialized) || Classify(err) != CategoryUnauthorized {
		t.Fatalf("expected ErrAuditorNotSpecialized, got %v", err)
	}

	halal := fx.auditor(t, models.CertificationTypeHalal)
	if _, err := fx.engine.SetAuditorActive(ctx, halal.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := fx.engine.Approve(ctx, cert.ID, halal.ID); !errors.Is(err, ErrAuditorInactive) || Classify(err) != CategoryUnauthorized {
		t.Fatalf("expected ErrAuditorInactive, got %v", err)
	}

	if _, err := fx.engine.Approve(ctx, cert.ID, "nobody"); !errors.Is(err, ErrAuditorNotFound) {
		t.Fatalf("expected ErrAuditorNotFound, got %v", err)
	}
	if _, err := fx.engine.Approve(ctx, "missing", halal.ID); !errors.Is(err, ErrNotFound) || Classify(err) != CategoryNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if got := fx.status(t, cert.ID); got != models.CertificationStatusPending {
		t.Fatalf("status = %s, want PENDING", got)
	}
	if fx.horizon.Submits() != 0 {
		t.Fatalf("ineligible approve reached the ledger")
	}

	if _, err := fx.engine.SetAuditorActive(ctx, halal.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := fx.engine.Approve(ctx, cert.ID, halal.ID); err != nil {
		t.Fatalf("approve after activation: %v", err)
	}
}

func TestApproveLedgerFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	fx.horizon.FailSubmit(ledgertest.FailUnavailable, 1)
	_, err := fx.engine.Approve(ctx, cert.ID, a.ID)
	if !errors.Is(err, ErrIssuanceFailed) || !errors.Is(err, ledger.ErrNetworkUnavailable) {
		t.Fatalf("expected issuance failure, got %v", err)
	}
	if Classify(err) != CategoryUpstreamFailure || !Retryable(err) {
		t.Fatalf("category = %s retryable = %v", Classify(err), Retryable(err))
	}
	if got := fx.status(t, cert.ID); got != models.CertificationStatusPending {
		t.Fatalf("status = %s, want PENDING", got)
	}
	if att := fx.attempt(t, cert.ID); att == nil || att.Status != models.IssuanceStatusFailed {
		t.Fatalf("attempt not failed: %+v", att)
	}
	if got, _ := fx.store.GetAuditor(ctx, a.ID); got.CertificationsIssued != 0 {
		t.Fatalf("issued count changed on failure")
	}

	if _, err := fx.engine.Approve(ctx, cert.ID, a.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := fx.veganBalance(r); got != "1.0000000" {
		t.Fatalf("ledger balance = %q, want 1.0000000", got)
	}
}

func TestApproveWithoutTrustlineIsRejectedByNetwork(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	reg, err := fx.engine.RegisterRestaurant(ctx, models.NewRestaurant{Name: "No Trust", Address: "1 Market Square, Porto"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	a := fx.auditor(t, models.CertificationTypeKosher)
	cert := fx.request(t, reg.Restaurant.ID, models.CertificationTypeKosher)

	_, err = fx.engine.Approve(ctx, cert.ID, a.ID)
	if !errors.Is(err, ledger.ErrRejectedByNetwork) || Classify(err) != CategoryUpstreamFailure {
		t.Fatalf("expected RejectedByNetwork, got %v", err)
	}
	var lerr *ledger.Error
	if !errors.As(err, &lerr) || !strings.Contains(lerr.Codes, "op_no_trust") {
		t.Fatalf("expected op_no_trust codes, got %v", err)
	}
	if got := fx.status(t, cert.ID); got != models.CertificationStatusPending {
		t.Fatalf("status = %s, want PENDING", got)
	}
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeGlutenFree)
	cert := fx.request(t, r.ID, models.CertificationTypeGlutenFree)

	if _, err := fx.engine.Reject(ctx, cert.ID, "nobody", "x"); !errors.Is(err, ErrAuditorNotFound) {
		t.Fatalf("expected ErrAuditorNotFound, got %v", err)
	}
	rejected, err := fx.engine.Reject(ctx, cert.ID, a.ID, "insufficient documentation")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.CertificationStatusRejected {
		t.Fatalf("status = %s", rejected.Status)
	}
	if rejected.Notes == nil || *rejected.Notes != "Rejected: insufficient documentation" {
		t.Fatalf("notes = %v", rejected.Notes)
	}
	if rejected.AuditorId == nil || *rejected.AuditorId != a.ID {
		t.Fatalf("auditor not recorded")
	}
	if rejected.DecidedAt == nil || !rejected.DecidedAt.Equal(fx.clock.Now()) {
		t.Fatalf("decided_at = %v, want %v", rejected.DecidedAt, fx.clock.Now())
	}
	if fx.horizon.Submits() != 0 {
		t.Fatalf("reject called the ledger")
	}
	if _, err := fx.engine.Approve(ctx, cert.ID, a.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("approve after reject: expected ErrNotPending, got %v", err)
	}
	if _, err := fx.engine.Reject(ctx, "missing", a.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentRequestsCreateOnePending(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.engine.Request(ctx, models.NewCertificationRequest{
				RestaurantId:      r.ID,
				CertificationType: models.CertificationTypeSeafoodFree,
				Products:          []string{"salad"},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicatePending):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	pending, _ := fx.store.ListCertifications(ctx, store.CertificationFilter{RestaurantId: r.ID, Status: models.CertificationStatusPending})
	if len(pending) != 1 {
		t.Fatalf("pending rows = %d, want 1", len(pending))
	}
}

func TestConcurrentApprovesIssueOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.engine.Approve(ctx, cert.ID, a.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	approved := 0
	for err := range errs {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrNotPending):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if approved != 1 {
		t.Fatalf("approved = %d, want 1", approved)
	}
	if fx.horizon.Submits() != 1 {
		t.Fatalf("submits = %d, want 1", fx.horizon.Submits())
	}
	if got := fx.veganBalance(r); got != "1.0000000" {
		t.Fatalf("ledger balance = %q, want 1.0000000", got)
	}
	if got, _ := fx.store.GetAuditor(ctx, a.ID); got.CertificationsIssued != 1 {
		t.Fatalf("issued count = %d, want 1", got.CertificationsIssued)
	}
}

func TestRecoveryAfterAppliedTimeout(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	fx.horizon.FailSubmit(ledgertest.FailTimeoutApplied, 1)
	_, err := fx.engine.Approve(ctx, cert.ID, a.ID)
	if !errors.Is(err, ErrIssuanceFailed) || !errors.Is(err, ledger.ErrOutcomeUnknown) {
		t.Fatalf("expected outcome unknown, got %v", err)
	}
	att := fx.attempt(t, cert.ID)
	if att == nil || att.Status != models.IssuanceStatusStarted || att.TransactionHash == "" {
		t.Fatalf("attempt not left open: %+v", att)
	}
	if got := fx.status(t, cert.ID); got != models.CertificationStatusPending {
		t.Fatalf("status = %s, want PENDING", got)
	}

	res, err := fx.engine.Approve(ctx, cert.ID, a.ID)
	if err != nil {
		t.Fatalf("recovering approve: %v", err)
	}
	if res.TransactionHash != att.TransactionHash {
		t.Fatalf("hash = %s, want recorded %s", res.TransactionHash, att.TransactionHash)
	}
	if fx.horizon.Submits() != 1 {
		t.Fatalf("recovery resubmitted: submits = %d", fx.horizon.Submits())
	}
	if got := fx.veganBalance(r); got != "1.0000000" {
		t.Fatalf("ledger balance = %q, want exactly one token", got)
	}
}

func TestRecoveryAfterDroppedTimeout(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	fx.horizon.FailSubmit(ledgertest.FailTimeoutDropped, 1)
	if _, err := fx.engine.Approve(ctx, cert.ID, a.ID); !errors.Is(err, ledger.ErrOutcomeUnknown) {
		t.Fatalf("expected outcome unknown, got %v", err)
	}
	first := fx.attempt(t, cert.ID)

	// still inside the envelope's time bound: the payment could yet land
	_, err := fx.engine.Approve(ctx, cert.ID, a.ID)
	if !errors.Is(err, ErrIssuanceInProgress) || Classify(err) != CategoryUpstreamFailure || !Retryable(err) {
		t.Fatalf("expected ErrIssuanceInProgress, got %v", err)
	}
	if fx.horizon.Submits() != 1 {
		t.Fatalf("submits = %d, want 1", fx.horizon.Submits())
	}

	fx.clock.Advance(time.Minute)
	res, err := fx.engine.Approve(ctx, cert.ID, a.ID)
	if err != nil {
		t.Fatalf("approve after expiry: %v", err)
	}
	if res.TransactionHash == first.TransactionHash {
		t.Fatalf("expected a fresh transaction")
	}
	if fx.horizon.Submits() != 2 {
		t.Fatalf("submits = %d, want 2", fx.horizon.Submits())
	}
	if got := fx.veganBalance(r); got != "1.0000000" {
		t.Fatalf("ledger balance = %q, want 1.0000000", got)
	}
}

// staleAttempts hides recorded attempts from reads, like a holder whose lock
// expired and who read the attempt table before another approve wrote to it.
type staleAttempts struct {
	*store.MemoryStore
}

func (s staleAttempts) GetIssuanceAttempt(ctx context.Context, certificationId string) (*models.IssuanceAttempt, error) {
	return nil, nil
}

func TestApproveDoesNotReplaceOpenAttempt(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	fx.horizon.FailSubmit(ledgertest.FailTimeoutDropped, 1)
	if _, err := fx.engine.Approve(ctx, cert.ID, a.ID); !errors.Is(err, ledger.ErrOutcomeUnknown) {
		t.Fatalf("expected outcome unknown, got %v", err)
	}
	open := fx.attempt(t, cert.ID)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	stale := NewEngine(staleAttempts{fx.store}, fx.gateway, NewLocalLocker(time.Second),
		WithClock(fx.clock.Now),
		WithLogger(logger),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	_, err := stale.Approve(ctx, cert.ID, a.ID)
	if !errors.Is(err, ErrIssuanceInProgress) || !Retryable(err) {
		t.Fatalf("expected ErrIssuanceInProgress, got %v", err)
	}
	if fx.horizon.Submits() != 1 {
		t.Fatalf("second payment submitted: submits = %d", fx.horizon.Submits())
	}
	if got := fx.attempt(t, cert.ID); got.TransactionHash != open.TransactionHash || got.Status != models.IssuanceStatusStarted {
		t.Fatalf("open attempt replaced: %+v", got)
	}
}

func TestCheckIssuance(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	res, err := fx.engine.CheckIssuance(ctx, cert.ID)
	if err != nil {
		t.Fatalf("check without attempt: %v", err)
	}
	if res.Attempt != nil || res.Certification.Status != models.CertificationStatusPending {
		t.Fatalf("unexpected result: %+v", res)
	}

	fx.horizon.FailSubmit(ledgertest.FailTimeoutApplied, 1)
	_, _ = fx.engine.Approve(ctx, cert.ID, a.ID)

	res, err = fx.engine.CheckIssuance(ctx, cert.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Status != models.IssuanceStatusSucceeded || res.Certification.Status != models.CertificationStatusApproved {
		t.Fatalf("check did not finalize: %+v", res)
	}
	if _, err := fx.engine.CheckIssuance(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIssuerNotConfigured(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	g, err := ledger.NewGateway(config.LedgerConfig{Network: config.NetworkTestnet}, fx.horizon, fx.funder)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	fx.engine.ledger = g
	r := fx.restaurant(t)
	a := fx.auditor(t, models.CertificationTypeVegan)
	cert := fx.request(t, r.ID, models.CertificationTypeVegan)

	_, err = fx.engine.Approve(ctx, cert.ID, a.ID)
	if !errors.Is(err, ledger.ErrIssuerNotConfigured) || Classify(err) != CategoryUpstreamFailure || Retryable(err) {
		t.Fatalf("expected non-retryable IssuerNotConfigured, got %v", err)
	}
	if fx.attempt(t, cert.ID) != nil {
		t.Fatalf("attempt recorded without a prepared transaction")
	}
}
