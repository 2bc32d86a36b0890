package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/ledger/ledgertest"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/stellar/go/keypair"
)

type fixture struct {
	horizon *ledgertest.Horizon
	funder  *ledgertest.Funder
	gateway *Gateway
	issuer  *keypair.Full
}

func newFixture(t *testing.T, withIssuer bool) *fixture {
	t.Helper()
	h := ledgertest.NewHorizon()
	f := ledgertest.NewFunder(h)
	cfg := config.LedgerConfig{
		Network:        config.NetworkTestnet,
		TrustlineLimit: "1000",
		TxTimeout:      30 * time.Second,
		BaseFee:        100,
	}
	var issuer *keypair.Full
	if withIssuer {
		issuer = keypair.MustRandom()
		cfg.IssuerSecret = issuer.Seed()
		h.CreateAccount(issuer.Address())
	}
	g, err := NewGateway(cfg, h, f)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	g.SetSelfHeal(true)
	return &fixture{horizon: h, funder: f, gateway: g, issuer: issuer}
}

// holder creates a funded destination that trusts every certification asset.
func (fx *fixture) holder(t *testing.T) *keypair.Full {
	t.Helper()
	kp := keypair.MustRandom()
	fx.horizon.CreateAccount(kp.Address())
	for _, code := range assetCodes {
		fx.horizon.AddTrustline(kp.Address(), code, fx.issuer.Address())
	}
	return kp
}

func TestAssetCodeFor(t *testing.T) {
	cases := []struct {
		in   models.CertificationType
		want string
	}{
		{models.CertificationTypeVegan, "VEGAN"},
		{models.CertificationTypeGlutenFree, "GLUTENFREE"},
		{models.CertificationTypeSeafoodFree, "SEAFOODFREE"},
		{models.CertificationTypeKosher, "KOSHER"},
		{models.CertificationTypeHalal, "HALAL"},
		{"VEGAN", "VEGAN"},
	}
	for _, tc := range cases {
		got, err := AssetCodeFor(tc.in)
		if err != nil {
			t.Fatalf("AssetCodeFor(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("AssetCodeFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := AssetCodeFor("organic"); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
	if code, err := NormalizeAssetCode("glutenfree"); err != nil || code != "GLUTENFREE" {
		t.Fatalf("NormalizeAssetCode: %q %v", code, err)
	}
}

func TestCertificationMemo(t *testing.T) {
	meta := IssueMetadata{
		RestaurantId: "7f0c2d7e-1111-4c1e-9a55-000000000001",
		AuditorId:    "7f0c2d7e-2222-4c1e-9a55-000000000002",
		IssuedAt:     time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	memo := NewCertificationMemo("vegan", meta).Encode()
	if len(memo) > MaxMemoBytes {
		t.Fatalf("memo is %d bytes", len(memo))
	}
	if memo != `{"type":"certification","cer` {
		t.Fatalf("unexpected memo %q", memo)
	}
	if !IsCertificationMemo(memo) {
		t.Fatalf("truncated memo not recognized")
	}

	cases := []struct {
		memo string
		want bool
	}{
		{`{"type":"certification","cert_type":"vegan"}`, true},
		{`{"type":"payment"}`, false},
		{"rent for may", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsCertificationMemo(tc.memo); got != tc.want {
			t.Fatalf("IsCertificationMemo(%q) = %v, want %v", tc.memo, got, tc.want)
		}
	}
}

func TestProvisionAccount(t *testing.T) {
	fx := newFixture(t, true)
	acct, err := fx.gateway.ProvisionAccount(context.Background())
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !acct.Funded || !fx.gateway.ValidateAddress(acct.Address) {
		t.Fatalf("unexpected account: %+v", acct)
	}
	kp, err := keypair.ParseFull(acct.Secret)
	if err != nil || kp.Address() != acct.Address {
		t.Fatalf("secret does not match address: %v", err)
	}
	if !fx.horizon.HasAccount(acct.Address) {
		t.Fatalf("account not created on ledger")
	}
}

func TestProvisionAccountFundingOutcomes(t *testing.T) {
	fx := newFixture(t, true)
	fx.funder.FailWith(errors.New("friendbot error 500: busy"))
	acct, err := fx.gateway.ProvisionAccount(context.Background())
	if err != nil {
		t.Fatalf("refused funding should not fail provisioning: %v", err)
	}
	if acct.Funded {
		t.Fatalf("account reported funded")
	}

	fx.funder.FailWith(&Error{Kind: KindNetworkUnavailable, Op: "friendbot"})
	if _, err := fx.gateway.ProvisionAccount(context.Background()); !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}

	g, err := NewGateway(config.LedgerConfig{Network: config.NetworkPublic}, fx.horizon, nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	acct, err = g.ProvisionAccount(context.Background())
	if err != nil || acct.Funded {
		t.Fatalf("without a funder: %+v %v", acct, err)
	}
}

func TestGetAccount(t *testing.T) {
	fx := newFixture(t, true)
	missing := keypair.MustRandom().Address()
	view, err := fx.gateway.GetAccount(context.Background(), missing)
	if err != nil || view != nil {
		t.Fatalf("missing account: %+v %v", view, err)
	}
	if _, err := fx.gateway.GetAccount(context.Background(), "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	fx.horizon.SetUnavailable(true)
	if _, err := fx.gateway.GetAccount(context.Background(), missing); !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
}

func TestIssueTokenAndReadBack(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	dest := fx.holder(t)

	res, err := fx.gateway.IssueToken(ctx, dest.Address(), models.CertificationTypeVegan, IssueMetadata{
		RestaurantId: "r1", AuditorId: "a1", IssuedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res.AssetCode != "VEGAN" || len(res.TransactionHash) != 64 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := fx.horizon.BalanceOf(dest.Address(), "VEGAN", fx.issuer.Address()); got != "1.0000000" {
		t.Fatalf("balance = %q", got)
	}

	certs, err := fx.gateway.ListCertifications(ctx, dest.Address())
	if err != nil {
		t.Fatalf("list certifications: %v", err)
	}
	var vegan *CertificationBalance
	for i := range certs {
		if certs[i].AssetCode == "VEGAN" {
			vegan = &certs[i]
		} else if certs[i].Certified() {
			t.Fatalf("%s should have zero balance", certs[i].AssetCode)
		}
	}
	if vegan == nil || !vegan.Certified() || vegan.Issuer != fx.issuer.Address() {
		t.Fatalf("vegan balance not reported: %+v", certs)
	}

	history, err := fx.gateway.ListCertificationTransactions(ctx, dest.Address(), 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Hash != res.TransactionHash || !strings.HasPrefix(history[0].Memo, `{"type":"certification"`) {
		t.Fatalf("unexpected history: %+v", history)
	}
	if history[0].SourceAccount != fx.issuer.Address() {
		t.Fatalf("source = %s", history[0].SourceAccount)
	}

	found, err := fx.gateway.FindTransaction(ctx, res.TransactionHash)
	if err != nil || found == nil || !found.Successful {
		t.Fatalf("find transaction: %+v %v", found, err)
	}
	unknown, err := fx.gateway.FindTransaction(ctx, strings.Repeat("0", 64))
	if err != nil || unknown != nil {
		t.Fatalf("unknown hash: %+v %v", unknown, err)
	}
}

func TestIssueTokenErrors(t *testing.T) {
	ctx := context.Background()
	meta := IssueMetadata{RestaurantId: "r1", AuditorId: "a1", IssuedAt: time.Now()}

	noIssuer := newFixture(t, false)
	if _, err := noIssuer.gateway.IssueToken(ctx, keypair.MustRandom().Address(), models.CertificationTypeVegan, meta); !errors.Is(err, ErrIssuerNotConfigured) {
		t.Fatalf("expected ErrIssuerNotConfigured, got %v", err)
	}

	fx := newFixture(t, true)
	dest := fx.holder(t)
	if _, err := fx.gateway.IssueToken(ctx, dest.Address(), "organic", meta); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
	if _, err := fx.gateway.IssueToken(ctx, "GBAD", models.CertificationTypeVegan, meta); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	untrusting := keypair.MustRandom()
	fx.horizon.CreateAccount(untrusting.Address())
	_, err := fx.gateway.IssueToken(ctx, untrusting.Address(), models.CertificationTypeHalal, meta)
	if !errors.Is(err, ErrRejectedByNetwork) {
		t.Fatalf("expected ErrRejectedByNetwork, got %v", err)
	}
}

func TestIssueTokenSelfHeal(t *testing.T) {
	ctx := context.Background()
	meta := IssueMetadata{RestaurantId: "r1", AuditorId: "a1", IssuedAt: time.Now()}

	fx := newFixture(t, true)
	fx.gateway.SetSelfHeal(false)
	missing := keypair.MustRandom().Address()
	if _, err := fx.gateway.IssueToken(ctx, missing, models.CertificationTypeVegan, meta); !errors.Is(err, ErrAccountMissing) {
		t.Fatalf("expected ErrAccountMissing, got %v", err)
	}
	if fx.funder.Calls() != 0 {
		t.Fatalf("funder called with self-heal off")
	}

	fx.gateway.SetSelfHeal(true)
	fx.funder.FailWith(errors.New("friendbot error 500: busy"))
	if _, err := fx.gateway.IssueToken(ctx, missing, models.CertificationTypeVegan, meta); !errors.Is(err, ErrAccountMissing) {
		t.Fatalf("expected ErrAccountMissing after failed funding, got %v", err)
	}

	fx.funder.FailWith(nil)
	prepared, err := fx.gateway.PrepareIssuance(ctx, missing, models.CertificationTypeVegan, meta)
	if err != nil {
		t.Fatalf("prepare after self-heal: %v", err)
	}
	if !fx.horizon.HasAccount(missing) {
		t.Fatalf("destination was not funded")
	}
	if prepared.Hash == "" || prepared.ValidUntil.IsZero() {
		t.Fatalf("prepared issuance incomplete: %+v", prepared)
	}
}

func TestSubmitFailureKinds(t *testing.T) {
	ctx := context.Background()
	meta := IssueMetadata{RestaurantId: "r1", AuditorId: "a1", IssuedAt: time.Now()}
	cases := []struct {
		name    string
		mode    ledgertest.FailMode
		want    error
		applied bool
	}{
		{"unreachable", ledgertest.FailUnavailable, ErrNetworkUnavailable, false},
		{"timeout after apply", ledgertest.FailTimeoutApplied, ErrOutcomeUnknown, true},
		{"timeout before apply", ledgertest.FailTimeoutDropped, ErrOutcomeUnknown, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, true)
			dest := fx.holder(t)
			prepared, err := fx.gateway.PrepareIssuance(ctx, dest.Address(), models.CertificationTypeKosher, meta)
			if err != nil {
				t.Fatalf("prepare: %v", err)
			}
			fx.horizon.FailSubmit(tc.mode, 1)
			if _, err := fx.gateway.Submit(ctx, prepared); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			found, err := fx.gateway.FindTransaction(ctx, prepared.Hash)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if (found != nil) != tc.applied {
				t.Fatalf("applied = %v, want %v", found != nil, tc.applied)
			}
		})
	}
}

func TestSubmitWithCancelledContextSendsNothing(t *testing.T) {
	fx := newFixture(t, true)
	dest := fx.holder(t)
	prepared, err := fx.gateway.PrepareIssuance(context.Background(), dest.Address(), models.CertificationTypeVegan, IssueMetadata{IssuedAt: time.Now()})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fx.gateway.Submit(ctx, prepared); !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
	if fx.horizon.Submits() != 0 {
		t.Fatalf("submission reached horizon")
	}
}

func TestEstablishTrustline(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	holder := keypair.MustRandom()
	fx.horizon.CreateAccount(holder.Address())

	res, err := fx.gateway.EstablishTrustline(ctx, holder.Seed(), "vegan")
	if err != nil {
		t.Fatalf("trustline: %v", err)
	}
	if res.AssetCode != "VEGAN" || res.Limit != "1000" || res.TransactionHash == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := fx.horizon.BalanceOf(holder.Address(), "VEGAN", fx.issuer.Address()); got != "0.0000000" {
		t.Fatalf("trustline balance = %q", got)
	}

	if _, err := fx.gateway.EstablishTrustline(ctx, "SBAD", "VEGAN"); !errors.Is(err, ErrInvalidSecret) {
		t.Fatalf("expected ErrInvalidSecret, got %v", err)
	}
	if _, err := fx.gateway.EstablishTrustline(ctx, holder.Seed(), "ORGANIC"); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
	stranger := keypair.MustRandom()
	if _, err := fx.gateway.EstablishTrustline(ctx, stranger.Seed(), "VEGAN"); !errors.Is(err, ErrAccountMissing) {
		t.Fatalf("expected ErrAccountMissing, got %v", err)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := error(&Error{Kind: KindOutcomeUnknown, Op: "issue token", Err: errors.New("504")})
	if !errors.Is(err, ErrOutcomeUnknown) || errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("kind matching is wrong for %v", err)
	}
	wrapped := errors.Join(errors.New("approve"), err)
	if KindOf(wrapped) != KindOutcomeUnknown {
		t.Fatalf("KindOf through wrapping = %v", KindOf(wrapped))
	}
}
