// Package ledger issues certification tokens on the Stellar network.
//
// The gateway is stateless apart from its configuration: it provisions
// accounts, sets trustlines, pays one unit of a certification asset from the
// platform issuer and reads balances and history back. Token payments are not
// idempotent on the network, so callers must guarantee at most one Submit per
// approval.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
)

const (
	tokenAmount        = "1"
	defaultHistorySize = 50
	maxHistorySize     = 200
)

type Gateway struct {
	horizon        HorizonClient
	funder         Funder
	passphrase     string
	issuer         *keypair.Full
	trustlineLimit string
	baseFee        int64
	txTimeout      time.Duration
	selfHeal       bool
	log            *logrus.Entry
	now            func() time.Time
}

type ProvisionedAccount struct {
	Address string `json:"address"`
	// Secret is handed to the caller once and never stored.
	Secret string `json:"secret"`
	Funded bool   `json:"funded"`
}

type Balance struct {
	AssetType string          `json:"asset_type"`
	AssetCode string          `json:"asset_code,omitempty"`
	Issuer    string          `json:"issuer,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	Limit     string          `json:"limit,omitempty"`
}

type AccountView struct {
	Address  string    `json:"address"`
	Sequence int64     `json:"sequence"`
	Balances []Balance `json:"balances"`
}

type TrustlineResult struct {
	TransactionHash string `json:"transaction_hash"`
	AssetCode       string `json:"asset_code"`
	Limit           string `json:"limit"`
}

type IssueResult struct {
	TransactionHash string `json:"transaction_hash"`
	AssetCode       string `json:"asset_code"`
}

type CertificationBalance struct {
	AssetCode string          `json:"asset_code"`
	Balance   decimal.Decimal `json:"balance"`
	Issuer    string          `json:"issuer"`
}

// Certified reports whether the balance denotes a live certification.
func (b CertificationBalance) Certified() bool {
	return b.Balance.IsPositive()
}

type TxSummary struct {
	Hash          string    `json:"hash"`
	CreatedAt     time.Time `json:"created_at"`
	Memo          string    `json:"memo"`
	SourceAccount string    `json:"source_account"`
	Successful    bool      `json:"successful"`
}

// PreparedIssuance is a signed token payment that has not been submitted.
// Hash is final, so it can be recorded before the network sees the envelope.
type PreparedIssuance struct {
	Destination string
	AssetCode   string
	Memo        string
	Hash        string
	// ValidUntil is the envelope's max time bound; after it the network
	// can no longer apply the transaction.
	ValidUntil time.Time
	tx         *txnbuild.Transaction
}

type Option func(*Gateway)

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(g *Gateway) { g.log = logger.WithField("module", "ledger") }
}

// NewGateway builds a gateway over client. funder may be nil on networks
// without friendbot. A missing issuer secret is allowed; issuing operations
// then fail with IssuerNotConfigured.
func NewGateway(cfg config.LedgerConfig, client HorizonClient, funder Funder, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		horizon:        client,
		funder:         funder,
		passphrase:     network.PublicNetworkPassphrase,
		trustlineLimit: cfg.TrustlineLimit,
		baseFee:        cfg.BaseFee,
		txTimeout:      cfg.TxTimeout,
		selfHeal:       config.SelfHealLedgerAccounts(),
		log:            config.GetLogger().WithField("module", "ledger"),
		now:            time.Now,
	}
	if cfg.IsTestnet() {
		g.passphrase = network.TestNetworkPassphrase
	}
	if g.trustlineLimit == "" {
		g.trustlineLimit = "1000"
	}
	if g.baseFee < txnbuild.MinBaseFee {
		g.baseFee = txnbuild.MinBaseFee
	}
	if g.txTimeout <= 0 {
		g.txTimeout = 30 * time.Second
	}
	if secret := strings.TrimSpace(cfg.IssuerSecret); secret != "" {
		kp, err := keypair.ParseFull(secret)
		if err != nil {
			return nil, fmt.Errorf("issuer secret: %w", ErrInvalidSecret)
		}
		g.issuer = kp
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SetSelfHeal overrides the LEDGER_SELF_HEAL flag.
func (g *Gateway) SetSelfHeal(enabled bool) {
	g.selfHeal = enabled
}

func (g *Gateway) IssuerAddress() string {
	if g.issuer == nil {
		return ""
	}
	return g.issuer.Address()
}

func (g *Gateway) ValidateAddress(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// AddressOfSecret returns the public address for a secret seed.
func AddressOfSecret(secret string) (string, error) {
	kp, err := keypair.ParseFull(strings.TrimSpace(secret))
	if err != nil {
		return "", ErrInvalidSecret
	}
	return kp.Address(), nil
}

func (g *Gateway) ProvisionAccount(ctx context.Context) (*ProvisionedAccount, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	account := &ProvisionedAccount{Address: kp.Address(), Secret: kp.Seed()}
	if g.funder == nil {
		return account, nil
	}

	err = g.funder.Fund(ctx, account.Address)
	var lerr *Error
	switch {
	case err == nil:
		account.Funded = true
	case errors.As(err, &lerr):
		return nil, lerr
	case ctx.Err() != nil:
		return nil, newError(KindNetworkUnavailable, "provision account", ctx.Err())
	default:
		g.log.WithFields(logrus.Fields{"address": account.Address}).Warn("friendbot did not fund account: " + err.Error())
	}
	return account, nil
}

// GetAccount returns nil, nil when the account does not exist on the network.
func (g *Gateway) GetAccount(ctx context.Context, address string) (*AccountView, error) {
	if !g.ValidateAddress(address) {
		return nil, ErrInvalidAddress
	}
	acct, err := g.loadAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, nil
	}
	view := &AccountView{Address: acct.AccountID, Sequence: acct.Sequence}
	for _, b := range acct.Balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", b.Balance, err)
		}
		view.Balances = append(view.Balances, Balance{
			AssetType: b.Type,
			AssetCode: b.Code,
			Issuer:    b.Issuer,
			Balance:   amount,
			Limit:     b.Limit,
		})
	}
	return view, nil
}

func (g *Gateway) loadAccount(ctx context.Context, address string) (*horizon.Account, error) {
	acct, err := do(ctx, func() (horizon.Account, error) {
		return g.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, readError("load account", err)
	}
	return &acct, nil
}

func (g *Gateway) certificationAsset(assetCode string) txnbuild.CreditAsset {
	return txnbuild.CreditAsset{Code: assetCode, Issuer: g.issuer.Address()}
}

func (g *Gateway) timeBounds() (txnbuild.TimeBounds, time.Time) {
	validUntil := g.now().Add(g.txTimeout).UTC().Truncate(time.Second)
	return txnbuild.NewTimebounds(0, validUntil.Unix()), validUntil
}

// EstablishTrustline lets the holder's account receive assetCode from the issuer.
func (g *Gateway) EstablishTrustline(ctx context.Context, holderSecret string, assetCode string) (*TrustlineResult, error) {
	const op = "establish trustline"
	if g.issuer == nil {
		return nil, newError(KindIssuerNotConfigured, op, nil)
	}
	holder, err := keypair.ParseFull(strings.TrimSpace(holderSecret))
	if err != nil {
		return nil, ErrInvalidSecret
	}
	code, err := NormalizeAssetCode(assetCode)
	if err != nil {
		return nil, err
	}

	acct, err := g.loadAccount(ctx, holder.Address())
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errorf(KindAccountMissing, op, "account %s does not exist", holder.Address())
	}

	line, err := g.certificationAsset(code).ToChangeTrustAsset()
	if err != nil {
		return nil, newError(KindInvalidAsset, op, err)
	}
	bounds, _ := g.timeBounds()
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        acct,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.ChangeTrust{Line: line, Limit: g.trustlineLimit},
		},
		BaseFee:       g.baseFee,
		Preconditions: txnbuild.Preconditions{TimeBounds: bounds},
	})
	if err != nil {
		return nil, fmt.Errorf("build change trust: %w", err)
	}
	tx, err = tx.Sign(g.passphrase, holder)
	if err != nil {
		return nil, fmt.Errorf("sign change trust: %w", err)
	}

	resp, err := g.submit(ctx, op, tx)
	if err != nil {
		return nil, err
	}
	g.log.WithFields(logrus.Fields{"address": holder.Address(), "asset_code": code, "tx_hash": resp.Hash}).Info("trustline established")
	return &TrustlineResult{TransactionHash: resp.Hash, AssetCode: code, Limit: g.trustlineLimit}, nil
}

// IssueToken prepares and submits in one step. It is not idempotent.
func (g *Gateway) IssueToken(ctx context.Context, destination string, certType models.CertificationType, meta IssueMetadata) (*IssueResult, error) {
	prepared, err := g.PrepareIssuance(ctx, destination, certType, meta)
	if err != nil {
		return nil, err
	}
	return g.Submit(ctx, prepared)
}

// PrepareIssuance resolves the asset, makes sure the destination exists
// (funding it on testnet when self-heal is on), then builds and signs the
// one-unit payment without submitting it.
func (g *Gateway) PrepareIssuance(ctx context.Context, destination string, certType models.CertificationType, meta IssueMetadata) (*PreparedIssuance, error) {
	const op = "prepare issuance"
	if g.issuer == nil {
		return nil, newError(KindIssuerNotConfigured, op, nil)
	}
	if !g.ValidateAddress(destination) {
		return nil, ErrInvalidAddress
	}
	code, err := AssetCodeFor(certType)
	if err != nil {
		return nil, err
	}

	if err := g.ensureAccount(ctx, destination); err != nil {
		return nil, err
	}

	issuerAcct, err := g.loadAccount(ctx, g.issuer.Address())
	if err != nil {
		return nil, err
	}
	if issuerAcct == nil {
		return nil, errorf(KindAccountMissing, op, "issuer account %s does not exist", g.issuer.Address())
	}

	memo := NewCertificationMemo(strings.ToLower(string(certType)), meta).Encode()
	bounds, validUntil := g.timeBounds()
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        issuerAcct,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: destination,
				Amount:      tokenAmount,
				Asset:       g.certificationAsset(code),
			},
		},
		BaseFee:       g.baseFee,
		Memo:          txnbuild.MemoText(memo),
		Preconditions: txnbuild.Preconditions{TimeBounds: bounds},
	})
	if err != nil {
		return nil, fmt.Errorf("build payment: %w", err)
	}
	tx, err = tx.Sign(g.passphrase, g.issuer)
	if err != nil {
		return nil, fmt.Errorf("sign payment: %w", err)
	}
	hash, err := tx.HashHex(g.passphrase)
	if err != nil {
		return nil, fmt.Errorf("hash payment: %w", err)
	}

	return &PreparedIssuance{
		Destination: destination,
		AssetCode:   code,
		Memo:        memo,
		Hash:        hash,
		ValidUntil:  validUntil,
		tx:          tx,
	}, nil
}

func (g *Gateway) ensureAccount(ctx context.Context, address string) error {
	const op = "ensure account"
	acct, err := g.loadAccount(ctx, address)
	if err != nil {
		return err
	}
	if acct != nil {
		return nil
	}
	if !g.selfHeal || g.funder == nil {
		return errorf(KindAccountMissing, op, "account %s does not exist", address)
	}
	g.log.WithFields(logrus.Fields{"address": address}).Warn("destination account missing, funding it")
	if err := g.funder.Fund(ctx, address); err != nil {
		var lerr *Error
		if errors.As(err, &lerr) {
			return lerr
		}
		return newError(KindAccountMissing, op, err)
	}
	return nil
}

// Submit sends a prepared issuance. A *Error of KindOutcomeUnknown means the
// payment may have been applied; look up p.Hash before trying again.
func (g *Gateway) Submit(ctx context.Context, p *PreparedIssuance) (*IssueResult, error) {
	resp, err := g.submit(ctx, "issue token", p.tx)
	if err != nil {
		return nil, err
	}
	hash := resp.Hash
	if hash == "" {
		hash = p.Hash
	}
	g.log.WithFields(logrus.Fields{"destination": p.Destination, "asset_code": p.AssetCode, "tx_hash": hash}).Info("certification token issued")
	return &IssueResult{TransactionHash: hash, AssetCode: p.AssetCode}, nil
}

func (g *Gateway) submit(ctx context.Context, op string, tx *txnbuild.Transaction) (horizon.Transaction, error) {
	if err := ctx.Err(); err != nil {
		// nothing was sent
		return horizon.Transaction{}, newError(KindNetworkUnavailable, op, err)
	}
	resp, err := do(ctx, func() (horizon.Transaction, error) {
		return g.horizon.SubmitTransaction(tx)
	})
	if err != nil {
		return horizon.Transaction{}, submitError(op, err)
	}
	return resp, nil
}

// ListCertifications returns the account's balances of assets minted by the
// platform issuer. A missing account has none.
func (g *Gateway) ListCertifications(ctx context.Context, address string) ([]CertificationBalance, error) {
	if g.issuer == nil {
		return nil, newError(KindIssuerNotConfigured, "list certifications", nil)
	}
	view, err := g.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	results := make([]CertificationBalance, 0)
	if view == nil {
		return results, nil
	}
	issuer := g.issuer.Address()
	for _, b := range view.Balances {
		if b.AssetType == "native" || b.Issuer != issuer {
			continue
		}
		results = append(results, CertificationBalance{AssetCode: b.AssetCode, Balance: b.Balance, Issuer: b.Issuer})
	}
	return results, nil
}

// ListCertificationTransactions returns recent transactions, newest first,
// whose memo is a certification memo.
func (g *Gateway) ListCertificationTransactions(ctx context.Context, address string, limit int) ([]TxSummary, error) {
	if !g.ValidateAddress(address) {
		return nil, ErrInvalidAddress
	}
	if limit <= 0 {
		limit = defaultHistorySize
	}
	limit = min(limit, maxHistorySize)

	page, err := do(ctx, func() (horizon.TransactionsPage, error) {
		return g.horizon.Transactions(horizonclient.TransactionRequest{
			ForAccount: address,
			Order:      horizonclient.OrderDesc,
			Limit:      uint(limit),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return []TxSummary{}, nil
		}
		return nil, readError("list transactions", err)
	}

	results := make([]TxSummary, 0)
	for _, tx := range page.Embedded.Records {
		if tx.MemoType != "text" && tx.MemoType != "" {
			continue
		}
		if !IsCertificationMemo(tx.Memo) {
			continue
		}
		results = append(results, summarize(tx))
	}
	return results, nil
}

// FindTransaction returns nil, nil when the network does not know the hash.
func (g *Gateway) FindTransaction(ctx context.Context, hash string) (*TxSummary, error) {
	tx, err := do(ctx, func() (horizon.Transaction, error) {
		return g.horizon.TransactionDetail(hash)
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, readError("find transaction", err)
	}
	s := summarize(tx)
	return &s, nil
}

func summarize(tx horizon.Transaction) TxSummary {
	return TxSummary{
		Hash:          tx.Hash,
		CreatedAt:     tx.LedgerCloseTime,
		Memo:          tx.Memo,
		SourceAccount: tx.Account,
		Successful:    tx.Successful,
	}
}
