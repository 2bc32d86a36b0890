// Package ledgertest provides an in-memory Horizon and friendbot for tests.
package ledgertest

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/network"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"
)

type FailMode int

const (
	// FailUnavailable refuses the connection; nothing is applied.
	FailUnavailable FailMode = iota + 1
	// FailTimeoutApplied applies the transaction, then reports a gateway timeout.
	FailTimeoutApplied
	// FailTimeoutDropped reports a gateway timeout without applying.
	FailTimeoutDropped
)

type account struct {
	sequence int64
	balances map[string]*horizon.Balance // keyed by code:issuer, "native" for XLM
	order    []string
}

type record struct {
	tx       horizon.Transaction
	accounts []string
}

// Horizon is a minimal ledger: accounts, sequence numbers, trustlines,
// credit payments and transaction history.
type Horizon struct {
	mu          sync.Mutex
	passphrase  string
	accounts    map[string]*account
	records     []record
	byHash      map[string]int
	failMode    FailMode
	failTimes   int
	unavailable bool
	submits     int
	now         func() time.Time
}

func NewHorizon() *Horizon {
	return &Horizon{
		passphrase: network.TestNetworkPassphrase,
		accounts:   make(map[string]*account),
		byHash:     make(map[string]int),
		now:        time.Now,
	}
}

func (h *Horizon) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

// FailSubmit makes the next n submissions fail with mode.
func (h *Horizon) FailSubmit(mode FailMode, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failMode, h.failTimes = mode, n
}

// SetUnavailable makes every call fail as if Horizon were unreachable.
func (h *Horizon) SetUnavailable(down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unavailable = down
}

func (h *Horizon) Submits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submits
}

// CreateAccount funds address with 10000 XLM. It is a no-op if the account exists.
func (h *Horizon) CreateAccount(address string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accounts[address]; ok {
		return false
	}
	h.accounts[address] = &account{
		sequence: 1 << 32,
		balances: map[string]*horizon.Balance{
			"native": {Balance: "10000.0000000", Asset: base.Asset{Type: "native"}},
		},
		order: []string{"native"},
	}
	return true
}

// HasAccount reports whether address exists.
func (h *Horizon) HasAccount(address string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.accounts[address]
	return ok
}

// AddTrustline opens a zero balance line without a transaction.
func (h *Horizon) AddTrustline(address, code, issuer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if acct, ok := h.accounts[address]; ok {
		acct.trust(code, issuer, "1000")
	}
}

// BalanceOf returns the holder's balance of code:issuer, or "" without a trustline.
func (h *Horizon) BalanceOf(address, code, issuer string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	acct, ok := h.accounts[address]
	if !ok {
		return ""
	}
	b, ok := acct.balances[code+":"+issuer]
	if !ok {
		return ""
	}
	return b.Balance
}

// AddTransaction appends a history record touching address.
func (h *Horizon) AddTransaction(address string, tx horizon.Transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byHash[tx.Hash] = len(h.records)
	h.records = append(h.records, record{tx: tx, accounts: []string{address}})
}

func (a *account) trust(code, issuer, limit string) {
	key := code + ":" + issuer
	if _, ok := a.balances[key]; ok {
		a.balances[key].Limit = limit
		return
	}
	a.balances[key] = &horizon.Balance{
		Balance: "0.0000000",
		Limit:   limit,
		Asset:   base.Asset{Type: assetType(code), Code: code, Issuer: issuer},
	}
	a.order = append(a.order, key)
}

func assetType(code string) string {
	if len(code) <= 4 {
		return "credit_alphanum4"
	}
	return "credit_alphanum12"
}

func notFound() error {
	return &horizonclient.Error{Problem: problem.P{
		Type:   "https://stellar.org/horizon-errors/not_found",
		Title:  "Resource Missing",
		Status: 404,
	}}
}

func unreachable() error {
	return &url.Error{Op: "Get", URL: "https://horizon.invalid", Err: &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: errors.New("connection refused"),
	}}
}

func gatewayTimeout() error {
	return &horizonclient.Error{Problem: problem.P{
		Type:   "https://stellar.org/horizon-errors/timeout",
		Title:  "Timeout",
		Status: 504,
	}}
}

func txFailed(txCode string, opCodes ...string) error {
	codes := map[string]interface{}{"transaction": txCode}
	if len(opCodes) > 0 {
		codes["operations"] = opCodes
	}
	return &horizonclient.Error{Problem: problem.P{
		Type:   "https://stellar.org/horizon-errors/transaction_failed",
		Title:  "Transaction Failed",
		Status: 400,
		Extras: map[string]interface{}{"result_codes": codes},
	}}
}

func (h *Horizon) AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unavailable {
		return horizon.Account{}, unreachable()
	}
	acct, ok := h.accounts[request.AccountID]
	if !ok {
		return horizon.Account{}, notFound()
	}
	out := horizon.Account{AccountID: request.AccountID, Sequence: acct.sequence}
	for _, key := range acct.order {
		out.Balances = append(out.Balances, *acct.balances[key])
	}
	return out, nil
}

func (h *Horizon) SubmitTransaction(tx *txnbuild.Transaction) (horizon.Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.submits++
	if h.unavailable {
		return horizon.Transaction{}, unreachable()
	}
	mode := FailMode(0)
	if h.failTimes > 0 {
		h.failTimes--
		mode = h.failMode
	}
	switch mode {
	case FailUnavailable:
		return horizon.Transaction{}, unreachable()
	case FailTimeoutDropped:
		return horizon.Transaction{}, gatewayTimeout()
	}
	resp, err := h.apply(tx)
	if err != nil {
		return horizon.Transaction{}, err
	}
	if mode == FailTimeoutApplied {
		return horizon.Transaction{}, gatewayTimeout()
	}
	return resp, nil
}

func (h *Horizon) apply(tx *txnbuild.Transaction) (horizon.Transaction, error) {
	hash, err := tx.HashHex(h.passphrase)
	if err != nil {
		return horizon.Transaction{}, txFailed("tx_malformed")
	}
	if _, ok := h.byHash[hash]; ok {
		// the network rejects a replay through the sequence number
		return horizon.Transaction{}, txFailed("tx_bad_seq")
	}

	source := tx.SourceAccount()
	src, ok := h.accounts[source.AccountID]
	if !ok {
		return horizon.Transaction{}, txFailed("tx_no_source_account")
	}
	if source.Sequence != src.sequence+1 {
		return horizon.Transaction{}, txFailed("tx_bad_seq")
	}
	now := h.now()
	if bounds := tx.Timebounds(); bounds.MaxTime != 0 && now.Unix() > bounds.MaxTime {
		return horizon.Transaction{}, txFailed("tx_too_late")
	}

	touched := []string{source.AccountID}
	for _, op := range tx.Operations() {
		switch o := op.(type) {
		case *txnbuild.Payment:
			dest, ok := h.accounts[o.Destination]
			if !ok {
				return horizon.Transaction{}, txFailed("tx_failed", "op_no_destination")
			}
			line, ok := dest.balances[o.Asset.GetCode()+":"+o.Asset.GetIssuer()]
			if !ok {
				return horizon.Transaction{}, txFailed("tx_failed", "op_no_trust")
			}
			current, _ := decimal.NewFromString(line.Balance)
			amount, _ := decimal.NewFromString(o.Amount)
			line.Balance = current.Add(amount).StringFixed(7)
			touched = append(touched, o.Destination)
		case *txnbuild.ChangeTrust:
			src.trust(o.Line.GetCode(), o.Line.GetIssuer(), o.Limit)
		default:
			return horizon.Transaction{}, txFailed("tx_failed", "op_not_supported")
		}
	}
	src.sequence = source.Sequence

	memo := ""
	memoType := "none"
	if m, ok := tx.Memo().(txnbuild.MemoText); ok {
		memo, memoType = string(m), "text"
	}
	resp := horizon.Transaction{
		Hash:            hash,
		Account:         source.AccountID,
		Memo:            memo,
		MemoType:        memoType,
		LedgerCloseTime: now.UTC(),
		Successful:      true,
	}
	h.byHash[hash] = len(h.records)
	h.records = append(h.records, record{tx: resp, accounts: touched})
	return resp, nil
}

func (h *Horizon) Transactions(request horizonclient.TransactionRequest) (horizon.TransactionsPage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unavailable {
		return horizon.TransactionsPage{}, unreachable()
	}
	if _, ok := h.accounts[request.ForAccount]; !ok && request.ForAccount != "" {
		return horizon.TransactionsPage{}, notFound()
	}
	var matched []horizon.Transaction
	for _, r := range h.records {
		for _, a := range r.accounts {
			if a == request.ForAccount {
				matched = append(matched, r.tx)
				break
			}
		}
	}
	if request.Order == horizonclient.OrderDesc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if request.Limit > 0 && int(request.Limit) < len(matched) {
		matched = matched[:request.Limit]
	}
	var page horizon.TransactionsPage
	page.Embedded.Records = matched
	return page, nil
}

func (h *Horizon) TransactionDetail(txHash string) (horizon.Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unavailable {
		return horizon.Transaction{}, unreachable()
	}
	idx, ok := h.byHash[txHash]
	if !ok {
		return horizon.Transaction{}, notFound()
	}
	return h.records[idx].tx, nil
}

// Funder creates accounts on the fake Horizon, like friendbot on testnet.
type Funder struct {
	Horizon *Horizon
	mu      sync.Mutex
	calls   int
	err     error
}

func NewFunder(h *Horizon) *Funder {
	return &Funder{Horizon: h}
}

// FailWith makes every Fund call return err until cleared with nil.
func (f *Funder) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Funder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Funder) Fund(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if !f.Horizon.CreateAccount(address) {
		return errors.New("friendbot error 400: account already funded")
	}
	return nil
}
