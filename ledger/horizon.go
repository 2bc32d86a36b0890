package ledger

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// HorizonClient is the part of *horizonclient.Client the gateway uses.
type HorizonClient interface {
	AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (horizon.Transaction, error)
	Transactions(request horizonclient.TransactionRequest) (horizon.TransactionsPage, error)
	TransactionDetail(txHash string) (horizon.Transaction, error)
}

func NewHorizonClient(cfg config.LedgerConfig) *horizonclient.Client {
	return &horizonclient.Client{
		HorizonURL: cfg.Horizon(),
		HTTP:       &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// do runs a blocking Horizon call and gives up when ctx is done.
// The call itself keeps running until the HTTP client timeout.
func do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func isNotFound(err error) bool {
	if horizonclient.IsNotFoundError(err) {
		return true
	}
	if hErr := horizonclient.GetError(err); hErr != nil {
		return hErr.Problem.Status == http.StatusNotFound
	}
	return false
}

func resultCodes(hErr *horizonclient.Error) string {
	codes, err := hErr.ResultCodes()
	if err != nil || codes == nil {
		return ""
	}
	parts := make([]string, 0, len(codes.OperationCodes)+1)
	if codes.TransactionCode != "" {
		parts = append(parts, codes.TransactionCode)
	}
	for _, c := range codes.OperationCodes {
		if c != "" && c != "op_success" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ",")
}

// readError classifies a failed lookup. Reads are safe to repeat.
func readError(op string, err error) *Error {
	return newError(KindNetworkUnavailable, op, err)
}

// submitError classifies a failed submission. Anything that may have reached
// Horizon is OutcomeUnknown.
func submitError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindOutcomeUnknown, op, err)
	}
	if hErr := horizonclient.GetError(err); hErr != nil {
		switch status := hErr.Problem.Status; {
		case status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests:
			return newError(KindNetworkUnavailable, op, err)
		case status == http.StatusGatewayTimeout || status >= 500:
			return newError(KindOutcomeUnknown, op, err)
		default:
			lerr := newError(KindRejectedByNetwork, op, err)
			lerr.Codes = resultCodes(hErr)
			return lerr
		}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return newError(KindNetworkUnavailable, op, err)
	}
	return newError(KindOutcomeUnknown, op, err)
}
