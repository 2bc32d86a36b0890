package ledger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/foodtrust/foodtrust_backend/config"
)

// Funder creates and funds a fresh account on networks that offer it.
type Funder interface {
	Fund(ctx context.Context, address string) error
}

type friendbot struct {
	baseURL string
	http    *http.Client
}

// NewFunder returns the friendbot funder on testnet and nil elsewhere.
func NewFunder(cfg config.LedgerConfig) Funder {
	if !cfg.IsTestnet() || strings.TrimSpace(cfg.FriendbotURL) == "" {
		return nil
	}
	return &friendbot{
		baseURL: strings.TrimRight(cfg.FriendbotURL, "/"),
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (f *friendbot) Fund(ctx context.Context, address string) error {
	endpoint := f.baseURL + "?" + url.Values{"addr": {address}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return newError(KindNetworkUnavailable, "friendbot", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &fundingRefused{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return nil
}

// fundingRefused means friendbot answered but did not fund, e.g. the account exists.
type fundingRefused struct {
	status int
	body   string
}

func (e *fundingRefused) Error() string {
	return fmt.Sprintf("friendbot error %d: %s", e.status, e.body)
}
