package config

import (
	"os"
	"strings"
)

// SelfHealLedgerAccounts lets issuance fund a destination account that does not exist
// on the network yet (created off-band, or funding failed at registration).
//
// Set via env:
// - LEDGER_SELF_HEAL=false to disable (default enabled)
func SelfHealLedgerAccounts() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_SELF_HEAL")))
	return !(v == "0" || v == "false" || v == "no" || v == "n")
}

// StoreBackend selects the persistence collaborator.
//
// Set via env:
// - STORE_BACKEND=sql (default, uses DB_DRIVER) or memory
func StoreBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if v == "" {
		return "sql"
	}
	return v
}
