// certctl is the operator tool for the certification service: issuer key
// setup on testnet and issuance recovery after a crashed or timed out approve.
//
// Ledger settings come from the same STELLAR_* env vars as the server.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/ledger"
)

const programName = "certctl"

var globalFlags = struct {
	debug bool
}{}

func commonRun() *logrus.Logger {
	logger := config.GetLogger()
	if globalFlags.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newGateway(logger *logrus.Logger) (*ledger.Gateway, config.LedgerConfig, error) {
	cfg, err := config.LoadLedgerConfig()
	if err != nil {
		return nil, cfg, fmt.Errorf("ledger config: %w", err)
	}
	g, err := ledger.NewGateway(cfg, ledger.NewHorizonClient(cfg), ledger.NewFunder(cfg), ledger.WithLogger(logger))
	if err != nil {
		return nil, cfg, err
	}
	return g, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Operate the certification issuer and recover issuances",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(keypairCommand())
	rootCmd.AddCommand(fundCommand())
	rootCmd.AddCommand(trustlineCommand())
	rootCmd.AddCommand(accountCommand())
	rootCmd.AddCommand(recoverCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
