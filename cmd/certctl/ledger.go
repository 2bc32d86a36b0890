package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stellar/go/keypair"

	"github.com/foodtrust/foodtrust_backend/ledger"
)

func keypairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keypair",
		Short: "Generate a random ledger keypair, e.g. for STELLAR_ISSUER_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := keypair.Random()
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"address": kp.Address(), "secret": kp.Seed()})
		},
	}
}

func fundCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <address>",
		Short: "Create and fund an account through friendbot (testnet only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()
			g, cfg, err := newGateway(logger)
			if err != nil {
				return err
			}
			if !g.ValidateAddress(args[0]) {
				return ledger.ErrInvalidAddress
			}
			funder := ledger.NewFunder(cfg)
			if funder == nil {
				return errors.New("funding is only available on testnet")
			}
			if err := funder.Fund(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.WithField("address", args[0]).Info("account funded")
			return nil
		},
	}
}

func trustlineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trustline <holder-secret> <asset-code>",
		Short: "Open a trustline from the holder to a certification asset of the issuer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := newGateway(commonRun())
			if err != nil {
				return err
			}
			res, err := g.EstablishTrustline(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func accountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "account [address]",
		Short: "Show balances of an account, the issuer by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := newGateway(commonRun())
			if err != nil {
				return err
			}
			address := g.IssuerAddress()
			if len(args) == 1 {
				address = args[0]
			}
			if address == "" {
				return fmt.Errorf("no address given and %w", ledger.ErrIssuerNotConfigured)
			}
			view, err := g.GetAccount(cmd.Context(), address)
			if err != nil {
				return err
			}
			return printJSON(view)
		},
	}
}
