package main

import (
	"github.com/spf13/cobra"

	"github.com/foodtrust/foodtrust_backend/config"
	"github.com/foodtrust/foodtrust_backend/store"
	"github.com/foodtrust/foodtrust_backend/workflow"
)

func recoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <certification-id>",
		Short: "Resolve a started issuance against the ledger without reissuing",
		Long: "recover looks up the recorded issuance attempt of a pending certification.\n" +
			"A transaction found on the ledger finalizes the approval; an expired one is\n" +
			"marked failed so the next approve reissues it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()
			g, _, err := newGateway(logger)
			if err != nil {
				return err
			}
			config.ConnectDatabaseWithRetry()
			db := config.GetDB()

			locks := workflow.Locker(workflow.NewLocalLocker(config.LockWait()))
			if config.ConnectRedisWithRetry(cmd.Context()) {
				locks = workflow.NewRedisLocker(config.GetRedisLock(), config.LockTTL(), config.LockWait())
			} else if config.DatabaseDriver() == "mysql" {
				locks = workflow.NewAdvisoryLocker(db, config.LockWait())
			}

			engine := workflow.NewEngine(store.NewGormStore(db), g, locks, workflow.WithLogger(logger))
			res, err := engine.CheckIssuance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}
