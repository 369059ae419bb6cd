package reconcile

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/strand-cloud/strand/internal/bootstrap"
	"github.com/strand-cloud/strand/internal/reconcile"
)

const (
	usage   = "reconcile"
	short   = "Run one reconciliation pass over the local job ledger"
	long    = "This command sweeps every tracked job, resolves completed, failed and vanished jobs against the remote status authority, and removes ledger rows the authority has acknowledged"
	example = "strand reconcile"
)

var (
	// Cmd is the reconcile command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"r"},
		Example: example,
		RunE:    run,
	}

	engineFilter string
)

func init() {
	Cmd.Flags().StringVar(&engineFilter, "engine", "", "reconcile only jobs launched by this engine")
}

func run(cmd *cobra.Command, args []string) error {
	auth, err := bootstrap.Authority()
	if err != nil {
		return err
	}

	ldgr, err := bootstrap.OpenLedger()
	if err != nil {
		return err
	}

	reconciler := reconcile.New(
		ldgr,
		auth,
		bootstrap.Schedulers(),
		bootstrap.Notifier(),
	)

	return reconciler.Pass(context.Background(), engineFilter)
}
