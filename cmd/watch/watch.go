package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"github.com/strand-cloud/strand/internal/bootstrap"
	"github.com/strand-cloud/strand/internal/reconcile"
	"github.com/strand-cloud/strand/pkg/env"
	"github.com/strand-cloud/strand/pkg/log"
)

const (
	usage   = "watch"
	short   = "Run reconciliation passes on a schedule"
	long    = "This command stays resident and runs a reconciliation pass on the configured cron schedule, for machines without an external cron"
	example = "strand watch"
)

var (
	// Cmd is the watch command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"w"},
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

	schedule := env.Variables().ReconcileSchedule

	c := cron.New()
	if err := c.AddFunc(schedule, func() {
		if err := reconciler.Pass(context.Background(), engineFilter); err != nil {
			log.Error("scheduled reconcile pass failed", "error", err)
		}
	}); err != nil {
		return err
	}

	log.Info("watching ledger", "schedule", schedule)
	c.Start()
	defer c.Stop()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	s := <-signalChan

	log.Info("shutting down", "signal", s)

	return nil
}
