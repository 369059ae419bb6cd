// Package bootstrap wires the shared collaborators the commands
// depend on from the processed environment.
package bootstrap

import (
	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/authority"
	"github.com/strand-cloud/strand/internal/ledger"
	"github.com/strand-cloud/strand/internal/notify"
	"github.com/strand-cloud/strand/internal/scheduler"
	"github.com/strand-cloud/strand/internal/scheduler/local"
	"github.com/strand-cloud/strand/internal/scheduler/slurm"
	"github.com/strand-cloud/strand/pkg/db"
	"github.com/strand-cloud/strand/pkg/env"
)

// OpenLedger connects to the configured ledger database, ensures
// the schema, and returns the ledger. Failure to open the ledger
// aborts the whole invocation.
func OpenLedger() (*ledger.Ledger, error) {
	gdb, err := db.Connection()
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(gdb); err != nil {
		return nil, errors.Wrap(err, "ledger migration failed")
	}

	vars := env.Variables()

	return ledger.New(
		gdb,
		ledger.WithRetry(vars.LedgerRetries, vars.LedgerRetryBackoff),
	), nil
}

// Authority builds the remote status authority client. Missing
// credentials are a fatal configuration error.
func Authority() (authority.Client, error) {
	vars := env.Variables()

	return authority.NewHTTPClient(authority.Config{
		URL:     vars.AuthorityURL,
		Token:   vars.AuthorityToken,
		Timeout: vars.AuthorityTimeout,
		Retries: vars.AuthorityRetries,
	})
}

// Notifier builds the operator notification channel.
func Notifier() notify.Notifier {
	return notify.New(env.Variables().NotifyWebhook, nil)
}

// Schedulers returns the configured job backends.
func Schedulers() scheduler.ClientSet {
	return scheduler.ClientSet{
		Local: local.New(),
		Batch: slurm.New(),
	}
}

// SchedulerMap returns the backends keyed by the names used in
// workflow configuration.
func SchedulerMap(set scheduler.ClientSet) map[string]scheduler.Client {
	return map[string]scheduler.Client{
		local.Name: set.Local,
		slurm.Name: set.Batch,
	}
}
