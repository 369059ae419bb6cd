package env

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/strand-cloud/strand/pkg/log"
)

var variables = new(Environment)

// Process the environment variables set for strand.
func Process() error {
	if err := envconfig.Process("strand", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevel(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by strand.
type Environment struct {
	LogLevel string `default:"info"`

	// Ledger storage. DatabaseType is "sqlite" or "postgres";
	// LedgerPath is the sqlite file, DatabaseDSN the postgres DSN.
	DatabaseType       string        `default:"sqlite"`
	LedgerPath         string        `default:"/var/lib/strand/ledger.db"`
	DatabaseDSN        string        `default:""`
	LedgerRetries      int           `default:"5"`
	LedgerRetryBackoff time.Duration `default:"3s"`

	// Remote status authority.
	AuthorityURL     string        `default:""`
	AuthorityToken   string        `default:""`
	AuthorityTimeout time.Duration `default:"30s"`
	AuthorityRetries int           `default:"3"`

	// Operator notifications. Empty disables the webhook and
	// notifications are logged only.
	NotifyWebhook string `default:""`

	// Workflow/engine configuration file.
	WorkflowConfig string `default:"/etc/strand/workflows.yaml"`

	// Reconcile schedule used by the watch command.
	ReconcileSchedule string `default:"@every 15m"`
}
