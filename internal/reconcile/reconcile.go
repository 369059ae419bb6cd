// Package reconcile closes the loop between locally tracked jobs
// and the remote status authority. One pass sweeps every ledger
// row, determines whether the job terminated, pushes the resulting
// status remotely, and removes the row only after the push
// succeeded. Silence is never treated as success: a job that
// vanished without writing its completion signal is failed.
package reconcile

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/authority"
	"github.com/strand-cloud/strand/internal/ledger"
	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/internal/notify"
	"github.com/strand-cloud/strand/internal/qc"
	"github.com/strand-cloud/strand/internal/scheduler"
	"github.com/strand-cloud/strand/pkg/log"
)

// Reconciler runs reconciliation passes over the ledger.
type Reconciler struct {
	ledger     *ledger.Ledger
	authority  authority.Client
	schedulers scheduler.ClientSet
	notifier   notify.Notifier

	// statusTimeout bounds each liveness query so one hung
	// scheduler call cannot stall the whole pass.
	statusTimeout time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStatusTimeout overrides the per-row liveness query bound.
func WithStatusTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.statusTimeout = d }
}

// New builds a Reconciler over its collaborators.
func New(l *ledger.Ledger, a authority.Client, s scheduler.ClientSet, n notify.Notifier, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:        l,
		authority:     a,
		schedulers:    s,
		notifier:      n,
		statusTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pass reconciles every tracked job, optionally filtered to one
// engine. Scopes are independent: a failure on one row is logged
// and retried next pass while the rest of the pass proceeds. Only
// a failure to scan the ledger itself aborts the pass.
func (r *Reconciler) Pass(ctx context.Context, engineFilter string) error {
	rows, err := r.ledger.AllRows(engineFilter)
	if err != nil {
		return errors.Wrap(err, "reconcile pass aborted")
	}

	log.Info("reconcile pass starting", "tracked", len(rows))

	for _, row := range rows {
		if err := r.reconcileRow(ctx, row); err != nil {
			log.Error(
				"reconciliation failed, will retry next pass",
				"scope", row.ScopePath,
				"workflow", row.Workflow,
				"error", err,
			)
		}
	}

	return nil
}

func (r *Reconciler) reconcileRow(ctx context.Context, row *models.LedgerRow) error {
	code, found, err := readMarker(row)
	if err != nil {
		return err
	}

	if found {
		if code == 0 {
			return r.publishSuccess(ctx, row)
		}
		return r.publishFailure(ctx, row, "exit code "+strconv.Itoa(code))
	}

	// No completion signal yet: ask the handle's owning backend.
	sctx, cancel := context.WithTimeout(ctx, r.statusTimeout)
	defer cancel()

	status, err := r.schedulers.For(row).Status(sctx, row.Handle())
	if err != nil {
		return errors.Wrap(err, "liveness check failed")
	}

	if status.Alive() {
		return r.verifyRunning(ctx, row)
	}

	// Job vanished: the backend no longer reports it alive and no
	// exit code was ever written. Treated as failure, never left
	// ambiguous. Notify only once the push succeeded, so a row that
	// survives a failed push does not re-page the operator every pass.
	if err := r.publishFailure(ctx, row, "vanished without completion signal"); err != nil {
		return err
	}

	r.notifier.Notify(
		ctx,
		notify.SeverityError,
		row.ScopePath,
		row.Workflow,
		"job vanished without completion signal, marked failed",
	)

	return nil
}

// publishSuccess pushes the terminal success status, including the
// aggregated QC payload for run-level scopes, then deletes the row.
// A run whose QC aggregation fails is marked data-failed instead;
// its numbers are incomplete and must not be published.
func (r *Reconciler) publishSuccess(ctx context.Context, row *models.LedgerRow) error {
	var extra map[string]interface{}

	if models.RunLevel(row.ScopePath) {
		payload, err := qc.AggregateRun(row)
		if err != nil {
			log.Error(
				"qc aggregation failed, marking run data-failed",
				"scope", row.ScopePath,
				"workflow", row.Workflow,
				"error", err,
			)
			if perr := r.push(ctx, row, models.StatusDataFailed, nil); perr != nil {
				return perr
			}
			r.notifier.Notify(
				ctx,
				notify.SeverityError,
				row.ScopePath,
				row.Workflow,
				"qc aggregation failed: "+err.Error(),
			)
			return nil
		}
		extra = payload
	}

	return r.push(ctx, row, models.SuccessFor(row.ScopePath), extra)
}

func (r *Reconciler) publishFailure(ctx context.Context, row *models.LedgerRow, reason string) error {
	log.Warn(
		"job failed",
		"scope", row.ScopePath,
		"workflow", row.Workflow,
		"reason", reason,
	)

	return r.push(ctx, row, models.FailureFor(row.ScopePath), nil)
}

// push writes the terminal status remotely and deletes the ledger
// row only after the write succeeded. On push failure the row is
// left in place for the next pass; there is no path out of the
// ledger that skips the authority.
func (r *Reconciler) push(ctx context.Context, row *models.LedgerRow, status models.Status, extra map[string]interface{}) error {
	if err := r.authority.SetStatus(ctx, row.ScopePath, status, extra); err != nil {
		return errors.Wrapf(err, "push %v", status)
	}

	if err := r.ledger.Delete(row.ScopePath, row.Workflow); err != nil {
		return errors.Wrap(err, "delete after ack")
	}

	log.Info(
		"job reconciled",
		"scope", row.ScopePath,
		"workflow", row.Workflow,
		"status", status,
	)

	return nil
}

// verifyRunning self-heals the authority when it disagrees with a
// job known to be alive, indicating an earlier missed update. The
// ledger row is not touched.
func (r *Reconciler) verifyRunning(ctx context.Context, row *models.LedgerRow) error {
	status, err := r.authority.GetStatus(ctx, row.ScopePath)
	if err != nil {
		return errors.Wrap(err, "verify running status")
	}

	if status.InProgress() {
		return nil
	}

	running := models.RunningFor(row.ScopePath)

	log.Warn(
		"authority disagrees with live job, correcting",
		"scope", row.ScopePath,
		"workflow", row.Workflow,
		"remote", status,
		"corrected", running,
	)

	if err := r.authority.SetStatus(ctx, row.ScopePath, running, nil); err != nil {
		return errors.Wrap(err, "correct running status")
	}

	return nil
}

// readMarker reads the job's exit-code marker. found is false when
// the job has not written it yet.
func readMarker(row *models.LedgerRow) (code int, found bool, err error) {
	buf, err := os.ReadFile(row.ExitCodeMarker())
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "read completion signal")
	}

	code, err = strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return 0, false, errors.Wrapf(err, "unparseable completion signal %v", row.ExitCodeMarker())
	}

	return code, true, nil
}
