// Package gate decides whether a new analysis job may be launched
// for a scope and workflow. It consults both the remote status
// authority and the local ledger; the two can transiently disagree,
// so both checks are applied.
package gate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/authority"
	"github.com/strand-cloud/strand/internal/ledger"
	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/internal/scheduler"
	"github.com/strand-cloud/strand/pkg/log"
)

// Request asks whether one (scope, workflow) launch may proceed.
type Request struct {
	Scope    string
	Workflow string

	RestartFailed   bool
	RestartFinished bool
	RestartRunning  bool
}

// Decision is the gate's verdict. Attention marks skips that need
// a human to look at the scope.
type Decision struct {
	Allow     bool
	Reason    string
	Attention bool
}

// Gate is the launch decision function.
type Gate struct {
	ledger     *ledger.Ledger
	authority  authority.Client
	schedulers scheduler.ClientSet
}

// New builds a Gate over its collaborators.
func New(l *ledger.Ledger, a authority.Client, s scheduler.ClientSet) *Gate {
	return &Gate{ledger: l, authority: a, schedulers: s}
}

// Check runs the launch decision for one scope and workflow. An
// error means the decision could not be made (transient authority
// or ledger failure); the caller skips the scope this pass.
func (g *Gate) Check(ctx context.Context, req *Request) (*Decision, error) {
	status, err := g.authority.GetStatus(ctx, req.Scope)
	if err != nil {
		return nil, errors.Wrap(err, "authority status check failed")
	}

	switch {
	case status.TerminalSuccess() && !req.RestartFinished:
		log.Info(
			"analysis already finished, skipping",
			"scope", req.Scope,
			"workflow", req.Workflow,
			"status", status,
		)
		return &Decision{Reason: "already finished"}, nil

	case status.InProgress() && !req.RestartRunning:
		log.Info(
			"analysis already in progress, skipping",
			"scope", req.Scope,
			"workflow", req.Workflow,
			"status", status,
		)
		return &Decision{Reason: "already running"}, nil

	case status.InProgress() && req.RestartRunning:
		if err := g.killTracked(ctx, req.Scope, req.Workflow); err != nil {
			return nil, err
		}

	case status.TerminalFailure() && !req.RestartFailed:
		log.Warn(
			"previous analysis failed, manual attention required",
			"scope", req.Scope,
			"workflow", req.Workflow,
			"status", status,
		)
		return &Decision{Reason: "previously failed", Attention: true}, nil
	}

	// Belt and suspenders with the status checks above: the ledger
	// row is the at-most-one-concurrent-job guarantee even when the
	// authority lags behind reality.
	exists, err := g.ledger.Exists(req.Scope, req.Workflow)
	if err != nil {
		return nil, errors.Wrap(err, "ledger check failed")
	}
	if exists {
		log.Info(
			"launch already tracked locally, skipping",
			"scope", req.Scope,
			"workflow", req.Workflow,
		)
		return &Decision{Reason: "launch already tracked"}, nil
	}

	return &Decision{Allow: true}, nil
}

// RecordLaunch persists a successful launch: ledger insert first,
// then the optimistic in-progress status on the authority. Insert
// first, because if the remote update fails the ledger row is the
// only record that a job exists and the reconciler will repair the
// authority on its next pass.
func (g *Gate) RecordLaunch(ctx context.Context, row *models.LedgerRow) error {
	if err := g.ledger.Insert(row); err != nil {
		return errors.Wrap(err, "record launch")
	}

	running := models.RunningFor(row.ScopePath)
	if err := g.authority.SetStatus(ctx, row.ScopePath, running, nil); err != nil {
		log.Warn(
			"optimistic status update failed, reconciler will repair",
			"scope", row.ScopePath,
			"workflow", row.Workflow,
			"status", running,
			"error", err,
		)
	}

	return nil
}

// killTracked terminates the previously tracked job for the scope
// before an operator-requested restart, and releases its ledger
// row so the relaunch can be recorded.
func (g *Gate) killTracked(ctx context.Context, scope, workflow string) error {
	row, err := g.ledger.Get(scope, workflow)
	if err != nil {
		return errors.Wrap(err, "lookup tracked job")
	}
	if row == nil {
		log.Warn(
			"restart requested but no tracked job found",
			"scope", scope,
			"workflow", workflow,
		)
		return nil
	}

	kctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := g.schedulers.For(row).Kill(kctx, row.Handle()); err != nil {
		return errors.Wrapf(err, "kill tracked job %v", row.Handle())
	}

	log.Warn(
		"killed running job for operator-requested restart",
		"scope", scope,
		"workflow", workflow,
		"handle", row.Handle(),
	)

	if err := g.ledger.Delete(scope, workflow); err != nil {
		return errors.Wrap(err, "release tracked job")
	}

	return nil
}
