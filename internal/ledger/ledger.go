// Package ledger is the machine-local record of in-flight jobs.
// One row per (scope, workflow); the row is the at-most-one
// concurrent job gate and is removed only after the remote status
// authority has acknowledged a terminal status.
package ledger

import (
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/pkg/log"
)

// ErrDuplicate is returned by Insert when a row already exists for
// the (scope, workflow) key: another process owns the launch.
var ErrDuplicate = errors.New("ledger: row already exists")

// Ledger wraps the local job table. It is shared by the small
// number of concurrent strand invocations on one machine, not
// across the fleet.
type Ledger struct {
	db      *gorm.DB
	retries int
	backoff time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetry overrides the bounded retry used to absorb transient
// storage lock contention.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(l *Ledger) {
		l.retries = attempts
		l.backoff = backoff
	}
}

// New returns a Ledger over an open gorm connection.
func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, retries: 5, backoff: 3 * time.Second}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Exists reports whether a row is tracked for the scope and
// workflow.
func (l *Ledger) Exists(scope, workflow string) (bool, error) {
	var count int64

	err := l.withRetry(func() error {
		return l.db.Model(&models.LedgerRow{}).
			Where("scope_path = ? AND workflow = ?", scope, workflow).
			Count(&count).Error
	})
	if err != nil {
		return false, errors.Wrap(err, "ledger existence check failed")
	}

	return count > 0, nil
}

// Get returns the tracked row for the scope and workflow, or nil
// when none exists.
func (l *Ledger) Get(scope, workflow string) (*models.LedgerRow, error) {
	var row models.LedgerRow

	err := l.withRetry(func() error {
		return l.db.
			Where("scope_path = ? AND workflow = ?", scope, workflow).
			First(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "ledger lookup failed")
	}

	return &row, nil
}

// Insert records a newly launched job. Returns ErrDuplicate when a
// row with the same key already exists; callers must treat that as
// "someone else already launched it".
func (l *Ledger) Insert(row *models.LedgerRow) error {
	err := l.withRetry(func() error {
		return l.db.Create(row).Error
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return errors.Wrap(err, "ledger insert failed")
	}

	return nil
}

// Delete removes the row for the scope and workflow. Idempotent:
// deleting an absent row is not an error.
func (l *Ledger) Delete(scope, workflow string) error {
	err := l.withRetry(func() error {
		return l.db.
			Where("scope_path = ? AND workflow = ?", scope, workflow).
			Delete(&models.LedgerRow{}).Error
	})
	if err != nil {
		return errors.Wrap(err, "ledger delete failed")
	}

	return nil
}

// AllRows scans the full ledger, optionally filtered to one engine.
func (l *Ledger) AllRows(engine string) (models.LedgerRows, error) {
	var rows models.LedgerRows

	err := l.withRetry(func() error {
		q := l.db.Model(&models.LedgerRow{})
		if engine != "" {
			q = q.Where("engine = ?", engine)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "ledger scan failed")
	}

	return rows, nil
}

// withRetry runs op, retrying a bounded number of times when the
// storage engine reports lock contention. After exhausting retries
// the last error is returned and the caller must not assume the
// write happened.
func (l *Ledger) withRetry(op func() error) error {
	var err error

	for attempt := 1; attempt <= l.retries; attempt++ {
		if err = op(); err == nil || !busy(err) {
			return err
		}

		log.Warn(
			"ledger busy, retrying",
			"attempt", attempt,
			"of", l.retries,
			"error", err,
		)
		time.Sleep(l.backoff)
	}

	return err
}

func busy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}
