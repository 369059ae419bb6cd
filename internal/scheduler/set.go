package scheduler

import "github.com/strand-cloud/strand/internal/models"

// ClientSet holds the configured backends and picks the one owning
// a ledger row's job handle.
type ClientSet struct {
	Local Client
	Batch Client
}

// For returns the backend that owns the row's handle.
func (s ClientSet) For(row *models.LedgerRow) Client {
	if row.Local() {
		return s.Local
	}
	return s.Batch
}
