// Package authority is the client side of the fleet-wide status
// service: the eventually-consistent, remote source of truth for
// per-entity analysis status. The core only ever consumes the
// operations declared here; the wire format is an implementation
// detail of the HTTP client.
package authority

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/models"
)

// ErrNotFound is returned when the authority has no record for the
// requested entity.
var ErrNotFound = errors.New("authority: not found")

// StatusError carries the HTTP-like status code surfaced by the
// authority so callers can branch on it.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("authority responded %d: %s", e.Code, e.Message)
}

// IsAlreadyExists reports whether err is the authority's 400
// already-exists response, which create-or-update callers handle
// distinctly from other codes.
func IsAlreadyExists(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == 400
}

// Client is the set of authority operations the core depends on.
// Timeouts and network failures are transient: callers must never
// interpret them as "not running".
type Client interface {
	// GetStatus returns the current analysis status for the scope.
	GetStatus(ctx context.Context, scope string) (models.Status, error)

	// SetStatus writes the analysis status for the scope, with
	// optional extra fields (for example aggregated QC metrics on
	// a successful run).
	SetStatus(ctx context.Context, scope string, status models.Status, extra map[string]interface{}) error

	// LibprepForFlowcell returns the library prep already
	// associated with the (project, sample, flowcell) triple, or
	// ErrNotFound.
	LibprepForFlowcell(ctx context.Context, projectID, sample, flowcellID string) (string, error)

	// ListLibpreps returns all library preps known for the sample.
	ListLibpreps(ctx context.Context, projectID, sample string) ([]string, error)
}
