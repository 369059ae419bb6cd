package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// LedgerRow records one in-flight job launched from this machine.
// Its existence is the local belief that the workflow is currently
// running for the scope; it is deleted only after the remote status
// authority has acknowledged a terminal status.
type LedgerRow struct {
	ScopePath   string `gorm:"primaryKey" json:"scope_path"`
	Workflow    string `gorm:"primaryKey" json:"workflow"`
	Engine      string `gorm:"index;not null" json:"engine"`
	AnalysisDir string `gorm:"not null" json:"analysis_dir"`

	// Exactly one of ProcessID and SchedulerJobID is populated,
	// depending on whether the job runs locally or on the batch
	// scheduler.
	ProcessID      int    `json:"process_id,omitempty"`
	SchedulerJobID string `json:"scheduler_job_id,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName keeps the table name stable across gorm versions.
func (LedgerRow) TableName() string {
	return "ledger_rows"
}

// Local reports whether the job runs as a local process rather
// than a scheduler job.
func (r *LedgerRow) Local() bool {
	return r.SchedulerJobID == ""
}

// Handle returns the job handle usable with the owning scheduler
// client.
func (r *LedgerRow) Handle() string {
	if r.Local() {
		return strconv.Itoa(r.ProcessID)
	}
	return r.SchedulerJobID
}

// LedgerRows is a scan result from the ledger.
type LedgerRows []*LedgerRow
