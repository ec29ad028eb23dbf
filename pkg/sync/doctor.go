package sync

import (
	"context"
	"fmt"

	"github.com/maxfraieho/membridge/pkg/localdb"
	"github.com/maxfraieho/membridge/pkg/types"
)

// Report is the read-only diagnostic Doctor returns: local DB
// integrity, lock state, and lease state for one project. Nothing in
// Doctor writes to the object store or the local DB.
type Report struct {
	Project     string          `json:"project"`
	CanonicalID string          `json:"canonical_id"`
	Integrity   string          `json:"integrity,omitempty"`
	IntegrityOK bool            `json:"integrity_ok"`
	Counts      *types.DBCounts `json:"counts,omitempty"`
	Lock        *types.Lock     `json:"lock,omitempty"`
	Lease       *types.Lease    `json:"lease,omitempty"`
}

// Doctor runs the local DB integrity check and reports lock/lease
// state for project, with no side effects (spec §12, supplemented
// from the original doctor command).
func (e *Engine) Doctor(ctx context.Context, project string) (Report, error) {
	canonicalID := types.CanonicalID(project)
	report := Report{Project: project, CanonicalID: canonicalID}

	integrity, err := localdb.IntegrityCheck(e.cfg.DBPath)
	if err != nil {
		return report, fmt.Errorf("sync: doctor: integrity check: %w", err)
	}
	report.Integrity = integrity
	report.IntegrityOK = integrity == localdb.IntegrityOK

	if counts, err := localdb.Counts(e.cfg.DBPath); err == nil {
		report.Counts = &counts
	}

	if lock, err := e.locks.Inspect(ctx, canonicalID); err == nil {
		report.Lock = lock
	}

	if e.leadership != nil {
		if lease, err := e.leadership.Inspect(ctx, canonicalID); err == nil {
			report.Lease = lease
		}
	}

	return report, nil
}
