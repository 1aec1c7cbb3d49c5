// Package store implements the Snapshot Store (C1) and the Repository
// interface consumed by the rest of the pipeline (§6). Reads are always
// ordered by CreatedAt DESC; writes are atomic; read-your-writes holds
// within a single project context (§4.1).
package store

import (
	"context"
	"time"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
)

// SnapshotStore is the C1 contract.
type SnapshotStore interface {
	// PutSnapshot persists a new immutable Snapshot and returns it with
	// its assigned ID and timestamp.
	PutSnapshot(ctx context.Context, owner domain.OwnerRef, projectID string, meta domain.SnapshotMetadata, success bool, errMsg string) (*domain.Snapshot, error)

	// LatestSnapshot returns the most recent snapshot for owner, or nil
	// if none exists.
	LatestSnapshot(ctx context.Context, owner domain.OwnerRef) (*domain.Snapshot, error)

	// RecentSnapshots returns up to n snapshots for owner, newest first.
	RecentSnapshots(ctx context.Context, owner domain.OwnerRef, n int) ([]*domain.Snapshot, error)

	// ListOwnersMissingSnapshots returns the owners under projectID that
	// have never had a snapshot written.
	ListOwnersMissingSnapshots(ctx context.Context, projectID string, allOwners []domain.OwnerRef) ([]domain.OwnerRef, error)
}

// ProjectGraph is the result of Repository.FindProjectWithGraph: a
// Project together with its owned Products and referenced Competitors,
// resolved through the repository rather than held as an object graph
// across suspension points (§9).
type ProjectGraph struct {
	Project     domain.Project
	Products    []domain.Product
	Competitors []domain.Competitor
}

// Repository is the storage interface consumed by the core (§6). It is
// intentionally narrow: the core never sees a persistence schema, only
// these operations.
type Repository interface {
	FindProjectWithGraph(ctx context.Context, projectID string) (*ProjectGraph, error)

	// CreateProject inserts a new Project, rejecting the insert with an
	// errkind.KindDuplicate error if one already exists for the same
	// {UserID, Name} pair (§5: "a distributed lock ... guards concurrent
	// creation of duplicate projects"). This is the storage layer's
	// authoritative half of that guard; internal/project adds the
	// in-process fast-reject half.
	CreateProject(ctx context.Context, p domain.Project) (*domain.Project, error)

	SnapshotStore

	CreateReport(ctx context.Context, r domain.Report) (*domain.Report, error)
	CreateReportVersion(ctx context.Context, v domain.ReportVersion) (*domain.ReportVersion, error)

	// UpdateReportStatus is the authoritative guard for I1: it MUST
	// refuse to set status=COMPLETED unless at least one ReportVersion
	// with non-empty content exists for reportID.
	UpdateReportStatus(ctx context.Context, reportID string, status domain.ReportStatus) error

	GetReport(ctx context.Context, reportID string) (*domain.Report, error)
	ListReportVersions(ctx context.Context, reportID string) ([]*domain.ReportVersion, error)

	ListReportSchedules(ctx context.Context, projectID string) ([]*domain.ReportSchedule, error)
	UpsertReportSchedule(ctx context.Context, s domain.ReportSchedule) (*domain.ReportSchedule, error)
}

// Fresh reports whether snapshot s counts as fresh under I4: capture
// succeeded and age <= freshWindow, evaluated against now.
func Fresh(s *domain.Snapshot, freshWindow time.Duration, now time.Time) bool {
	if s == nil || !s.CaptureSuccess {
		return false
	}
	return s.Age(now) <= freshWindow
}

// ErrNotFound is wrapped into an errkind.KindOwnerNotFound
// *errkind.PipelineError by store implementations when an owner
// reference or report id is unknown.
var ErrNotFound = errUnknownEntity

// NotFound builds the errkind.KindOwnerNotFound error store
// implementations return for an unresolvable reference (§4.1: "fatal
// for the caller").
func NotFound(correlationID string) error {
	return errkind.New("store", errkind.KindOwnerNotFound, correlationID, ErrNotFound)
}
