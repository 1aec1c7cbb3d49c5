// Package validator implements the Snapshot Validator (C4, §4.4): pure
// functions over store.Repository data that verify existence,
// freshness, and metadata quality, with no side effects of their own.
package validator

import (
	"context"
	"time"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/store"
)

const staleAfter = 7 * 24 * time.Hour

// Existence is the result of VerifyExists.
type Existence struct {
	Exists   bool
	AgeDays  float64
	IsRecent bool
}

// Metadata is the result of ValidateMetadata.
type Metadata struct {
	IsValid     bool
	HasContent  bool
	HasMetadata bool
	Errors      []string
	Warnings    []string
}

// ProjectCheck is the result of CheckProject.
type ProjectCheck struct {
	Total            int
	WithValid        int
	WithStale        int
	WithoutSnapshots int
	WithoutValid     int
}

// Validator checks C1 data on behalf of C6/C7. It holds no state of
// its own beyond the repository it reads.
type Validator struct {
	repo        store.Repository
	freshWindow time.Duration
}

// New builds a Validator reading through repo, treating snapshots
// fresher than freshWindow as "recent" (I4).
func New(repo store.Repository, freshWindow time.Duration) *Validator {
	if freshWindow <= 0 {
		freshWindow = 24 * time.Hour
	}
	return &Validator{repo: repo, freshWindow: freshWindow}
}

// VerifyExists reports whether owner has at least one snapshot, and
// whether the latest one is within the fresh window.
func (v *Validator) VerifyExists(ctx context.Context, owner domain.OwnerRef) (*Existence, error) {
	snap, err := v.repo.LatestSnapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return &Existence{Exists: false}, nil
	}

	age := snap.Age(time.Now())
	return &Existence{
		Exists:   true,
		AgeDays:  age.Hours() / 24,
		IsRecent: snap.CaptureSuccess && age <= v.freshWindow,
	}, nil
}

// ValidateMetadata checks a specific snapshot's content quality.
// "Valid" per §4.4: captureSuccess, metadata present, content length
// >= 100 bytes, and (if set) HTTP status in [200,399].
func (v *Validator) ValidateMetadata(snap *domain.Snapshot) *Metadata {
	result := &Metadata{}
	if snap == nil {
		result.Errors = append(result.Errors, "snapshot is nil")
		return result
	}

	if !snap.CaptureSuccess {
		result.Errors = append(result.Errors, "capture did not succeed: "+snap.ErrorMessage)
		return result
	}

	result.HasMetadata = snap.Metadata != (domain.SnapshotMetadata{})

	contentLen := snap.Metadata.ContentLength
	if contentLen == 0 {
		contentLen = len(snap.Metadata.Text)
		if contentLen == 0 {
			contentLen = len(snap.Metadata.HTML)
		}
	}
	result.HasContent = contentLen >= 100
	if !result.HasContent {
		result.Warnings = append(result.Warnings, "content below 100 bytes")
	}

	if snap.Metadata.HTTPStatus != 0 && (snap.Metadata.HTTPStatus < 200 || snap.Metadata.HTTPStatus >= 400) {
		result.Errors = append(result.Errors, "http status outside [200,399]")
	}

	result.IsValid = result.HasContent && result.HasMetadata && len(result.Errors) == 0
	return result
}

// CheckProject summarizes snapshot coverage across all owners under
// projectID.
func (v *Validator) CheckProject(ctx context.Context, projectID string, owners []domain.OwnerRef) (*ProjectCheck, error) {
	check := &ProjectCheck{Total: len(owners)}
	now := time.Now()

	for _, owner := range owners {
		snap, err := v.repo.LatestSnapshot(ctx, owner)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			check.WithoutSnapshots++
			continue
		}

		meta := v.ValidateMetadata(snap)
		if !meta.IsValid {
			check.WithoutValid++
			continue
		}

		if snap.Age(now) > staleAfter {
			check.WithStale++
		} else {
			check.WithValid++
		}
	}

	return check, nil
}

// IsStale reports whether snap's age exceeds the 7-day staleness
// threshold (§4.4).
func IsStale(snap *domain.Snapshot, now time.Time) bool {
	return snap.Age(now) > staleAfter
}
