package validator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifyExistsReportsMissingSnapshot(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	v := New(repo, time.Hour)

	existence, err := v.VerifyExists(context.Background(), domain.NewProductOwner("p1"))
	require.NoError(t, err)
	assert.False(t, existence.Exists)
}

func TestVerifyExistsMarksRecentWithinFreshWindow(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	v := New(repo, time.Hour)
	owner := domain.NewProductOwner("p1")

	_, err := repo.PutSnapshot(context.Background(), owner, "project-1", domain.SnapshotMetadata{ContentLength: 200}, true, "")
	require.NoError(t, err)

	existence, err := v.VerifyExists(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, existence.Exists)
	assert.True(t, existence.IsRecent)
}

func TestVerifyExistsMarksFailedCaptureNotRecent(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	v := New(repo, time.Hour)
	owner := domain.NewProductOwner("p1")

	_, err := repo.PutSnapshot(context.Background(), owner, "project-1", domain.SnapshotMetadata{}, false, "boom")
	require.NoError(t, err)

	existence, err := v.VerifyExists(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, existence.Exists)
	assert.False(t, existence.IsRecent, "a failed capture is never recent regardless of age")
}

func TestValidateMetadataNilSnapshotIsInvalid(t *testing.T) {
	v := New(store.NewMemoryRepository(discardLogger()), time.Hour)
	result := v.ValidateMetadata(nil)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "snapshot is nil")
}

func TestValidateMetadataFailedCaptureIsInvalid(t *testing.T) {
	v := New(store.NewMemoryRepository(discardLogger()), time.Hour)
	snap := &domain.Snapshot{CaptureSuccess: false, ErrorMessage: "timeout"}
	result := v.ValidateMetadata(snap)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.Contains(result.Errors[0], "timeout"))
}

func TestValidateMetadataShortContentIsWarnedNotValid(t *testing.T) {
	v := New(store.NewMemoryRepository(discardLogger()), time.Hour)
	snap := &domain.Snapshot{
		CaptureSuccess: true,
		Metadata:       domain.SnapshotMetadata{HTTPStatus: 200, Text: "too short"},
	}
	result := v.ValidateMetadata(snap)
	assert.False(t, result.IsValid)
	assert.False(t, result.HasContent)
	assert.Contains(t, result.Warnings, "content below 100 bytes")
}

func TestValidateMetadataOutOfRangeStatusIsInvalid(t *testing.T) {
	v := New(store.NewMemoryRepository(discardLogger()), time.Hour)
	snap := &domain.Snapshot{
		CaptureSuccess: true,
		Metadata:       domain.SnapshotMetadata{HTTPStatus: 503, Text: strings.Repeat("x", 200)},
	}
	result := v.ValidateMetadata(snap)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "http status outside [200,399]")
}

func TestValidateMetadataFullyValidSnapshot(t *testing.T) {
	v := New(store.NewMemoryRepository(discardLogger()), time.Hour)
	snap := &domain.Snapshot{
		CaptureSuccess: true,
		Metadata:       domain.SnapshotMetadata{HTTPStatus: 200, Text: strings.Repeat("x", 200)},
	}
	result := v.ValidateMetadata(snap)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
}

func TestCheckProjectTalliesAcrossOwners(t *testing.T) {
	repo := store.NewMemoryRepository(discardLogger())
	v := New(repo, time.Hour)

	valid := domain.NewProductOwner("valid")
	invalid := domain.NewProductOwner("invalid")
	missing := domain.NewProductOwner("missing")

	_, err := repo.PutSnapshot(context.Background(), valid, "project-1", domain.SnapshotMetadata{HTTPStatus: 200, Text: strings.Repeat("x", 200)}, true, "")
	require.NoError(t, err)
	_, err = repo.PutSnapshot(context.Background(), invalid, "project-1", domain.SnapshotMetadata{}, false, "boom")
	require.NoError(t, err)

	check, err := v.CheckProject(context.Background(), "project-1", []domain.OwnerRef{valid, invalid, missing})
	require.NoError(t, err)
	assert.Equal(t, 3, check.Total)
	assert.Equal(t, 1, check.WithValid)
	assert.Equal(t, 1, check.WithoutValid)
	assert.Equal(t, 1, check.WithoutSnapshots)
}

func TestIsStaleThreshold(t *testing.T) {
	now := time.Now()
	fresh := &domain.Snapshot{CreatedAt: now.Add(-time.Hour)}
	stale := &domain.Snapshot{CreatedAt: now.Add(-8 * 24 * time.Hour)}

	assert.False(t, IsStale(fresh, now))
	assert.True(t, IsStale(stale, now))
}
