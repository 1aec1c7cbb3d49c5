// Package domain holds the entity types of spec §3: Project, Product,
// Competitor, Snapshot, Report, ReportVersion, ReportSchedule, and the
// ResolutionCache entry shape. These are plain structs; persistence and
// validation live in other packages (store, validator) that operate on
// them through narrow interfaces.
package domain

import (
	"errors"
	"time"
)

// errInvalidOwner is returned by NewSnapshot when the owner ref names
// zero or more than one owning entity (I2).
var errInvalidOwner = errors.New("domain: snapshot owner must name exactly one of product or competitor")

// ScrapingFrequency is a Project's configured cadence (§3).
type ScrapingFrequency string

const (
	FrequencyDaily    ScrapingFrequency = "DAILY"
	FrequencyWeekly   ScrapingFrequency = "WEEKLY"
	FrequencyBiweekly ScrapingFrequency = "BIWEEKLY"
	FrequencyMonthly  ScrapingFrequency = "MONTHLY"
	FrequencyCustom   ScrapingFrequency = "CUSTOM"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "ACTIVE"
	ProjectPaused   ProjectStatus = "PAUSED"
	ProjectArchived ProjectStatus = "ARCHIVED"
)

// Project owns a set of Products and references a set of Competitors.
type Project struct {
	ID                string
	UserID            string
	Name              string
	ScrapingFrequency ScrapingFrequency
	CustomCron        string // only meaningful when ScrapingFrequency == FrequencyCustom
	Status            ProjectStatus
	Parameters        map[string]any
	ProductIDs        []string
	CompetitorIDs     []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Product belongs to exactly one Project.
type Product struct {
	ID          string
	ProjectID   string
	Name        string
	Website     string
	Positioning string
	Industry    string
	Customer    string
	Problem     string
}

// Competitor is shared across Projects (many-to-many).
type Competitor struct {
	ID          string
	Name        string
	Website     string
	Description string
	Industry    string
}

// OwnerKind identifies which side of the Snapshot ownership union is set (I2).
type OwnerKind string

const (
	OwnerProduct    OwnerKind = "product"
	OwnerCompetitor OwnerKind = "competitor"
)

// OwnerRef identifies exactly one owning entity for a Snapshot (I2).
type OwnerRef struct {
	Kind OwnerKind
	ID   string
}

// NewProductOwner builds an OwnerRef for a Product.
func NewProductOwner(productID string) OwnerRef {
	return OwnerRef{Kind: OwnerProduct, ID: productID}
}

// NewCompetitorOwner builds an OwnerRef for a Competitor.
func NewCompetitorOwner(competitorID string) OwnerRef {
	return OwnerRef{Kind: OwnerCompetitor, ID: competitorID}
}

// Valid reports whether the ref names exactly one owner (I2).
func (o OwnerRef) Valid() bool {
	return o.ID != "" && (o.Kind == OwnerProduct || o.Kind == OwnerCompetitor)
}

// Snapshot is an immutable capture record (§3). Exactly one of
// Owner.Kind is Product or Competitor — I2 is enforced at construction
// time by NewSnapshot rather than left to callers.
type Snapshot struct {
	ID              string
	Owner           OwnerRef
	CreatedAt       time.Time
	CaptureSuccess  bool
	ErrorMessage    string
	Metadata        SnapshotMetadata
	ProjectID       string // denormalized for store queries scoped to a project
}

// SnapshotMetadata is the free-form capture payload (§3, §4.2).
type SnapshotMetadata struct {
	HTML          string
	Text          string
	Title         string
	HTTPStatus    int
	ContentLength int
	DurationMS    int64
	URL           string
}

// NewSnapshot builds a Snapshot bound to exactly one owner, enforcing I2.
func NewSnapshot(owner OwnerRef, projectID string, success bool, errMsg string, meta SnapshotMetadata) (*Snapshot, error) {
	if !owner.Valid() {
		return nil, errInvalidOwner
	}
	return &Snapshot{
		Owner:          owner,
		ProjectID:      projectID,
		CreatedAt:      time.Now(),
		CaptureSuccess: success,
		ErrorMessage:   errMsg,
		Metadata:       meta,
	}, nil
}

// Age returns how long ago the snapshot was captured, relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// ReportStatus is the lifecycle state of a Report (§3).
type ReportStatus string

const (
	ReportPending    ReportStatus = "PENDING"
	ReportInProgress ReportStatus = "IN_PROGRESS"
	ReportCompleted  ReportStatus = "COMPLETED"
	ReportFailed     ReportStatus = "FAILED"
)

// Report is the top-level comparative-report record. I1: it MUST NOT be
// COMPLETED unless at least one non-empty ReportVersion exists; that
// invariant is enforced by the store (store.Repository.UpdateReportStatus),
// not by this struct.
type Report struct {
	ID         string
	ProjectID  string
	ProductID  string
	AnalysisID string
	Status     ReportStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReportVersion is an immutable rendered artifact owned by exactly one Report.
type ReportVersion struct {
	ID       string
	ReportID string
	Version  int
	Content  string
	Sections []ReportSection
	Metadata ReportVersionMetadata
}

// ReportSection is one ordered section of a rendered report.
type ReportSection struct {
	ID      string
	Title   string
	Body    string
	Kind    string // e.g. "executive_summary", "feature_comparison", "limitations"
	Notices []string
}

// ReportVersionMetadata carries the quality/freshness/template provenance
// of a rendered version (§4.9).
type ReportVersionMetadata struct {
	CompletenessScore float64
	Freshness         string
	QualityTier       string
	TemplateID        string
	HasDataLimitations bool
	Format            string
}

// NonEmpty reports whether this version satisfies I1's content requirement.
func (v ReportVersion) NonEmpty() bool {
	return len(v.Content) > 0
}

// ScheduleStatus is the lifecycle state of a ReportSchedule.
type ScheduleStatus string

const (
	ScheduleActive   ScheduleStatus = "ACTIVE"
	SchedulePaused   ScheduleStatus = "PAUSED"
	ScheduleDegraded ScheduleStatus = "DEGRADED"
)

// ReportSchedule binds a Report's recurrence to a cron expression (§3, I3).
type ReportSchedule struct {
	ID                  string
	ReportID            string
	ProjectID           string
	Frequency           ScrapingFrequency
	Cron                string
	NextRun             time.Time
	LastRun             time.Time
	Status              ScheduleStatus
	ConsecutiveFailures int
}

// ResolutionConfidence is the confidence tier of a ResolutionCache entry.
type ResolutionConfidence string

const (
	ConfidenceHigh   ResolutionConfidence = "high"
	ConfidenceMedium ResolutionConfidence = "medium"
	ConfidenceLow    ResolutionConfidence = "low"
)

// ResolutionCacheEntry maps a competitor to the project it was resolved
// against, with a confidence tier and TTL (§3).
type ResolutionCacheEntry struct {
	CompetitorID string
	ProjectID    string
	Confidence   ResolutionConfidence
	ResolvedAt   time.Time
}
