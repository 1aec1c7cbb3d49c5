package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
)

// MemoryRepository is an in-process Repository implementation used by
// the CLI demo harness and by tests. It mirrors the teacher's
// MultiStorage/JSONStorage pattern of a mutex-guarded in-memory slice
// (internal/storage/database.go, internal/storage/file.go) rather than
// a real wire format, since persistence schema is out of scope (§1).
type MemoryRepository struct {
	mu sync.RWMutex

	projects    map[string]domain.Project
	products    map[string][]domain.Product // by projectID
	competitors map[string]domain.Competitor
	snapshots   map[string][]*domain.Snapshot // keyed by owner key (kind:id)

	reports        map[string]domain.Report
	reportVersions map[string][]*domain.ReportVersion // by reportID
	schedules      map[string][]*domain.ReportSchedule // by projectID

	logger *slog.Logger
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(logger *slog.Logger) *MemoryRepository {
	return &MemoryRepository{
		projects:       make(map[string]domain.Project),
		products:       make(map[string][]domain.Product),
		competitors:    make(map[string]domain.Competitor),
		snapshots:      make(map[string][]*domain.Snapshot),
		reports:        make(map[string]domain.Report),
		reportVersions: make(map[string][]*domain.ReportVersion),
		schedules:      make(map[string][]*domain.ReportSchedule),
		logger:         logger.With("component", "memory_repository"),
	}
}

func ownerKey(o domain.OwnerRef) string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

// SeedProject registers a project together with its products and
// competitors. It exists for the CLI demo harness and tests; production
// deployments would create projects through the external surface (§1).
func (m *MemoryRepository) SeedProject(p domain.Project, products []domain.Product, competitors []domain.Competitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	m.products[p.ID] = products
	for _, c := range competitors {
		m.competitors[c.ID] = c
	}
}

// CreateProject inserts p under a write lock, checking-and-inserting
// atomically so two goroutines racing on the same {UserID, Name} pair
// can never both succeed (I2's sibling guard at the project level).
func (m *MemoryRepository) CreateProject(ctx context.Context, p domain.Project) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.projects {
		if existing.UserID == p.UserID && existing.Name == p.Name {
			return nil, errkind.New("store", errkind.KindDuplicate, "", errDuplicateProject)
		}
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = domain.ProjectActive
	}
	m.projects[p.ID] = p
	return &p, nil
}

func (m *MemoryRepository) FindProjectWithGraph(ctx context.Context, projectID string) (*ProjectGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, NotFound("")
	}

	products := append([]domain.Product(nil), m.products[projectID]...)
	competitors := make([]domain.Competitor, 0, len(p.CompetitorIDs))
	for _, cid := range p.CompetitorIDs {
		if c, ok := m.competitors[cid]; ok {
			competitors = append(competitors, c)
		}
	}

	return &ProjectGraph{Project: p, Products: products, Competitors: competitors}, nil
}

func (m *MemoryRepository) PutSnapshot(ctx context.Context, owner domain.OwnerRef, projectID string, meta domain.SnapshotMetadata, success bool, errMsg string) (*domain.Snapshot, error) {
	snap, err := domain.NewSnapshot(owner, projectID, success, errMsg, meta)
	if err != nil {
		return nil, err
	}
	snap.ID = uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	key := ownerKey(owner)
	m.snapshots[key] = append(m.snapshots[key], snap)
	return snap, nil
}

func (m *MemoryRepository) LatestSnapshot(ctx context.Context, owner domain.OwnerRef) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.snapshots[ownerKey(owner)]
	if len(list) == 0 {
		return nil, nil
	}
	best := list[0]
	for _, s := range list[1:] {
		if s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	return best, nil
}

func (m *MemoryRepository) RecentSnapshots(ctx context.Context, owner domain.OwnerRef, n int) ([]*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := append([]*domain.Snapshot(nil), m.snapshots[ownerKey(owner)]...)
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list, nil
}

func (m *MemoryRepository) ListOwnersMissingSnapshots(ctx context.Context, projectID string, allOwners []domain.OwnerRef) ([]domain.OwnerRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var missing []domain.OwnerRef
	for _, o := range allOwners {
		if len(m.snapshots[ownerKey(o)]) == 0 {
			missing = append(missing, o)
		}
	}
	return missing, nil
}

func (m *MemoryRepository) CreateReport(ctx context.Context, r domain.Report) (*domain.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = domain.ReportPending
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return &r, nil
}

func (m *MemoryRepository) CreateReportVersion(ctx context.Context, v domain.ReportVersion) (*domain.ReportVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[v.ReportID]; !ok {
		return nil, NotFound("")
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	existing := m.reportVersions[v.ReportID]
	v.Version = len(existing) + 1
	m.reportVersions[v.ReportID] = append(existing, &v)
	return &v, nil
}

// UpdateReportStatus is the authoritative guard for I1. It is the only
// path by which a Report transitions to COMPLETED, and it refuses the
// transition unless a non-empty ReportVersion already exists.
func (m *MemoryRepository) UpdateReportStatus(ctx context.Context, reportID string, status domain.ReportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[reportID]
	if !ok {
		return NotFound("")
	}

	if status == domain.ReportCompleted {
		versions := m.reportVersions[reportID]
		hasContent := false
		for _, v := range versions {
			if v.NonEmpty() {
				hasContent = true
				break
			}
		}
		if !hasContent {
			return fmt.Errorf("store: refusing COMPLETED for report %s: no ReportVersion with non-empty content (I1)", reportID)
		}
	}

	r.Status = status
	r.UpdatedAt = time.Now()
	m.reports[reportID] = r
	return nil
}

func (m *MemoryRepository) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, NotFound("")
	}
	return &r, nil
}

func (m *MemoryRepository) ListReportVersions(ctx context.Context, reportID string) ([]*domain.ReportVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.ReportVersion(nil), m.reportVersions[reportID]...), nil
}

func (m *MemoryRepository) ListReportSchedules(ctx context.Context, projectID string) ([]*domain.ReportSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.ReportSchedule(nil), m.schedules[projectID]...), nil
}

func (m *MemoryRepository) UpsertReportSchedule(ctx context.Context, s domain.ReportSchedule) (*domain.ReportSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	list := m.schedules[s.ProjectID]
	for i, existing := range list {
		if existing.ID == s.ID {
			list[i] = &s
			m.schedules[s.ProjectID] = list
			return &s, nil
		}
	}
	m.schedules[s.ProjectID] = append(list, &s)
	return &s, nil
}

var _ Repository = (*MemoryRepository)(nil)
