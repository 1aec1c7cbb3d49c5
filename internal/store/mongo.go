package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/errkind"
)

// MongoRepository is the production Repository backend, adapted from
// the teacher's MongoStorage (internal/storage/database.go) connect/
// ping/disconnect lifecycle, generalized from a single write-only
// items collection to the full Repository surface across six
// collections.
type MongoRepository struct {
	client *mongo.Client

	projects       *mongo.Collection
	products       *mongo.Collection
	competitors    *mongo.Collection
	snapshots      *mongo.Collection
	reports        *mongo.Collection
	reportVersions *mongo.Collection
	schedules      *mongo.Collection

	logger *slog.Logger
}

// NewMongoRepository connects to uri and returns a Repository backed by
// database.
func NewMongoRepository(uri, database string, logger *slog.Logger) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	projects := db.Collection("projects")

	// A unique compound index is the authoritative half of the
	// project_creation:{userId}:{name} guard (§5): even if two processes
	// both pass the in-process lock in internal/project, only one insert
	// survives here.
	if _, err := projects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userid", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("mongodb create unique project index: %w", err)
	}

	return &MongoRepository{
		client:         client,
		projects:       projects,
		products:       db.Collection("products"),
		competitors:    db.Collection("competitors"),
		snapshots:      db.Collection("snapshots"),
		reports:        db.Collection("reports"),
		reportVersions: db.Collection("report_versions"),
		schedules:      db.Collection("report_schedules"),
		logger:         logger.With("component", "mongo_repository"),
	}, nil
}

// CreateProject inserts p, relying on the unique {userid, name} index to
// reject duplicates even across racing processes.
func (m *MongoRepository) CreateProject(ctx context.Context, p domain.Project) (*domain.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = domain.ProjectActive
	}

	if _, err := m.projects.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errkind.New("store", errkind.KindDuplicate, "", errDuplicateProject)
		}
		return nil, fmt.Errorf("store: insert project: %w", err)
	}
	return &p, nil
}

// Close disconnects the underlying client.
func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoRepository) FindProjectWithGraph(ctx context.Context, projectID string) (*ProjectGraph, error) {
	var p domain.Project
	if err := m.projects.FindOne(ctx, bson.M{"id": projectID}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NotFound("")
		}
		return nil, fmt.Errorf("store: find project: %w", err)
	}

	var products []domain.Product
	cur, err := m.products.Find(ctx, bson.M{"projectid": projectID})
	if err != nil {
		return nil, fmt.Errorf("store: find products: %w", err)
	}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("store: decode products: %w", err)
	}

	var competitors []domain.Competitor
	if len(p.CompetitorIDs) > 0 {
		ccur, err := m.competitors.Find(ctx, bson.M{"id": bson.M{"$in": p.CompetitorIDs}})
		if err != nil {
			return nil, fmt.Errorf("store: find competitors: %w", err)
		}
		if err := ccur.All(ctx, &competitors); err != nil {
			return nil, fmt.Errorf("store: decode competitors: %w", err)
		}
	}

	return &ProjectGraph{Project: p, Products: products, Competitors: competitors}, nil
}

func (m *MongoRepository) PutSnapshot(ctx context.Context, owner domain.OwnerRef, projectID string, meta domain.SnapshotMetadata, success bool, errMsg string) (*domain.Snapshot, error) {
	snap, err := domain.NewSnapshot(owner, projectID, success, errMsg, meta)
	if err != nil {
		return nil, err
	}
	snap.ID = uuid.NewString()

	if _, err := m.snapshots.InsertOne(ctx, snap); err != nil {
		return nil, fmt.Errorf("store: insert snapshot: %w", err)
	}
	return snap, nil
}

func (m *MongoRepository) LatestSnapshot(ctx context.Context, owner domain.OwnerRef) (*domain.Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdat", Value: -1}})
	var s domain.Snapshot
	err := m.snapshots.FindOne(ctx, bson.M{"owner.kind": owner.Kind, "owner.id": owner.ID}, opts).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest snapshot: %w", err)
	}
	return &s, nil
}

func (m *MongoRepository) RecentSnapshots(ctx context.Context, owner domain.OwnerRef, n int) ([]*domain.Snapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: -1}})
	if n > 0 {
		opts.SetLimit(int64(n))
	}
	cur, err := m.snapshots.Find(ctx, bson.M{"owner.kind": owner.Kind, "owner.id": owner.ID}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: recent snapshots: %w", err)
	}
	var out []*domain.Snapshot
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode snapshots: %w", err)
	}
	return out, nil
}

func (m *MongoRepository) ListOwnersMissingSnapshots(ctx context.Context, projectID string, allOwners []domain.OwnerRef) ([]domain.OwnerRef, error) {
	var missing []domain.OwnerRef
	for _, o := range allOwners {
		count, err := m.snapshots.CountDocuments(ctx, bson.M{"owner.kind": o.Kind, "owner.id": o.ID}, options.Count().SetLimit(1))
		if err != nil {
			return nil, fmt.Errorf("store: count snapshots: %w", err)
		}
		if count == 0 {
			missing = append(missing, o)
		}
	}
	return missing, nil
}

func (m *MongoRepository) CreateReport(ctx context.Context, r domain.Report) (*domain.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = domain.ReportPending
	}
	if _, err := m.reports.InsertOne(ctx, r); err != nil {
		return nil, fmt.Errorf("store: insert report: %w", err)
	}
	return &r, nil
}

func (m *MongoRepository) CreateReportVersion(ctx context.Context, v domain.ReportVersion) (*domain.ReportVersion, error) {
	count, err := m.reports.CountDocuments(ctx, bson.M{"id": v.ReportID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("store: check report exists: %w", err)
	}
	if count == 0 {
		return nil, NotFound("")
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	existing, err := m.reportVersions.CountDocuments(ctx, bson.M{"reportid": v.ReportID})
	if err != nil {
		return nil, fmt.Errorf("store: count report versions: %w", err)
	}
	v.Version = int(existing) + 1

	if _, err := m.reportVersions.InsertOne(ctx, v); err != nil {
		return nil, fmt.Errorf("store: insert report version: %w", err)
	}
	return &v, nil
}

// UpdateReportStatus enforces I1: a transition to COMPLETED is rejected
// unless a ReportVersion with non-empty content already exists for
// reportID. This mirrors MemoryRepository.UpdateReportStatus so both
// backends give the invariant the same teeth.
func (m *MongoRepository) UpdateReportStatus(ctx context.Context, reportID string, status domain.ReportStatus) error {
	count, err := m.reports.CountDocuments(ctx, bson.M{"id": reportID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("store: check report exists: %w", err)
	}
	if count == 0 {
		return NotFound("")
	}

	if status == domain.ReportCompleted {
		nonEmpty, err := m.reportVersions.CountDocuments(ctx, bson.M{
			"reportid": reportID,
			"content":  bson.M{"$ne": ""},
		}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("store: check report versions: %w", err)
		}
		if nonEmpty == 0 {
			return fmt.Errorf("store: refusing COMPLETED for report %s: no ReportVersion with non-empty content (I1)", reportID)
		}
	}

	_, err = m.reports.UpdateOne(ctx, bson.M{"id": reportID}, bson.M{"$set": bson.M{
		"status":    status,
		"updatedat": time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("store: update report status: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetReport(ctx context.Context, reportID string) (*domain.Report, error) {
	var r domain.Report
	err := m.reports.FindOne(ctx, bson.M{"id": reportID}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return nil, NotFound("")
	}
	if err != nil {
		return nil, fmt.Errorf("store: get report: %w", err)
	}
	return &r, nil
}

func (m *MongoRepository) ListReportVersions(ctx context.Context, reportID string) ([]*domain.ReportVersion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	cur, err := m.reportVersions.Find(ctx, bson.M{"reportid": reportID}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list report versions: %w", err)
	}
	var out []*domain.ReportVersion
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode report versions: %w", err)
	}
	return out, nil
}

func (m *MongoRepository) ListReportSchedules(ctx context.Context, projectID string) ([]*domain.ReportSchedule, error) {
	cur, err := m.schedules.Find(ctx, bson.M{"projectid": projectID})
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	var out []*domain.ReportSchedule
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode schedules: %w", err)
	}
	return out, nil
}

func (m *MongoRepository) UpsertReportSchedule(ctx context.Context, s domain.ReportSchedule) (*domain.ReportSchedule, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	opts := options.Replace().SetUpsert(true)
	_, err := m.schedules.ReplaceOne(ctx, bson.M{"id": s.ID}, s, opts)
	if err != nil {
		return nil, fmt.Errorf("store: upsert schedule: %w", err)
	}
	return &s, nil
}

var _ Repository = (*MongoRepository)(nil)
