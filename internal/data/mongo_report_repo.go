package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/domain/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	_ core.ReportRepository      = (*MongoReportRepo)(nil)
	_ core.StaleReportRepository = (*MongoReportRepo)(nil)
)

// DefaultReportsCollection is the collection holding report documents.
const DefaultReportsCollection = "reports"

// MongoReportRepo stores reports as documents. The caller owns the *mongo.Database lifecycle.
type MongoReportRepo struct {
	col          *mongo.Collection
	timeProvider TimeProvider
	logger       *slog.Logger
}

// MongoRepoConfig configures NewMongoReportRepo.
type MongoRepoConfig struct {
	RepoConfig
	Collection string
}

// NewMongoReportRepo creates a MongoReportRepo on db.
func NewMongoReportRepo(db *mongo.Database, cfg MongoRepoConfig) *MongoReportRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Collection
	if name == "" {
		name = DefaultReportsCollection
	}

	return &MongoReportRepo{
		col:          db.Collection(name),
		timeProvider: tp,
		logger:       logger.With("component", "mongo_report_repo"),
	}
}

// EnsureIndexes creates the owner/created_at, status and created_at indexes. It is idempotent.
func (r *MongoReportRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create report indexes: %w", err)
	}
	return nil
}

type reportDoc struct {
	ID           string     `bson:"_id"`
	OwnerID      string     `bson:"owner_id"`
	Type         string     `bson:"type"`
	Status       string     `bson:"status"`
	Parameters   bson.Raw   `bson:"parameters"`
	ArtifactRef  *string    `bson:"artifact_ref,omitempty"`
	ErrorMessage *string    `bson:"error_message,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	StartedAt    *time.Time `bson:"started_at,omitempty"`
	CompletedAt  *time.Time `bson:"completed_at,omitempty"`
}

func toParametersRaw(p model.Parameters) (bson.Raw, error) {
	if p == nil {
		p = model.Parameters{}
	}
	raw, err := bson.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	return raw, nil
}

// fromParametersRaw goes through relaxed extended JSON so nested documents decode as plain maps.
func fromParametersRaw(raw bson.Raw) (model.Parameters, error) {
	out := model.Parameters{}
	if len(raw) == 0 {
		return out, nil
	}
	js, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert parameters: %w", err)
	}
	if err := json.Unmarshal(js, &out); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return out, nil
}

func (d *reportDoc) toModel() (*model.Report, error) {
	params, err := fromParametersRaw(d.Parameters)
	if err != nil {
		return nil, err
	}
	report := &model.Report{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Type:         model.ReportType(d.Type),
		Status:       model.ReportStatus(d.Status),
		Parameters:   params,
		ArtifactRef:  d.ArtifactRef,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if d.StartedAt != nil {
		t := d.StartedAt.UTC()
		report.StartedAt = &t
	}
	if d.CompletedAt != nil {
		t := d.CompletedAt.UTC()
		report.CompletedAt = &t
	}
	return report, nil
}

// Create persists a new pending report with a freshly generated id.
func (r *MongoReportRepo) Create(ctx context.Context, req *model.SubmitReportRequest) (*model.Report, error) {
	if req == nil {
		return nil, errors.New("submit report request is required")
	}
	params, err := toParametersRaw(req.Parameters)
	if err != nil {
		return nil, err
	}

	doc := reportDoc{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Type:       string(req.Type),
		Status:     string(model.ReportStatusPending),
		Parameters: params,
		// Mongo stores milliseconds; truncate so the returned value matches what is read back.
		CreatedAt: r.timeProvider.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return doc.toModel()
}

// GetByID returns the report with the given id or ErrReportNotFound.
func (r *MongoReportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
	var doc reportDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return doc.toModel()
}

// MarkProcessing moves a pending (or redelivered processing) report to processing.
func (r *MongoReportRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) (*model.Report, error) {
	return r.transition(ctx, id,
		[]model.ReportStatus{model.ReportStatusPending, model.ReportStatusProcessing},
		bson.M{"$set": bson.M{
			"status":     string(model.ReportStatusProcessing),
			"started_at": startedAt.UTC(),
		}},
	)
}

// Complete moves a processing report to completed with its artifact reference.
func (r *MongoReportRepo) Complete(ctx context.Context, req model.CompleteReportRequest) (*model.Report, error) {
	if req.ArtifactRef == "" {
		return nil, errors.New("artifact reference is required")
	}
	return r.transition(ctx, req.ID,
		[]model.ReportStatus{model.ReportStatusProcessing},
		bson.M{
			"$set": bson.M{
				"status":       string(model.ReportStatusCompleted),
				"artifact_ref": req.ArtifactRef,
				"completed_at": req.CompletedAt.UTC(),
			},
			"$unset": bson.M{"error_message": ""},
		},
	)
}

// Fail moves a processing report to failed with an error message.
func (r *MongoReportRepo) Fail(ctx context.Context, req model.FailReportRequest) (*model.Report, error) {
	if req.ErrorMessage == "" {
		return nil, errors.New("error message is required")
	}
	return r.transition(ctx, req.ID,
		[]model.ReportStatus{model.ReportStatusProcessing},
		bson.M{
			"$set": bson.M{
				"status":        string(model.ReportStatusFailed),
				"error_message": req.ErrorMessage,
				"completed_at":  req.CompletedAt.UTC(),
			},
			"$unset": bson.M{"artifact_ref": ""},
		},
	)
}

func (r *MongoReportRepo) transition(
	ctx context.Context,
	id string,
	from []model.ReportStatus,
	update bson.M,
) (*model.Report, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	var doc reportDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": allowed}},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toModel()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update report status: %w", err)
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("check report exists: %w", err)
	}
	if n == 0 {
		return nil, ErrReportNotFound
	}
	return nil, ErrInvalidTransition
}

// Delete removes a report regardless of status.
func (r *MongoReportRepo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrReportNotFound
	}
	return nil
}

// List returns reports ordered by created_at descending.
func (r *MongoReportRepo) List(ctx context.Context, opts model.ReportListOptions) ([]*model.Report, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))

	cursor, err := r.col.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() {
		if cerr := cursor.Close(ctx); cerr != nil {
			r.logger.WarnContext(ctx, "close report cursor", "error", cerr)
		}
	}()

	var docs []reportDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}

	reports := make([]*model.Report, 0, len(docs))
	for i := range docs {
		report, convErr := docs[i].toModel()
		if convErr != nil {
			return nil, convErr
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CountByStatus aggregates report counts per status with a $group stage.
func (r *MongoReportRepo) CountByStatus(ctx context.Context) (*model.ReportStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}
	defer func() {
		if cerr := cursor.Close(ctx); cerr != nil {
			r.logger.WarnContext(ctx, "close stats cursor", "error", cerr)
		}
	}()

	var groups []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode report stats: %w", err)
	}

	stats := model.NewReportStats()
	for _, g := range groups {
		stats.Add(model.ReportStatus(g.Status), g.Count)
	}
	return stats, nil
}

// CountStale counts reports stuck in pending or processing past the given cutoffs.
func (r *MongoReportRepo) CountStale(
	ctx context.Context,
	params core.StaleReportParams,
) (*model.StaleReportCounts, error) {
	pending, err := r.col.CountDocuments(ctx, bson.M{
		"status":     string(model.ReportStatusPending),
		"created_at": bson.M{"$lt": params.PendingOlderThan.UTC()},
	})
	if err != nil {
		return nil, fmt.Errorf("count stale pending reports: %w", err)
	}
	processing, err := r.col.CountDocuments(ctx, bson.M{
		"status":     string(model.ReportStatusProcessing),
		"started_at": bson.M{"$lt": params.ProcessingOlderThan.UTC()},
	})
	if err != nil {
		return nil, fmt.Errorf("count stale processing reports: %w", err)
	}
	return &model.StaleReportCounts{Pending: pending, Processing: processing}, nil
}
