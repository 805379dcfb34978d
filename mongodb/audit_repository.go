package mongodb

import (
	"context"
	"fmt"

	"github.com/pilab-dev/exam-sso/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// AuditRepository persists audit events. It satisfies domain.AuditSink so it
// can sit behind the audit fanout next to the log sink.
type AuditRepository struct {
	events *mongo.Collection
}

var _ domain.AuditSink = (*AuditRepository)(nil)

func NewAuditRepository(ctx context.Context, db *mongo.Database) (*AuditRepository, error) {
	repo := &AuditRepository{events: db.Collection(AuditEventsCollection)}

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "actor", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := repo.events.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create indexes for audit_events collection: %w", err)
	}

	return repo, nil
}

func (r *AuditRepository) Record(ctx context.Context, event domain.AuditEvent) error {
	_, err := r.events.InsertOne(ctx, event)
	return err
}

// ListByActor returns the most recent events of one actor, newest first.
func (r *AuditRepository) ListByActor(ctx context.Context, actor string, limit int64) ([]domain.AuditEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.events.Find(ctx, bson.M{"actor": actor}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []domain.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}

	return events, nil
}
