package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/exam-sso/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// FederatedIdentityRepository implements domain.FederatedIdentityRepository.
type FederatedIdentityRepository struct {
	collection *mongo.Collection
}

var _ domain.FederatedIdentityRepository = (*FederatedIdentityRepository)(nil)

func NewFederatedIdentityRepository(ctx context.Context, db *mongo.Database) (*FederatedIdentityRepository, error) {
	repo := &FederatedIdentityRepository{collection: db.Collection(FederatedIdentitiesCollection)}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *FederatedIdentityRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// An external subject links to exactly one local user.
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "provider_user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for federated_identities collection: %w", err)
	}

	return nil
}

func (r *FederatedIdentityRepository) GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*domain.UserFederatedIdentity, error) {
	var identity domain.UserFederatedIdentity

	filter := bson.M{"provider": provider, "provider_user_id": providerUserID}
	if err := r.collection.FindOne(ctx, filter).Decode(&identity); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrNotFound
		}

		return nil, err
	}

	return &identity, nil
}

func (r *FederatedIdentityRepository) Create(ctx context.Context, identity *domain.UserFederatedIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, identity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}

		return err
	}

	return nil
}
