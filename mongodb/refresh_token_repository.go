package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/pilab-dev/exam-sso/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RefreshTokenRepository implements domain.RefreshTokenRepository.
//
// Rotate relies on single-document atomicity: the conditional update on the
// parent is the linearization point, so it works on a standalone server
// without multi-document transactions.
type RefreshTokenRepository struct {
	tokens *mongo.Collection
}

var _ domain.RefreshTokenRepository = (*RefreshTokenRepository)(nil)

// NewRefreshTokenRepository creates the repository and ensures its indexes.
// When retention is positive a TTL index lets the server drop records that
// long after their chain ended, on top of the janitor's DeleteExpired.
func NewRefreshTokenRepository(ctx context.Context, db *mongo.Database, retention time.Duration) (*RefreshTokenRepository, error) {
	repo := &RefreshTokenRepository{tokens: db.Collection(RefreshTokensCollection)}
	if err := repo.createIndexes(ctx, retention); err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *RefreshTokenRepository) createIndexes(ctx context.Context, retention time.Duration) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "chain_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "revoked", Value: 1}}},
	}

	if retention > 0 {
		indexModels = append(indexModels, mongo.IndexModel{
			Keys:    bson.D{{Key: "chain_expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	} else {
		indexModels = append(indexModels, mongo.IndexModel{
			Keys: bson.D{{Key: "chain_expires_at", Value: 1}},
		})
	}

	if _, err := r.tokens.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for refresh_tokens collection: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if _, err := r.tokens.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}

		return err
	}

	return nil
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	if err := r.tokens.FindOne(ctx, bson.M{"_id": hash}).Decode(&token); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrNotFound
		}

		return nil, err
	}

	return &token, nil
}

// Rotate inserts the successor first and then marks the parent used, only
// while it is unused and unrevoked. Anyone who sees the parent used can
// therefore also see the successor, so a chain revocation always covers it.
// A successor whose parent could not be claimed is deleted again.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken, usedAt time.Time) error {
	if _, err := r.tokens.InsertOne(ctx, next); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}

		return err
	}

	result, err := r.tokens.UpdateOne(ctx,
		bson.M{"_id": oldHash, "used": false, "revoked": false},
		bson.M{"$set": bson.M{
			"used":        true,
			"used_at":     usedAt,
			"replaced_by": next.Hash,
		}},
	)
	if err == nil && result.MatchedCount > 0 {
		return nil
	}

	if _, delErr := r.tokens.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": next.Hash}); delErr != nil {
		log.Error().Err(delErr).Str("chain_id", next.ChainID).
			Msg("Failed to delete successor of unclaimed refresh token")
	}
	if err != nil {
		return err
	}

	return domain.ErrPreconditionFailed
}

func (r *RefreshTokenRepository) RevokeChain(ctx context.Context, chainID, reason string, at time.Time) (int64, error) {
	return r.revokeWhere(ctx, bson.M{"chain_id": chainID}, reason, at)
}

func (r *RefreshTokenRepository) RevokeUser(ctx context.Context, userID int64, reason string, at time.Time) (int64, error) {
	return r.revokeWhere(ctx, bson.M{"user_id": userID}, reason, at)
}

func (r *RefreshTokenRepository) revokeWhere(ctx context.Context, filter bson.M, reason string, at time.Time) (int64, error) {
	filter["revoked"] = false

	result, err := r.tokens.UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"revoked":       true,
		"revoked_at":    at,
		"revoke_reason": reason,
	}})
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.tokens.DeleteMany(ctx, bson.M{"chain_expires_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}
