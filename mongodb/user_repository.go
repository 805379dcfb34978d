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

const userIDCounter = "user_id"

// emailCollation makes email lookups and the unique index case-insensitive.
var emailCollation = &options.Collation{Locale: "en", Strength: 2}

// UserRepository implements domain.UserRepository. Numeric ids are allocated
// from a counter document so they stay stable JWT subjects.
type UserRepository struct {
	users    *mongo.Collection
	counters *mongo.Collection
}

var _ domain.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a UserRepository and ensures its indexes.
func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	repo := &UserRepository{
		users:    db.Collection(UsersCollection),
		counters: db.Collection(CountersCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *UserRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(emailCollation),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	if _, err := r.users.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for users collection: %w", err)
	}
	log.Debug().Msg("Indexes for users collection ensured.")

	return nil
}

func (r *UserRepository) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": userIDCounter},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate user id: %w", err)
	}

	return counter.Seq, nil
}

// CreateUser assigns the next numeric id and inserts the user.
func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user.ID = id
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}

	if _, err := r.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Error creating user in MongoDB")

		return err
	}

	return nil
}

// GetUserByID retrieves a user by numeric id.
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrNotFound
		}

		return nil, err
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User

	opts := options.FindOne().SetCollation(emailCollation)
	if err := r.users.FindOne(ctx, bson.M{"email": email}, opts).Decode(&user); err != nil {
		if isNoDocuments(err) {
			return nil, domain.ErrNotFound
		}

		return nil, err
	}

	return &user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := r.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_login_at": at}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}

	return nil
}
