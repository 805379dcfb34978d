package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

const (
	UsersCollection               = "users"
	CountersCollection            = "counters"
	RefreshTokensCollection       = "refresh_tokens"
	FederatedIdentitiesCollection = "federated_identities"
	AuditEventsCollection         = "audit_events"
)

var errNotInitialized = errors.New("mongodb client is not initialized, call InitMongoDB first")

var (
	clientInstance *mongo.Client
	dbInstance     *mongo.Database
	initOnce       sync.Once
	initErr        error
)

// InitMongoDB connects the process-wide client and selects the database.
// It should be called once at application startup; later calls return the
// outcome of the first one.
func InitMongoDB(ctx context.Context, uri, dbName string) error {
	initOnce.Do(func() {
		log.Info().Str("database", dbName).Msg("Initializing MongoDB client")

		clientOptions := options.Client().ApplyURI(uri)
		clientOptions.SetConnectTimeout(10 * time.Second)
		clientOptions.SetMonitor(otelmongo.NewMonitor())

		client, err := mongo.Connect(clientOptions)
		if err != nil {
			initErr = err
			return
		}

		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			initErr = err
			return
		}

		clientInstance = client
		dbInstance = client.Database(dbName)
		log.Info().Msg("MongoDB client initialized successfully.")
	})

	return initErr
}

// GetDB returns the database selected by InitMongoDB, or nil before it.
func GetDB() *mongo.Database {
	return dbInstance
}

// Ping sends a ping to the primary. Used by the readiness probe.
func Ping(ctx context.Context) error {
	if clientInstance == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return clientInstance.Ping(pingCtx, readpref.Primary())
}

// CloseMongoDB disconnects the client. It should be called on shutdown.
func CloseMongoDB(ctx context.Context) {
	if clientInstance == nil {
		return
	}

	log.Info().Msg("Closing MongoDB connection.")

	if err := clientInstance.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing MongoDB connection")
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
