// Package testutil provides a throwaway MongoDB database for integration tests.
//
// TEST_MONGO_URI points the tests at an existing server. Without it a mongo
// container is started through testcontainers when GO_TEST_INTEGRATION is set;
// otherwise the calling test is skipped.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoImage = "docker.io/library/mongo:7"

// SetupTestMongoDB returns a uniquely named database. The database is dropped
// and the client disconnected when the test finishes.
func SetupTestMongoDB(t *testing.T, dbNamePrefix string) *mongo.Database {
	t.Helper()

	if testing.Short() {
		t.Skip("mongo integration tests are skipped in -short mode")
	}

	mongoURI := os.Getenv("TEST_MONGO_URI")
	if mongoURI == "" {
		mongoURI = startContainer(t)
	}

	clientOpts := options.Client().
		ApplyURI(mongoURI).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(clientOpts)
	require.NoError(t, err, "connect to %s", mongoURI)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx, nil), "ping %s", mongoURI)

	db := client.Database(fmt.Sprintf("%s_%d", dbNamePrefix, time.Now().UnixNano()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.Drop(ctx); err != nil {
			t.Logf("Warning: failed to drop database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Warning: failed to disconnect MongoDB client: %v", err)
		}
	})

	return db
}

func startContainer(t *testing.T) string {
	t.Helper()

	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("set TEST_MONGO_URI or GO_TEST_INTEGRATION=1 to run mongo integration tests")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        mongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate mongo container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}
