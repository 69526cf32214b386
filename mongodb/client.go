package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

var (
	mu             sync.RWMutex
	clientInstance *mongo.Client
	dbInstance     *mongo.Database
)

// InitMongoDB connects the process-wide MongoDB client and selects dbName.
// It should be called once at application startup; later calls are no-ops.
func InitMongoDB(ctx context.Context, uri, dbName string, timeout time.Duration) error {
	mu.Lock()
	defer mu.Unlock()

	if clientInstance != nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log.Info().Str("database", dbName).Msg("Initializing MongoDB client")
	clientOptions := options.Client().ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// Unique indexes are created right after this, so the primary must answer now.
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return fmt.Errorf("mongodb primary not reachable: %w", err)
	}

	clientInstance = client
	dbInstance = client.Database(dbName)
	log.Info().Msg("MongoDB client initialized.")

	return nil
}

// GetDB returns the MongoDB database instance, or nil before InitMongoDB.
func GetDB() *mongo.Database {
	mu.RLock()
	defer mu.RUnlock()
	return dbInstance
}

// CloseMongoDB disconnects the MongoDB client.
// It should be called on application shutdown.
func CloseMongoDB(ctx context.Context) {
	mu.Lock()
	defer mu.Unlock()

	if clientInstance == nil {
		return
	}
	log.Info().Msg("Closing MongoDB connection.")
	if err := clientInstance.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("Error closing MongoDB connection")
	}
	clientInstance = nil
	dbInstance = nil
}
