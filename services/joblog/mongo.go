package joblog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"kline_backend/services/ingestion"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB collection layout for run audit documents
const (
	MongoDBName       = "kline_backend"
	RunsCollection    = "sync_runs"
	DefaultHistoryLen = 20

	connectTimeout = 10 * time.Second
	writeTimeout   = 5 * time.Second
)

// Recorder persists finished sync runs to MongoDB. Optional: when no URI
// is configured every call is a no-op, matching how the rest of the app
// treats the audit log as best effort.
type Recorder struct {
	mu          sync.RWMutex
	client      *mongo.Client
	database    *mongo.Database
	isConnected bool
}

// NewRecorder connects to MongoDB when a URI is configured. An empty URI
// yields a disabled recorder, not an error.
func NewRecorder(mongoURI string) (*Recorder, error) {
	r := &Recorder{}
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, sync run audit log disabled")
		return r, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	r.client = client
	r.database = client.Database(MongoDBName)
	r.isConnected = true
	log.Println("Sync run audit log connected to MongoDB")
	return r, nil
}

// Enabled reports whether runs are actually being persisted
func (r *Recorder) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isConnected
}

// RecordRun stores one finished run report. Failures are logged and
// swallowed; the job outcome never depends on the audit write.
func (r *Recorder) RecordRun(report ingestion.RunReport) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isConnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := r.database.Collection(RunsCollection).InsertOne(ctx, report)
	if err != nil {
		log.Printf("Failed to record sync run: %v", err)
	}
}

// RecentRuns returns the most recent run reports, newest first
func (r *Recorder) RecentRuns(limit int) ([]ingestion.RunReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isConnected {
		return []ingestion.RunReport{}, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLen
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.database.Collection(RunsCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []ingestion.RunReport
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode sync runs: %w", err)
	}
	return runs, nil
}

// Close disconnects the underlying client
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isConnected {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.client.Disconnect(ctx); err != nil {
		log.Printf("Failed to disconnect MongoDB: %v", err)
	}
	r.isConnected = false
}
