package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"brokeradmin/core"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const adminSettingsCollection = "admin_settings"

// SettingsSingleResult interface for mocking
type SettingsSingleResult interface {
	Decode(v interface{}) error
}

// SettingsCollection is the subset of *mongo.Collection used by MongoAdminSettingsStorage.
type SettingsCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SettingsSingleResult
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SettingsSingleResult
}

// mongoSettingsCollection adapts *mongo.Collection to SettingsCollection
type mongoSettingsCollection struct {
	*mongo.Collection
}

func (m *mongoSettingsCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SettingsSingleResult {
	return m.Collection.FindOne(ctx, filter, opts...)
}

func (m *mongoSettingsCollection) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SettingsSingleResult {
	return m.Collection.FindOneAndUpdate(ctx, filter, update, opts...)
}

// MongoDB holds the MongoDB client and database
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDB connects and pings the server.
func NewMongoDB(uri, dbName string, maxPoolSize uint64, logger *zap.SugaredLogger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri).SetMaxPoolSize(maxPoolSize)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB successfully")

	return &MongoDB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

// EnsureIndexes creates the unique key index on the settings collection.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := m.Database.Collection(adminSettingsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create admin settings index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// adminSettingsDocument is the stored form of core.AdminSettings.
type adminSettingsDocument struct {
	ID          string    `bson:"_id"`
	Key         string    `bson:"key"`
	JSONValue   string    `bson:"json_value"`
	CreatedTime time.Time `bson:"created_time"`
}

func (d *adminSettingsDocument) toSettings() (*core.AdminSettings, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt admin settings id %q: %w", d.ID, err)
	}
	var value core.SettingsPayload
	if err := json.Unmarshal([]byte(d.JSONValue), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admin settings %q: %w", d.Key, err)
	}
	return &core.AdminSettings{
		ID:          id,
		Key:         d.Key,
		JSONValue:   value,
		CreatedTime: d.CreatedTime.UTC(),
	}, nil
}

// MongoAdminSettingsStorage keeps settings documents in MongoDB.
type MongoAdminSettingsStorage struct {
	collection SettingsCollection
	logger     *zap.SugaredLogger
}

// NewMongoAdminSettingsStorage creates a settings storage over the admin_settings collection.
func NewMongoAdminSettingsStorage(db *MongoDB, logger *zap.SugaredLogger) *MongoAdminSettingsStorage {
	return &MongoAdminSettingsStorage{
		collection: &mongoSettingsCollection{Collection: db.Database.Collection(adminSettingsCollection)},
		logger:     logger,
	}
}

// FindAdminSettingsByKey returns ErrSettingsNotFound when the key has never been saved.
func (s *MongoAdminSettingsStorage) FindAdminSettingsByKey(ctx context.Context, key string) (*core.AdminSettings, error) {
	var doc adminSettingsDocument
	if err := s.collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get admin settings %q: %w", key, err)
	}
	return doc.toSettings()
}

// SaveAdminSettings upserts the document under settings.Key, replacing its value.
func (s *MongoAdminSettingsStorage) SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error) {
	id := settings.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	value := settings.JSONValue
	if value == nil {
		value = core.SettingsPayload{}
	}
	// Stored as JSON text so nested documents round-trip as plain maps.
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal admin settings: %w", err)
	}

	update := bson.M{
		"$set": bson.M{"json_value": string(raw)},
		"$setOnInsert": bson.M{
			"_id":          id.String(),
			"created_time": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc adminSettingsDocument
	if err := s.collection.FindOneAndUpdate(ctx, bson.M{"key": settings.Key}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to save admin settings %q: %w", settings.Key, err)
	}
	s.logger.Debugw("Saved admin settings", "key", settings.Key, "backend", "mongodb")
	return doc.toSettings()
}
