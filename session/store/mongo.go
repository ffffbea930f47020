package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sweetpotato0/auto-concierge/message"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements ConversationStore using a MongoDB collection with a
// TTL index, so entries expire on their own when never cleared.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	TTL        time.Duration
}

// DefaultMongoConfig returns default MongoDB configuration.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "auto_concierge",
		Collection: "conversations",
		TTL:        24 * time.Hour,
	}
}

// mongoEntry is the stored form of one conversation entry.
type mongoEntry struct {
	UserID    string    `bson:"user_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
	Seq       int64     `bson:"seq"`
}

// NewMongoStore creates a new MongoDB-based conversation store.
func NewMongoStore(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(config.Database).Collection(config.Collection)
	store := &MongoStore{
		client:     client,
		collection: collection,
	}

	if err := store.createIndexes(context.Background(), config.TTL); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context, ttl time.Duration) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "seq", Value: 1}},
		},
	}
	if ttl > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		})
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

// GetConversation returns the user's entries in append order.
func (s *MongoStore) GetConversation(ctx context.Context, userID string) ([]*message.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*message.Message
	for cursor.Next(ctx) {
		var doc mongoEntry
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode conversation entry: %w", err)
		}
		entries = append(entries, &message.Message{
			Role:      message.Role(doc.Role),
			Content:   doc.Content,
			Timestamp: doc.Timestamp,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("conversation cursor failed: %w", err)
	}
	return entries, nil
}

// AppendConversation inserts entries with monotonically increasing sequence
// numbers so reads preserve append order.
func (s *MongoStore) AppendConversation(ctx context.Context, userID string, entries []*message.Message) error {
	if len(entries) == 0 {
		return nil
	}

	base := time.Now().UnixNano()
	docs := make([]interface{}, 0, len(entries))
	for i, entry := range entries {
		docs = append(docs, mongoEntry{
			UserID:    userID,
			Role:      string(entry.Role),
			Content:   entry.Content,
			Timestamp: entry.Timestamp,
			Seq:       base + int64(i),
		})
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append conversation: %w", err)
	}
	return nil
}

// ClearConversation removes every entry for the user.
func (s *MongoStore) ClearConversation(ctx context.Context, userID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
