package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/autopdf/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	agentsCollection      = "agents"
	preferencesCollection = "preferences"
)

// MongoStore implements Repository on a MongoDB database.
type MongoStore struct {
	client      *mongo.Client
	agents      *mongo.Collection
	preferences *mongo.Collection
}

type agentDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	AgentID     string             `bson:"agentId"`
	Name        string             `bson:"name"`
	Description string             `bson:"description"`
	Voice       string             `bson:"voice"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

type preferenceDocument struct {
	UserID    string    `bson:"userId"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongo connects to MongoDB and ensures the collection indexes exist.
func NewMongo(ctx context.Context, uri, database string) (Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:      client,
		agents:      db.Collection(agentsCollection),
		preferences: db.Collection(preferencesCollection),
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.agents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "agentId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.preferences.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Ping verifies database connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// CreateAgent inserts an agent document.
func (s *MongoStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	if agent.UpdatedAt.IsZero() {
		agent.UpdatedAt = agent.CreatedAt
	}

	if _, err := s.agents.InsertOne(ctx, toAgentDocument(agent)); err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// ListAgents returns all agents ordered newest first.
func (s *MongoStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	cur, err := s.agents.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find agents: %w", err)
	}

	var docs []agentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}

	agents := make([]*domain.Agent, 0, len(docs))
	for i := range docs {
		agents = append(agents, docs[i].toDomain())
	}
	return agents, nil
}

// GetAgent retrieves an agent by its upstream ID.
func (s *MongoStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	var doc agentDocument
	err := s.agents.FindOne(ctx, bson.M{"agentId": agentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}
	return doc.toDomain(), nil
}

// GetPreference retrieves a single user preference.
func (s *MongoStore) GetPreference(ctx context.Context, userID, key string) (*domain.Preference, error) {
	var doc preferenceDocument
	err := s.preferences.FindOne(ctx, bson.M{"userId": userID, "key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find preference: %w", err)
	}
	return &domain.Preference{
		UserID:    doc.UserID,
		Key:       doc.Key,
		Value:     doc.Value,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// SetPreference creates or replaces a user preference.
func (s *MongoStore) SetPreference(ctx context.Context, pref *domain.Preference) error {
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = time.Now()
	}

	filter := bson.M{"userId": pref.UserID, "key": pref.Key}
	update := bson.M{"$set": bson.M{"value": pref.Value, "updatedAt": pref.UpdatedAt}}
	if _, err := s.preferences.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func toAgentDocument(agent *domain.Agent) agentDocument {
	return agentDocument{
		AgentID:     agent.ID,
		Name:        agent.Name,
		Description: agent.Description,
		Voice:       agent.Voice,
		CreatedAt:   agent.CreatedAt.UTC(),
		UpdatedAt:   agent.UpdatedAt.UTC(),
	}
}

func (d agentDocument) toDomain() *domain.Agent {
	id := d.AgentID
	if id == "" {
		// Records written before agentId was mirrored only carry the ObjectID.
		id = d.ID.Hex()
	}
	return &domain.Agent{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Voice:       d.Voice,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
