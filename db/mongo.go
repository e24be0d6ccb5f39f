package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"road-severity/models"
	"road-severity/severity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDB = "road_severity"

type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"password"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type mongoHistory struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty"`
	Username   string              `bson:"username"`
	Inputs     severity.TripRecord `bson:"inputs"`
	Prediction string              `bson:"prediction"`
	CreatedAt  time.Time           `bson:"created_at"`
}

func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	if uri == "" {
		return nil, errors.New("MONGO_URI is required for the mongo backend")
	}
	if database == "" {
		database = defaultMongoDB
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	mc := &MongoClient{client: client, db: client.Database(database)}
	if err := mc.ensureIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return mc, nil
}

func (db *MongoClient) ensureIndexes(ctx context.Context) error {
	_, err := db.db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating users index: %w", err)
	}

	_, err = db.db.Collection("history").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("error creating history index: %w", err)
	}
	return nil
}

func (db *MongoClient) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoClient) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	doc := mongoUser{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := db.db.Collection("users").InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("failed to register user: %w", err)
	}
	return models.User{Username: username, PasswordHash: passwordHash, CreatedAt: doc.CreatedAt}, nil
}

func (db *MongoClient) GetUser(ctx context.Context, username string) (models.User, error) {
	var doc mongoUser
	err := db.db.Collection("users").FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return models.User{
		Username:     doc.Username,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func (db *MongoClient) RecordPrediction(ctx context.Context, username string, trip severity.TripRecord, verdict severity.Severity) error {
	doc := mongoHistory{
		Username:   username,
		Inputs:     trip,
		Prediction: verdict.String(),
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := db.db.Collection("history").InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error storing prediction: %w", err)
	}
	return nil
}

func (db *MongoClient) RecentPredictions(ctx context.Context, username string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		return []models.HistoryEntry{}, nil
	}

	// ObjectIDs are monotonic per process, so _id breaks created_at ties.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := db.db.Collection("history").Find(ctx, bson.M{"username": username}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []models.HistoryEntry{}
	for cursor.Next(ctx) {
		var doc mongoHistory
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding history: %w", err)
		}
		verdict, err := severity.ParseSeverity(doc.Prediction)
		if err != nil {
			return nil, fmt.Errorf("history document %s: %w", doc.ID.Hex(), err)
		}
		entries = append(entries, models.HistoryEntry{
			ID:         doc.ID.Hex(),
			Username:   doc.Username,
			Inputs:     doc.Inputs,
			Prediction: verdict,
			CreatedAt:  doc.CreatedAt,
		})
	}
	return entries, cursor.Err()
}

func (db *MongoClient) ClearPredictions(ctx context.Context, username string) error {
	if _, err := db.db.Collection("history").DeleteMany(ctx, bson.M{"username": username}); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
