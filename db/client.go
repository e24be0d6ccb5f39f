package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"road-severity/models"
	"road-severity/severity"
)

var (
	ErrUserExists   = errors.New("user already registered")
	ErrUserNotFound = errors.New("user not found")
)

// Store persists accounts and prediction history.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, username string) (models.User, error)

	// RecordPrediction appends one verdict to the user's history.
	RecordPrediction(ctx context.Context, username string, trip severity.TripRecord, verdict severity.Severity) error
	// RecentPredictions returns at most limit entries, most recent first.
	RecentPredictions(ctx context.Context, username string, limit int) ([]models.HistoryEntry, error)
	// ClearPredictions deletes every entry for the user.
	ClearPredictions(ctx context.Context, username string) error

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Type       string // "sqlite", "mongo" or "file"
	SQLitePath string
	FilePath   string
	MongoURI   string
	MongoDB    string
}

// NewDBClient opens the backend named by opts.Type.
func NewDBClient(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Type) {
	case "", "sqlite":
		return NewSQLiteClient(opts.SQLitePath)
	case "mongo", "mongodb":
		return NewMongoClient(ctx, opts.MongoURI, opts.MongoDB)
	case "file", "json":
		return NewFileClient(opts.FilePath)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", opts.Type)
	}
}
