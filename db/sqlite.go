package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"road-severity/models"
	"road-severity/severity"
	"road-severity/utils"

	"github.com/mattn/go-sqlite3"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && !strings.HasPrefix(dbPath, ":memory:") {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createUsersTable := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL UNIQUE,
        password TEXT NOT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    `

	createHistoryTable := `
    CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL,
        inputs TEXT NOT NULL,
        prediction TEXT NOT NULL,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_history_username ON history(username, id);
    `

	if _, err := db.Exec(createUsersTable); err != nil {
		return fmt.Errorf("error creating users table: %w", err)
	}
	if _, err := db.Exec(createHistoryTable); err != nil {
		return fmt.Errorf("error creating history table: %w", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

func (db *SQLiteClient) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	now := time.Now().UTC()
	res, err := db.db.ExecContext(ctx,
		"INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)",
		username, passwordHash, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("failed to register user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to read user id: %w", err)
	}
	return models.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (db *SQLiteClient) GetUser(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := db.db.QueryRowContext(ctx,
		"SELECT id, username, password, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return user, nil
}

func (db *SQLiteClient) RecordPrediction(ctx context.Context, username string, trip severity.TripRecord, verdict severity.Severity) error {
	inputsJSON, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("error marshaling inputs: %w", err)
	}

	_, err = db.db.ExecContext(ctx,
		"INSERT INTO history (username, inputs, prediction, created_at) VALUES (?, ?, ?, ?)",
		username, string(inputsJSON), verdict.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("error storing prediction: %w", err)
	}
	return nil
}

func (db *SQLiteClient) RecentPredictions(ctx context.Context, username string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		return []models.HistoryEntry{}, nil
	}

	rows, err := db.db.QueryContext(ctx, `
		SELECT id, username, inputs, prediction, created_at
		FROM history
		WHERE username = ?
		ORDER BY id DESC
		LIMIT ?
	`, username, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var (
			entry      models.HistoryEntry
			id         int64
			inputsJSON string
			prediction string
		)
		if err := rows.Scan(&id, &entry.Username, &inputsJSON, &prediction, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning history: %w", err)
		}
		if err := json.Unmarshal([]byte(inputsJSON), &entry.Inputs); err != nil {
			return nil, fmt.Errorf("error unmarshaling inputs: %w", err)
		}
		if entry.Prediction, err = severity.ParseSeverity(prediction); err != nil {
			return nil, fmt.Errorf("history row %d: %w", id, err)
		}
		entry.ID = strconv.FormatInt(id, 10)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (db *SQLiteClient) ClearPredictions(ctx context.Context, username string) error {
	if _, err := db.db.ExecContext(ctx, "DELETE FROM history WHERE username = ?", username); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
