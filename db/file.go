package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"road-severity/models"
	"road-severity/severity"
	"road-severity/utils"
)

type fileState struct {
	NextUserID    int64                 `json:"nextUserId"`
	NextHistoryID int64                 `json:"nextHistoryId"`
	Users         []fileUser            `json:"users"`
	History       []models.HistoryEntry `json:"history"`
}

type fileUser struct {
	models.User
	PasswordHash string `json:"password"`
}

// FileClient keeps users and history in a single JSON document. It is meant
// for local development and single-process deployments.
type FileClient struct {
	path string
	mu   sync.RWMutex
}

func NewFileClient(path string) (*FileClient, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return nil, fmt.Errorf("error creating directory: %w", err)
		}
	}
	fc := &FileClient{path: path}
	if _, err := fc.load(); err != nil {
		return nil, err
	}
	return fc, nil
}

// load reads the document; callers hold mu.
func (fc *FileClient) load() (*fileState, error) {
	data, err := os.ReadFile(fc.path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return &fileState{NextUserID: 1, NextHistoryID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading store file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("error unmarshaling store file: %w", err)
	}
	return &state, nil
}

// save writes to a temp file and renames it over the store; callers hold mu.
func (fc *FileClient) save(state *fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling store: %w", err)
	}
	tmp := fc.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing store file: %w", err)
	}
	if err := os.Rename(tmp, fc.path); err != nil {
		return fmt.Errorf("error replacing store file: %w", err)
	}
	return nil
}

func (fc *FileClient) Close() error { return nil }

func (fc *FileClient) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	state, err := fc.load()
	if err != nil {
		return models.User{}, err
	}
	for _, u := range state.Users {
		if u.Username == username {
			return models.User{}, ErrUserExists
		}
	}

	user := models.User{
		ID:           state.NextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	state.NextUserID++
	state.Users = append(state.Users, fileUser{User: user, PasswordHash: passwordHash})
	if err := fc.save(state); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (fc *FileClient) GetUser(ctx context.Context, username string) (models.User, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	state, err := fc.load()
	if err != nil {
		return models.User{}, err
	}
	for _, u := range state.Users {
		if u.Username == username {
			user := u.User
			user.PasswordHash = u.PasswordHash
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (fc *FileClient) RecordPrediction(ctx context.Context, username string, trip severity.TripRecord, verdict severity.Severity) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	state, err := fc.load()
	if err != nil {
		return err
	}
	state.History = append(state.History, models.HistoryEntry{
		ID:         strconv.FormatInt(state.NextHistoryID, 10),
		Username:   username,
		Inputs:     trip,
		Prediction: verdict,
		CreatedAt:  time.Now().UTC(),
	})
	state.NextHistoryID++
	return fc.save(state)
}

func (fc *FileClient) RecentPredictions(ctx context.Context, username string, limit int) ([]models.HistoryEntry, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	entries := []models.HistoryEntry{}
	if limit <= 0 {
		return entries, nil
	}
	state, err := fc.load()
	if err != nil {
		return nil, err
	}
	// History is append-only, so walking backwards yields newest first.
	for i := len(state.History) - 1; i >= 0 && len(entries) < limit; i-- {
		if state.History[i].Username == username {
			entries = append(entries, state.History[i])
		}
	}
	return entries, nil
}

func (fc *FileClient) ClearPredictions(ctx context.Context, username string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	state, err := fc.load()
	if err != nil {
		return err
	}
	kept := state.History[:0]
	for _, entry := range state.History {
		if entry.Username != username {
			kept = append(kept, entry)
		}
	}
	state.History = kept
	return fc.save(state)
}
