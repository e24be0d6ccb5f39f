package models

import (
	"time"

	"road-severity/severity"
)

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HistoryEntry is one recorded prediction for a user.
type HistoryEntry struct {
	ID         string              `json:"id"`
	Username   string              `json:"username"`
	Inputs     severity.TripRecord `json:"inputs"`
	Prediction severity.Severity   `json:"prediction"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// PredictionResponse is returned by the prediction API and socket event.
type PredictionResponse struct {
	RequestID    string              `json:"requestId"`
	Trip         severity.TripRecord `json:"trip"`
	RuleVerdict  severity.Severity   `json:"ruleVerdict"`
	ModelVerdict severity.Severity   `json:"modelVerdict"`
	Severity     severity.Severity   `json:"severity"`
	RuleOverride bool                `json:"ruleOverride"`
	Advice       string              `json:"advice,omitempty"`
	Recorded     bool                `json:"recorded"`
}

// FieldError names the input field that caused a rejected request.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}
