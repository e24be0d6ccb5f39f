package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"road-severity/advisor"
	"road-severity/db"
	"road-severity/models"
	"road-severity/severity"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
)

const adviceTimeout = 5 * time.Second

// predictionService runs one request through parse, decide, record and advice.
type predictionService struct {
	engine  *severity.Engine
	store   db.Store
	advisor advisor.Advisor
	logger  *slog.Logger
}

type prediction struct {
	RequestID string
	Decision  severity.Decision
	Advice    string
	Recorded  bool
}

func (p prediction) response() models.PredictionResponse {
	return models.PredictionResponse{
		RequestID:    p.RequestID,
		Trip:         p.Decision.Trip,
		RuleVerdict:  p.Decision.RuleVerdict,
		ModelVerdict: p.Decision.ModelVerdict,
		Severity:     p.Decision.Severity,
		RuleOverride: p.Decision.RuleOverride(),
		Advice:       p.Advice,
		Recorded:     p.Recorded,
	}
}

func (s *predictionService) predict(ctx context.Context, username string, src severity.FieldSource) (prediction, error) {
	requestID := uuid.NewString()

	decision, err := s.engine.DecideForm(src)
	if err != nil {
		if _, ok := requestError(err); ok {
			s.logger.InfoContext(ctx, "rejected prediction request",
				slog.String("requestID", requestID),
				slog.String("username", username),
				slog.String("reason", err.Error()),
			)
		}
		return prediction{RequestID: requestID}, err
	}

	result := prediction{RequestID: requestID, Decision: decision}

	if err := s.store.RecordPrediction(ctx, username, decision.Trip, decision.Severity); err != nil {
		err := xerrors.New(err)
		s.logger.ErrorContext(ctx, "failed to record prediction",
			slog.String("requestID", requestID),
			slog.Any("error", err),
		)
	} else {
		result.Recorded = true
	}

	if s.advisor != nil {
		adviceCtx, cancel := context.WithTimeout(ctx, adviceTimeout)
		advice, err := s.advisor.Advise(adviceCtx, decision)
		cancel()
		if err != nil {
			err := xerrors.New(err)
			s.logger.WarnContext(ctx, "advisor failed",
				slog.String("requestID", requestID),
				slog.Any("error", err),
			)
		} else {
			result.Advice = advice
		}
	}

	s.logger.InfoContext(ctx, "severity decided",
		slog.String("requestID", requestID),
		slog.String("username", username),
		slog.String("rule", decision.RuleVerdict.String()),
		slog.String("model", decision.ModelVerdict.String()),
		slog.String("severity", decision.Severity.String()),
		slog.Bool("recorded", result.Recorded),
	)
	return result, nil
}

// requestError reports whether err was caused by the caller's input, and
// which field it concerns.
func requestError(err error) (models.FieldError, bool) {
	var unknown *severity.UnknownCategoryError
	if errors.As(err, &unknown) {
		return models.FieldError{
			Field:   unknown.Field,
			Message: fmt.Sprintf("%q is not a known value for %s", unknown.Value, unknown.Field),
		}, true
	}
	var invalid *severity.InvalidNumberError
	if errors.As(err, &invalid) {
		return models.FieldError{
			Field:   invalid.Field,
			Message: fmt.Sprintf("%s: %s", invalid.Field, invalid.Reason),
		}, true
	}
	return models.FieldError{}, false
}

// sourceFromJSON stringifies a decoded JSON object so JSON numbers and
// strings are both accepted for numeric fields. Payloads should be decoded
// with UseNumber so large counts keep their integer spelling.
func sourceFromJSON(payload map[string]any) severity.MapSource {
	src := make(severity.MapSource, len(payload))
	for key, value := range payload {
		switch v := value.(type) {
		case string:
			src[key] = v
		case json.Number:
			src[key] = v.String()
		case float64:
			src[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
		default:
			src[key] = fmt.Sprint(v)
		}
	}
	return src
}
