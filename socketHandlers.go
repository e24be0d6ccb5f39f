package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"road-severity/models"
	"road-severity/session"

	"github.com/mdobak/go-xerrors"
)

// emitter is the part of socketio.Conn the controller needs.
type emitter interface {
	ID() string
	Emit(eventName string, v ...interface{})
}

type socketController struct {
	app *app
}

func newSocketController(a *app) *socketController {
	return &socketController{app: a}
}

// authenticate returns the session user from handshake headers, or "" for
// anonymous connections. Anonymous sockets may read model info only.
func (c *socketController) authenticate(header http.Header) string {
	username, err := c.app.sessions.UsernameFromHeader(header)
	if err != nil {
		return ""
	}
	return username
}

func (c *socketController) emitModelInfo(socket emitter) {
	socket.Emit("modelInfo", c.app.modelInfo())
}

func (c *socketController) handlePredict(ctx context.Context, socket emitter, username, msg string) {
	logger := c.app.logger

	if username == "" {
		socket.Emit("predictionError", models.FieldError{Message: session.LoginRequiredMessage})
		return
	}
	if msg == "" {
		socket.Emit("predictionError", models.FieldError{Message: "no prediction payload received"})
		return
	}

	var payload map[string]any
	dec := json.NewDecoder(strings.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse predict payload",
			slog.String("socketID", socket.ID()),
			slog.Any("error", err),
		)
		socket.Emit("predictionError", models.FieldError{Message: "invalid prediction payload"})
		return
	}

	result, err := c.app.predictor.predict(ctx, username, sourceFromJSON(payload))
	if err != nil {
		if fieldErr, ok := requestError(err); ok {
			socket.Emit("predictionError", fieldErr)
			return
		}
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "socket prediction failed",
			slog.String("socketID", socket.ID()),
			slog.Any("error", err),
		)
		socket.Emit("predictionError", models.FieldError{Message: "prediction failed"})
		return
	}

	socket.Emit("severity", result.response())
}
