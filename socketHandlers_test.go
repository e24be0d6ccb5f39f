package main

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"road-severity/models"
	"road-severity/session"
	"road-severity/severity"
)

type emitted struct {
	event string
	args  []interface{}
}

type fakeSocket struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeSocket) ID() string { return "sock-1" }

func (f *fakeSocket) Emit(eventName string, v ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{event: eventName, args: v})
}

func (f *fakeSocket) last(t *testing.T) emitted {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatal("nothing emitted")
	}
	return f.events[len(f.events)-1]
}

func TestSocketPredictEmitsSeverity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	controller := newSocketController(env.app)
	socket := &fakeSocket{}

	msg := `{"number_of_vehicles": "1", "day_of_week": "Sunday", "road_type": "Roundabout",
		"speed_limit": "60", "light_conditions": "Daylight", "weather_conditions": "Fine no high winds",
		"road_surface_conditions": "Frost / Ice"}`
	controller.handlePredict(context.Background(), socket, "alice", msg)

	got := socket.last(t)
	if got.event != "severity" {
		t.Fatalf("expected severity event, got %q (%v)", got.event, got.args)
	}
	resp, ok := got.args[0].(models.PredictionResponse)
	if !ok {
		t.Fatalf("unexpected payload type %T", got.args[0])
	}
	if resp.Severity != severity.Serious || resp.RequestID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSocketPredictLargeVehicleCount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	controller := newSocketController(env.app)
	socket := &fakeSocket{}

	msg := `{"number_of_vehicles": 2500000, "day_of_week": "Sunday", "road_type": "Roundabout",
		"speed_limit": 60, "light_conditions": "Daylight", "weather_conditions": "Fine no high winds",
		"road_surface_conditions": "Dry"}`
	controller.handlePredict(context.Background(), socket, "alice", msg)

	got := socket.last(t)
	if got.event != "severity" {
		t.Fatalf("expected severity event, got %q (%v)", got.event, got.args)
	}
	resp, ok := got.args[0].(models.PredictionResponse)
	if !ok {
		t.Fatalf("unexpected payload type %T", got.args[0])
	}
	if resp.Trip.NumberOfVehicles != 2500000 {
		t.Fatalf("expected 2500000 vehicles, got %d", resp.Trip.NumberOfVehicles)
	}
}

func TestSocketPredictErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	controller := newSocketController(env.app)

	cases := []struct {
		name     string
		username string
		msg      string
		field    string
		message  string
	}{
		{name: "anonymous", username: "", msg: `{}`, message: session.LoginRequiredMessage},
		{name: "empty", username: "alice", msg: "", message: "no prediction payload received"},
		{name: "malformed", username: "alice", msg: "{", message: "invalid prediction payload"},
		{
			name:     "unknown road",
			username: "alice",
			msg: `{"number_of_vehicles": 1, "day_of_week": "Sunday", "road_type": "Motorway",
				"speed_limit": 30, "light_conditions": "Daylight", "weather_conditions": "Fine no high winds",
				"road_surface_conditions": "Dry"}`,
			field: severity.FieldRoadType,
		},
		{
			name:     "bad speed",
			username: "alice",
			msg:      `{"number_of_vehicles": 1, "speed_limit": 35}`,
			field:    severity.FieldSpeedLimit,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			socket := &fakeSocket{}
			controller.handlePredict(context.Background(), socket, tc.username, tc.msg)

			got := socket.last(t)
			if got.event != "predictionError" {
				t.Fatalf("expected predictionError, got %q", got.event)
			}
			fieldErr, ok := got.args[0].(models.FieldError)
			if !ok {
				t.Fatalf("unexpected payload type %T", got.args[0])
			}
			if fieldErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, fieldErr.Field)
			}
			if tc.message != "" && fieldErr.Message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, fieldErr.Message)
			}
		})
	}

	entries, _ := env.store.RecentPredictions(context.Background(), "alice", 5)
	if len(entries) != 0 {
		t.Fatalf("rejected socket requests were recorded: %+v", entries)
	}
}

func TestSocketAuthenticateAndModelInfo(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	controller := newSocketController(env.app)

	if got := controller.authenticate(http.Header{}); got != "" {
		t.Fatalf("expected anonymous, got %q", got)
	}
	token, err := env.app.sessions.Sign("alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	header := http.Header{}
	header.Set("Cookie", session.CookieName+"="+token)
	if got := controller.authenticate(header); got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}

	socket := &fakeSocket{}
	controller.emitModelInfo(socket)
	got := socket.last(t)
	info, ok := got.args[0].(modelInfo)
	if got.event != "modelInfo" || !ok {
		t.Fatalf("unexpected emit %q %T", got.event, got.args[0])
	}
	if len(info.Options[severity.FieldWeatherConditions]) != 5 {
		t.Fatalf("unexpected weather options %v", info.Options[severity.FieldWeatherConditions])
	}
}
