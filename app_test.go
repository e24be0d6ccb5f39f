package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"road-severity/advisor"
	"road-severity/db"
	"road-severity/session"
	"road-severity/severity"
	"road-severity/utils"
	"road-severity/web"
)

// constantModel always returns the same class.
type constantModel struct {
	class int
	dims  int
}

func (m constantModel) Predict(features []float64) (int, error) { return m.class, nil }
func (m constantModel) Dimensions() int { return m.dims }

type stubAdvisor struct {
	advice string
	err    error
}

func (s stubAdvisor) Advise(ctx context.Context, d severity.Decision) (string, error) {
	return s.advice, s.err
}

func newTestEngine(t *testing.T, modelVerdict severity.Severity) *severity.Engine {
	t.Helper()
	var codecs []*severity.LabelCodec
	for _, field := range severity.DefaultFeatureOrder() {
		if severity.IsNumericField(field) {
			continue
		}
		lc, err := severity.FitLabelCodec(field, severity.Vocabulary[field])
		if err != nil {
			t.Fatalf("FitLabelCodec: %v", err)
		}
		codecs = append(codecs, lc)
	}
	codec, err := severity.NewCodec(codecs...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	target, err := severity.FitLabelCodec(severity.FieldTarget, []string{"Slight", "Serious", "Fatal"})
	if err != nil {
		t.Fatalf("FitLabelCodec target: %v", err)
	}
	class, err := target.Encode(modelVerdict.String())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	order := severity.DefaultFeatureOrder()
	engine, err := severity.NewEngine(constantModel{class: class, dims: len(order)}, codec, order, target)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

type testEnv struct {
	app    *app
	store  db.Store
	server *httptest.Server
}

func newTestEnv(t *testing.T, adv advisor.Advisor) *testEnv {
	t.Helper()
	store, err := db.NewSQLiteClient(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("NewSQLiteClient: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	a := newApp(newTestEngine(t, severity.Slight), store, session.NewManager("test-secret", time.Hour), renderer, adv, 5)
	a.logger = utils.NewLogger(io.Discard, slog.LevelDebug)
	a.predictor.logger = a.logger

	server := httptest.NewServer(a.routes(nil))
	t.Cleanup(server.Close)
	return &testEnv{app: a, store: store, server: server}
}

// client returns an HTTP client with a cookie jar that does not follow redirects.
func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func (e *testEnv) register(t *testing.T, c *http.Client, username string) {
	t.Helper()
	resp, err := c.PostForm(e.server.URL+"/register", url.Values{"username": {username}, "password": {"pw"}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/predict" {
		t.Fatalf("register: expected redirect to /predict, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func tripForm(speed, light, weather string) url.Values {
	return url.Values{
		severity.FieldNumberOfVehicles:      {"2"},
		severity.FieldDayOfWeek:             {"Friday"},
		severity.FieldRoadType:              {"Dual carriageway"},
		severity.FieldSpeedLimit:            {speed},
		severity.FieldLightConditions:       {light},
		severity.FieldWeatherConditions:     {weather},
		severity.FieldRoadSurfaceConditions: {"Dry"},
	}
}

func TestProtectedPagesRedirectAnonymous(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)
	for _, path := range []string{"/predict", "/history", "/clear_history"} {
		resp, err := c.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/register" {
			t.Fatalf("GET %s: expected redirect to /register, got %d %q", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}

	resp, err := c.Get(env.server.URL + "/register")
	if err != nil {
		t.Fatalf("GET /register: %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, session.LoginRequiredMessage) {
		t.Fatalf("expected login-required flash on register page")
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)
	env.register(t, c, "alice")

	user, err := env.store.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.PasswordHash == "pw" {
		t.Fatal("password stored in plaintext")
	}

	resp, err := c.PostForm(env.server.URL+"/register", url.Values{"username": {"alice"}, "password": {"pw"}})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected duplicate register to redirect to /login, got %q", resp.Header.Get("Location"))
	}

	resp, _ = c.Get(env.server.URL + "/logout")
	resp.Body.Close()
	resp, _ = c.Get(env.server.URL + "/predict")
	resp.Body.Close()
	if resp.Header.Get("Location") != "/register" {
		t.Fatal("expected session cleared after logout")
	}

	resp, err = c.PostForm(env.server.URL+"/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(readBody(t, resp), "Invalid credentials!") {
		t.Fatalf("expected rejected login, got %d", resp.StatusCode)
	}

	resp, err = c.PostForm(env.server.URL+"/login", url.Values{"username": {"alice"}, "password": {"pw"}})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/predict" {
		t.Fatalf("expected login redirect to /predict, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestRegisterRejectsLongPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)

	long := strings.Repeat("x", session.MaxPasswordBytes+8)
	resp, err := c.PostForm(env.server.URL+"/register", url.Values{"username": {"bob"}, "password": {long}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/register" {
		t.Fatalf("expected redirect back to /register, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if _, err := env.store.GetUser(context.Background(), "bob"); !errors.Is(err, db.ErrUserNotFound) {
		t.Fatalf("expected no user stored, got %v", err)
	}
}

func TestLoginTrimsPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)

	resp, err := c.PostForm(env.server.URL+"/register", url.Values{"username": {"carol"}, "password": {" pw "}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Location") != "/predict" {
		t.Fatalf("register: expected redirect to /predict, got %q", resp.Header.Get("Location"))
	}

	for _, password := range []string{"pw", " pw "} {
		resp, err := c.PostForm(env.server.URL+"/login", url.Values{"username": {"carol"}, "password": {password}})
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/predict" {
			t.Fatalf("login with %q: got %d %q", password, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
}

func TestPredictFormRecordsHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)
	env.register(t, c, "alice")

	resp, err := c.Get(env.server.URL + "/predict")
	if err != nil {
		t.Fatalf("GET /predict: %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Raining with high winds") {
		t.Fatal("predict form missing weather options")
	}

	// Rules say Fatal while the model says Slight; the stricter verdict wins.
	resp, err = c.PostForm(env.server.URL+"/predict", tripForm("80", "Darkness - no lighting", "Raining with high winds"))
	if err != nil {
		t.Fatalf("POST /predict: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Predicted severity") || !strings.Contains(body, ">Fatal<") {
		t.Fatalf("unexpected result page (%d):\n%s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	entries, err := env.store.RecentPredictions(context.Background(), "alice", 5)
	if err != nil {
		t.Fatalf("RecentPredictions: %v", err)
	}
	if len(entries) != 1 || entries[0].Prediction != severity.Fatal || entries[0].Inputs.SpeedLimit != 80 {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestPredictFormRejectsUnknownCategory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)
	env.register(t, c, "alice")

	resp, err := c.PostForm(env.server.URL+"/predict", tripForm("30", "Daylight", "Hailing"))
	if err != nil {
		t.Fatalf("POST /predict: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "weather_conditions") {
		t.Fatalf("expected 400 naming the field, got %d:\n%s", resp.StatusCode, body)
	}

	entries, _ := env.store.RecentPredictions(context.Background(), "alice", 5)
	if len(entries) != 0 {
		t.Fatalf("rejected request was recorded: %+v", entries)
	}
}

func TestHistoryLimitAndClear(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	c := env.client(t)
	env.register(t, c, "alice")

	for i := 0; i < 7; i++ {
		resp, err := c.PostForm(env.server.URL+"/predict", tripForm("30", "Daylight", "Fine no high winds"))
		if err != nil {
			t.Fatalf("POST /predict: %v", err)
		}
		resp.Body.Close()
	}

	resp, err := c.Get(env.server.URL + "/history")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	body := readBody(t, resp)
	if got := strings.Count(body, `class="severity-slight"`); got != 5 {
		t.Fatalf("expected 5 history rows, got %d", got)
	}

	resp, err = c.Get(env.server.URL + "/clear_history")
	if err != nil {
		t.Fatalf("GET /clear_history: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Location") != "/history" {
		t.Fatalf("expected redirect to /history, got %q", resp.Header.Get("Location"))
	}
	entries, _ := env.store.RecentPredictions(context.Background(), "alice", 5)
	if len(entries) != 0 {
		t.Fatalf("expected history cleared, got %d", len(entries))
	}
}

func TestAPIPredict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubAdvisor{advice: "Reduce speed."})
	c := env.client(t)

	payload := `{"number_of_vehicles": 3, "day_of_week": "Monday", "road_type": "Single carriageway",
		"speed_limit": 70, "light_conditions": "Daylight", "weather_conditions": "Fine no high winds",
		"road_surface_conditions": "Dry"}`

	resp, err := c.Post(env.server.URL+"/api/predict", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/predict: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.StatusCode)
	}

	env.register(t, c, "alice")
	resp, err = c.Post(env.server.URL+"/api/predict", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/predict: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	for _, want := range []string{`"severity":"Serious"`, `"ruleOverride":true`, `"advice":"Reduce speed."`, `"recorded":true`} {
		if !strings.Contains(body, want) {
			t.Fatalf("response missing %s: %s", want, body)
		}
	}

	resp, err = c.Post(env.server.URL+"/api/predict", "application/json",
		strings.NewReader(`{"number_of_vehicles": 0, "speed_limit": 30}`))
	if err != nil {
		t.Fatalf("POST /api/predict: %v", err)
	}
	body = readBody(t, resp)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, `"field":"number_of_vehicles"`) {
		t.Fatalf("expected 400 naming number_of_vehicles, got %d: %s", resp.StatusCode, body)
	}

	large := strings.Replace(payload, `"number_of_vehicles": 3`, `"number_of_vehicles": 1000000`, 1)
	resp, err = c.Post(env.server.URL+"/api/predict", "application/json", strings.NewReader(large))
	if err != nil {
		t.Fatalf("POST /api/predict: %v", err)
	}
	body = readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"number_of_vehicles":1000000`) {
		t.Fatalf("expected large vehicle count accepted, got %d: %s", resp.StatusCode, body)
	}
}

func TestSourceFromJSONKeepsIntegers(t *testing.T) {
	t.Parallel()

	src := sourceFromJSON(map[string]any{
		severity.FieldNumberOfVehicles: json.Number("1000000"),
		severity.FieldSpeedLimit:       float64(2e7),
		severity.FieldDayOfWeek:        "Monday",
		severity.FieldRoadType:         nil,
	})
	if got := src[severity.FieldNumberOfVehicles]; got != "1000000" {
		t.Fatalf("json.Number: got %q", got)
	}
	if got := src[severity.FieldSpeedLimit]; got != "20000000" {
		t.Fatalf("float64: got %q", got)
	}
	if got := src[severity.FieldDayOfWeek]; got != "Monday" {
		t.Fatalf("string: got %q", got)
	}
	if _, ok := src[severity.FieldRoadType]; ok {
		t.Fatal("null value should be skipped")
	}
}

func TestAdvisorFailureKeepsVerdict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, stubAdvisor{err: errors.New("quota exceeded")})
	src := severity.MapSource{}
	for key, values := range tripForm("80", "Darkness - no lighting", "Snowing with high winds") {
		src[key] = values[0]
	}

	result, err := env.app.predictor.predict(context.Background(), "alice", src)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if result.Decision.Severity != severity.Fatal || result.Advice != "" || !result.Recorded {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAPIModel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	resp, err := http.Get(env.server.URL + "/api/model")
	if err != nil {
		t.Fatalf("GET /api/model: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"featureOrder":["number_of_vehicles"`) {
		t.Fatalf("unexpected model info %d: %s", resp.StatusCode, body)
	}
}

func TestHomeAndNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	resp, err := http.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(readBody(t, resp), "Road Accident Severity") {
		t.Fatalf("unexpected home page %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
