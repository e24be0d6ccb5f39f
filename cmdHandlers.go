package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"road-severity/advisor"
	"road-severity/config"
	"road-severity/db"
	"road-severity/models"
	"road-severity/session"
	"road-severity/severity"
	"road-severity/utils"
	"road-severity/web"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type modelInfo struct {
	FeatureOrder []string             `json:"featureOrder"`
	Options      map[string][]string  `json:"options"`
	Severities   []severity.Severity  `json:"severities"`
	Stats        *severity.ModelStats `json:"stats,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// app carries the dependencies shared by every handler.
type app struct {
	engine       *severity.Engine
	store        db.Store
	sessions     *session.Manager
	renderer     *web.Renderer
	predictor    *predictionService
	historyLimit int
	logger       *slog.Logger
}

func newApp(engine *severity.Engine, store db.Store, sessions *session.Manager, renderer *web.Renderer, adv advisor.Advisor, historyLimit int) *app {
	logger := utils.GetLogger()
	return &app{
		engine:       engine,
		store:        store,
		sessions:     sessions,
		renderer:     renderer,
		predictor:    &predictionService{engine: engine, store: store, advisor: adv, logger: logger},
		historyLimit: historyLimit,
		logger:       logger,
	}
}

func (a *app) modelInfo() modelInfo {
	info := modelInfo{
		FeatureOrder: a.engine.FeatureOrder(),
		Options:      a.engine.Options(),
		Severities:   severity.Severities(),
	}
	if c, ok := a.engine.Model().(*severity.Classifier); ok {
		stats := c.Stats()
		info.Stats = &stats
	}
	return info
}

// routes registers every page and API endpoint. socket may be nil.
func (a *app) routes(socket http.Handler) http.Handler {
	mux := http.NewServeMux()
	if socket != nil {
		mux.Handle("/socket.io/", socket)
	}
	mux.HandleFunc("/", a.handleHome)
	mux.HandleFunc("/register", a.handleRegister)
	mux.HandleFunc("/login", a.handleLogin)
	mux.HandleFunc("/logout", a.handleLogout)
	mux.Handle("/predict", a.sessions.Require(http.HandlerFunc(a.handlePredict)))
	mux.Handle("/history", a.sessions.Require(http.HandlerFunc(a.handleHistory)))
	mux.Handle("/clear_history", a.sessions.Require(http.HandlerFunc(a.handleClearHistory)))
	mux.HandleFunc("/api/predict", a.handleAPIPredict)
	mux.HandleFunc("/api/model", a.handleAPIModel)
	return mux
}

func (a *app) page(w http.ResponseWriter, r *http.Request, title string, data any) web.Page {
	page := web.Page{Title: title, Data: data}
	if username, err := a.sessions.Username(r); err == nil {
		page.Username = username
	}
	if flash, ok := session.PopFlash(w, r); ok {
		page.Flash = &flash
	}
	return page
}

func (a *app) render(w http.ResponseWriter, r *http.Request, status int, name string, page web.Page) {
	if err := a.renderer.RenderStatus(w, status, name, page); err != nil {
		err := xerrors.New(err)
		a.logger.ErrorContext(r.Context(), "failed to render page",
			slog.String("page", name),
			slog.Any("error", err),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (a *app) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	a.render(w, r, http.StatusOK, "home", a.page(w, r, "Home", nil))
}

func (a *app) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "register", a.page(w, r, "Register", nil))
	case http.MethodPost:
		ctx := r.Context()
		username := strings.TrimSpace(r.FormValue("username"))
		password := strings.TrimSpace(r.FormValue("password"))
		if username == "" || password == "" {
			session.SetFlash(w, session.Danger, "Username and password are required.")
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}

		hash, err := session.HashPassword(password)
		if errors.Is(err, session.ErrPasswordTooLong) {
			session.SetFlash(w, session.Danger, "Password must be at most 72 bytes.")
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}
		if err != nil {
			a.internalError(w, r, "failed to hash password", err)
			return
		}
		if _, err := a.store.CreateUser(ctx, username, hash); err != nil {
			if errors.Is(err, db.ErrUserExists) {
				session.SetFlash(w, session.Warning, "User already registered. Please log in.")
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			a.internalError(w, r, "failed to register user", err)
			return
		}

		if err := a.sessions.Issue(w, username); err != nil {
			a.internalError(w, r, "failed to issue session", err)
			return
		}
		a.logger.InfoContext(ctx, "user registered", slog.String("username", username))
		session.SetFlash(w, session.Success, "Registration successful! You are now logged in.")
		http.Redirect(w, r, "/predict", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "login", a.page(w, r, "Login", nil))
	case http.MethodPost:
		ctx := r.Context()
		username := strings.TrimSpace(r.FormValue("username"))
		password := strings.TrimSpace(r.FormValue("password"))

		user, err := a.store.GetUser(ctx, username)
		if err == nil {
			err = session.CheckPassword(user.PasswordHash, password)
		}
		if err != nil {
			if !errors.Is(err, db.ErrUserNotFound) && !errors.Is(err, session.ErrInvalidCredentials) {
				a.internalError(w, r, "failed to check credentials", err)
				return
			}
			page := a.page(w, r, "Login", nil)
			page.Flash = &session.Flash{Kind: session.Danger, Message: "Invalid credentials!"}
			a.render(w, r, http.StatusUnauthorized, "login", page)
			return
		}

		if err := a.sessions.Issue(w, user.Username); err != nil {
			a.internalError(w, r, "failed to issue session", err)
			return
		}
		session.SetFlash(w, session.Success, "Login successful!")
		http.Redirect(w, r, "/predict", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.Clear(w)
	session.SetFlash(w, session.Info, "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *app) predictForm(values map[string]string, fieldErr *models.FieldError) web.PredictForm {
	form := web.PredictForm{
		Fields:  a.engine.FeatureOrder(),
		Options: a.engine.Options(),
		Values:  values,
	}
	if fieldErr != nil {
		form.Error = fieldErr.Message
		form.Field = fieldErr.Field
	}
	return form
}

func (a *app) handlePredict(w http.ResponseWriter, r *http.Request) {
	username, _ := a.sessions.Username(r)

	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "predict", a.page(w, r, "Predict", a.predictForm(nil, nil)))
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		result, err := a.predictor.predict(r.Context(), username, r.PostForm)
		if err != nil {
			fieldErr, ok := requestError(err)
			if !ok {
				a.internalError(w, r, "prediction failed", err)
				return
			}
			values := make(map[string]string, len(r.PostForm))
			for key := range r.PostForm {
				values[key] = r.PostForm.Get(key)
			}
			a.render(w, r, http.StatusBadRequest, "predict", a.page(w, r, "Predict", a.predictForm(values, &fieldErr)))
			return
		}

		w.Header().Set("X-Request-ID", result.RequestID)
		a.render(w, r, http.StatusOK, "result", a.page(w, r, "Result", web.Result{
			Decision: result.Decision,
			Advice:   result.Advice,
		}))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleHistory(w http.ResponseWriter, r *http.Request) {
	username, _ := a.sessions.Username(r)

	entries, err := a.store.RecentPredictions(r.Context(), username, a.historyLimit)
	if err != nil {
		a.internalError(w, r, "failed to load history", err)
		return
	}

	rows := make([]web.HistoryRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, web.HistoryRow{
			When:       entry.CreatedAt.Local().Format(time.DateTime),
			Inputs:     entry.Inputs,
			Prediction: entry.Prediction,
		})
	}
	a.render(w, r, http.StatusOK, "history", a.page(w, r, "History", web.History{Entries: rows, Limit: a.historyLimit}))
}

func (a *app) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	username, _ := a.sessions.Username(r)
	if err := a.store.ClearPredictions(r.Context(), username); err != nil {
		a.internalError(w, r, "failed to clear history", err)
		return
	}
	session.SetFlash(w, session.Info, "Prediction history cleared.")
	http.Redirect(w, r, "/history", http.StatusSeeOther)
}

func (a *app) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	username, err := a.sessions.Username(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, session.LoginRequiredMessage)
		return
	}

	var payload map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := a.predictor.predict(r.Context(), username, sourceFromJSON(payload))
	if err != nil {
		if fieldErr, ok := requestError(err); ok {
			writeJSON(w, http.StatusBadRequest, apiError{Message: fieldErr.Message, Field: fieldErr.Field})
			return
		}
		err := xerrors.New(err)
		a.logger.ErrorContext(r.Context(), "prediction failed", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	w.Header().Set("X-Request-ID", result.RequestID)
	writeJSON(w, http.StatusOK, result.response())
}

func (a *app) handleAPIModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, a.modelInfo())
}

func (a *app) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	xerr := xerrors.New(err)
	a.logger.ErrorContext(r.Context(), msg, slog.Any("error", xerr))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func serve(cfg config.Config, protocol, port string) {
	ctx := context.Background()
	logger := utils.GetLogger()
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	engine, err := severity.LoadEngine(cfg.Model.Dir)
	if err != nil {
		log.Fatalf("failed to load severity engine: %v", err)
	}
	log.Printf("Loaded severity engine from %s (features: %s)\n", cfg.Model.Dir, strings.Join(engine.FeatureOrder(), ", "))

	store, err := db.NewDBClient(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Type, err)
	}
	defer store.Close()

	if cfg.Session.Generated {
		logger.WarnContext(ctx, "SESSION_SECRET not set, using a random secret for this process; sessions end on restart")
	}
	sessions := session.NewManager(cfg.Session.Secret, cfg.Session.TTL)
	sessions.SetSecure(cfg.Session.Secure || protocol == "https")

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatalf("failed to parse templates: %v", err)
	}

	var adv advisor.Advisor
	if cfg.Advisor.Enabled() {
		gemini, err := advisor.NewGeminiAdvisor(ctx, cfg.Advisor.APIKey, cfg.Advisor.Model)
		if err != nil {
			err := xerrors.New(err)
			logger.WarnContext(ctx, "advisor disabled", slog.Any("error", err))
		} else {
			adv = gemini
			log.Printf("Safety advisor enabled (model %s)\n", cfg.Advisor.Model)
		}
	}

	application := newApp(engine, store, sessions, renderer, adv, cfg.Server.HistoryLimit)
	controller := newSocketController(application)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		username := controller.authenticate(socket.RemoteHeader())
		socket.SetContext(username)
		log.Printf("CONNECTED: %s, user: %q, remote addr: %s\n", socket.ID(), username, socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.emitModelInfo(socket)
	})

	server.OnEvent("/", "predict", func(socket socketio.Conn, msg string) {
		username, _ := socket.Context().(string)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handlePredict for socket %s: %v\n", socket.ID(), r)
					socket.Emit("predictionError", models.FieldError{Message: "internal server error during processing"})
				}
			}()
			controller.handlePredict(context.Background(), socket, username, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTP(protocol == "https", port, application.routes(server))
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert: set CERT_KEY and CERT_FILE")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Starting HTTP server on port %v", port)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
