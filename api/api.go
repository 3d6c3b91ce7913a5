// Package api exposes the broker admin control plane over HTTP.
//
// Every route under /api/admin requires a bearer access token issued to a SYS_ADMIN
// account. /api/auth/login and /api/auth/token are public; /api/ws accepts the access
// token as a query parameter because browsers cannot set headers on websocket upgrades.
//
//	@title			MQTT Broker Admin API
//	@version		1.0
//	@description	Control plane for MQTT broker administrators: accounts, settings and live sessions.
//
// @license.name	Apache 2.0
// @license.url	https://www.apache.org/licenses/LICENSE-2.0
//
// @host		localhost:8083
// @BasePath	/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				Enter "Bearer" followed by an access token
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"brokeradmin/auth"
	"brokeradmin/config"
	"brokeradmin/core"
	_ "brokeradmin/docs"
	"brokeradmin/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterEntry holds a rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AdminAccounts manages SYS_ADMIN accounts.
type AdminAccounts interface {
	CreateAdmin(ctx context.Context, draft core.AdminDraft) (*core.User, error)
	ListAdmins(ctx context.Context, link core.PageLink) (core.PageData[*core.User], error)
	GetAdmin(ctx context.Context, id uuid.UUID) (*core.User, error)
	DeleteAdmin(ctx context.Context, id, requesterID uuid.UUID) (*service.DeleteSummary, error)
}

// AdminSettings reads and writes keyed settings records.
type AdminSettings interface {
	GetAdminSettings(ctx context.Context, key string) (*core.AdminSettings, error)
	SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error)
}

// TestMailProbe sends a test mail with candidate settings.
type TestMailProbe interface {
	SendTestMail(ctx context.Context, candidate *core.AdminSettings, requesterEmail string) error
}

// SecurityPolicy reads and writes the security settings.
type SecurityPolicy interface {
	GetSecuritySettings(ctx context.Context) (core.SecuritySettings, error)
	SaveSecuritySettings(ctx context.Context, settings core.SecuritySettings) (core.SecuritySettings, error)
}

// TokenIssuer issues token pairs on behalf of other users.
type TokenIssuer interface {
	UserTokenAccessEnabled() bool
	IssueToken(ctx context.Context, userID uuid.UUID) (core.TokenPair, error)
}

// Authenticator exchanges credentials or refresh tokens for token pairs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (core.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error)
}

// AccessTokenParser validates bearer tokens.
type AccessTokenParser interface {
	ParseAccessToken(token string) (*auth.Claims, error)
}

// SessionServer upgrades requests into live sessions and closes them again.
type SessionServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, clientID string, userID uuid.UUID) error
	Disconnect(ctx context.Context, clientID string) error
	SessionCount() int
}

// ConnectionRegistry stores the session descriptors owned by users.
type ConnectionRegistry interface {
	SaveConnection(ctx context.Context, conn *core.WebSocketConnection) (*core.WebSocketConnection, error)
	GetConnection(ctx context.Context, id uuid.UUID) (*core.WebSocketConnection, error)
	DeleteConnection(ctx context.Context, id uuid.UUID) error
}

// Services bundles the collaborators the handlers delegate to.
type Services struct {
	Admins      AdminAccounts
	Settings    AdminSettings
	MailProbe   TestMailProbe
	Security    SecurityPolicy
	Tokens      TokenIssuer
	Auth        Authenticator
	TokenParser AccessTokenParser
	Sessions    SessionServer
	Connections ConnectionRegistry
}

// API represents the HTTP server
type API struct {
	router         *mux.Router
	server         *http.Server
	svc            Services
	config         *config.Config
	logger         *zap.SugaredLogger
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates a new API server
func NewAPI(svc Services, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		svc:          svc,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

// Handler returns the root handler, for tests and embedding.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) setupRoutes() {
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.metricsMiddleware)
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(a.preflight)
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	a.router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	a.router.HandleFunc("/api/auth/login", a.login).Methods("POST")
	a.router.HandleFunc("/api/auth/token", a.refreshToken).Methods("POST")

	ws := a.router.PathPrefix("/api/ws").Subrouter()
	ws.Use(a.jwtAuthMiddleware)
	ws.HandleFunc("", a.serveSession).Methods("GET")
	ws.HandleFunc("/connection", a.createConnection).Methods("POST")
	ws.HandleFunc("/connection/{connectionId}", a.deleteConnection).Methods("DELETE")

	admin := a.router.PathPrefix("/api/admin").Subrouter()
	admin.Use(a.jwtAuthMiddleware)
	admin.Use(a.requireSysAdmin)
	admin.HandleFunc("", a.createAdmin).Methods("POST")
	admin.HandleFunc("", a.listAdmins).Methods("GET")
	admin.HandleFunc("/settings/testMail", a.sendTestMail).Methods("POST")
	admin.HandleFunc("/settings/{key}", a.getAdminSettings).Methods("GET")
	admin.HandleFunc("/settings", a.saveAdminSettings).Methods("POST")
	admin.HandleFunc("/securitySettings", a.getSecuritySettings).Methods("GET")
	admin.HandleFunc("/securitySettings", a.saveSecuritySettings).Methods("POST")
	// Registered before /user/{userId} so the literal segment wins.
	admin.HandleFunc("/user/tokenAccessEnabled", a.tokenAccessEnabled).Methods("GET")
	admin.HandleFunc("/user/{userId}/token", a.issueUserToken).Methods("GET")
	admin.HandleFunc("/user/{userId}", a.getAdmin).Methods("GET")
	admin.HandleFunc("/{userId}", a.deleteAdmin).Methods("DELETE")
}

// Start starts the API server
func (a *API) Start(addr string) error {
	a.server = a.newServer(addr)
	return a.server.ListenAndServe()
}

// StartTLS starts the API server with TLS
func (a *API) StartTLS(addr, certFile, keyFile string) error {
	a.server = a.newServer(addr)
	return a.server.ListenAndServeTLS(certFile, keyFile)
}

func (a *API) newServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.config.API.ReadTimeout,
		WriteTimeout:      a.config.API.WriteTimeout,
	}
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// preflight answers CORS preflight requests; corsMiddleware has already set the headers.
func (a *API) preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]interface{}{"status": "ok", "sessions": a.svc.Sessions.SessionCount()}, http.StatusOK)
}
