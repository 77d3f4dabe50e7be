package main

import (
	"net/http"

	"github.com/benvon/wellness-sessions/internal/config"
	"github.com/benvon/wellness-sessions/internal/database"
	"github.com/benvon/wellness-sessions/internal/handlers"
	"github.com/benvon/wellness-sessions/internal/middleware"
	"github.com/benvon/wellness-sessions/internal/telemetry"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type routerDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	users     database.UserRepositoryInterface
	sessions  database.SessionRepositoryInterface
	verifier  middleware.TokenVerifier
	rateLimit func(http.Handler) http.Handler
	health    *handlers.HealthChecker
	openAPI   *handlers.OpenAPIHandler
	tracing   bool
}

// newRouter wires middleware and routes. In gorilla/mux the first middleware
// registered is the outermost wrapper.
func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	if d.tracing {
		r.Use(telemetry.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.SecurityHeaders(d.cfg.EnableHSTS))
	r.Use(middleware.CORS(d.cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(d.cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(d.logger))
	r.Use(middleware.Audit(d.logger))
	r.Use(middleware.Logging(d.logger))

	r.HandleFunc("/healthz", d.health.HealthCheck).Methods("GET")
	r.HandleFunc("/version", handlers.VersionInfo).Methods("GET")
	if d.openAPI != nil {
		d.openAPI.RegisterRoutes(r)
	}

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	sessionHandler := handlers.NewSessionHandler(d.sessions, d.logger)

	// Public catalogue
	sessionHandler.RegisterPublicRoutes(apiRouter)

	authMW := middleware.Auth(d.verifier, d.users, d.logger)

	usersRouter := apiRouter.PathPrefix("/users").Subrouter()
	usersRouter.Use(authMW)
	usersRouter.Use(d.rateLimit)
	handlers.NewUserHandler().RegisterRoutes(usersRouter)

	mySessionsRouter := apiRouter.PathPrefix("/my-sessions").Subrouter()
	mySessionsRouter.Use(authMW)
	mySessionsRouter.Use(d.rateLimit)
	sessionHandler.RegisterRoutes(mySessionsRouter)

	// Preflight requests are answered by the CORS middleware; this only gives them a route.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
