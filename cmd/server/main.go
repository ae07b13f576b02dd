// SkyLens Flight Tracking Server
// Aggregates live flight data from upstream providers and serves it
// over a REST API + WebSocket endpoint
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skylens/skylens/internal/monitoring"
	"github.com/skylens/skylens/internal/ratelimit"
	"github.com/skylens/skylens/internal/service"
	"github.com/skylens/skylens/internal/session"
	"github.com/skylens/skylens/internal/ws"
	"github.com/skylens/skylens/pkg/aviationstack"
	"github.com/skylens/skylens/pkg/cache"
	"github.com/skylens/skylens/pkg/config"
	"github.com/skylens/skylens/pkg/elevation"
	"github.com/skylens/skylens/pkg/opensky"
)

var configPath = flag.String("config", "configs/config.json", "Path to configuration file")

// Server holds the HTTP server and its dependencies
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	cache     *cache.Cache
	flights   *service.Service
	sessions  *session.Store
	anonTM    *opensky.TokenManager
	routes    *aviationstack.Client
	elevation *elevation.Client
	hub       *ws.Hub
	limiter   *ratelimit.Limiter
	startedAt time.Time
}

func main() {
	flag.Parse()

	log.Println("🚀 Starting SkyLens flight tracking server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := cache.New()
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer store.Close()

	client := opensky.NewClient(cfg.OpenSky.StatesURL(), cfg.OpenSky.TracksURL())

	anonTM := opensky.NewTokenManager(cfg.OpenSky.ClientID, cfg.OpenSky.ClientSecret, cfg.OpenSky.TokenURL)
	if anonTM.HasCredentials() {
		log.Println("🔑 OpenSky credentials configured")
	} else {
		log.Println("⚠️ No OpenSky credentials, using anonymous access")
	}

	sessions := session.NewStore(session.Config{TokenURL: cfg.OpenSky.TokenURL})
	defer sessions.Close()

	if cfg.BYOK.Enabled {
		log.Println("🔐 BYOK mode enabled: clients may register their own OpenSky credentials")
	}

	flightSvc := service.New(store, client, anonTM, sessions, service.Config{
		BYOKEnabled:  cfg.BYOK.Enabled,
		DemoDataPath: cfg.Demo.DataPath,
	})

	hub := ws.NewHub(flightSvc, ws.Config{
		BroadcastInterval: time.Duration(cfg.Broadcast.IntervalSeconds) * time.Second,
		AnchorLatitude:    cfg.Broadcast.AnchorLatitude,
		AnchorLongitude:   cfg.Broadcast.AnchorLongitude,
		AnchorRadiusKm:    cfg.Broadcast.AnchorRadiusKm,
	})
	defer hub.Close()

	monitoring.RegisterCacheStats(store.Stats)
	monitoring.RegisterSessionCount(sessions.Count)

	srv := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		cache:    store,
		flights:  flightSvc,
		sessions: sessions,
		anonTM:   anonTM,
		routes: aviationstack.NewClient(aviationstack.Config{
			APIKey:  cfg.AviationStack.APIKey,
			BaseURL: cfg.AviationStack.BaseURL,
		}, store),
		elevation: elevation.NewClient(elevation.Config{
			BaseURL: cfg.Elevation.BaseURL,
		}, store),
		hub:       hub,
		limiter:   ratelimit.New(),
		startedAt: time.Now(),
	}
	srv.setupRoutes()

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("📡 Server listening on http://%s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n👋 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped")
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.RequestSize(maxBodyBytes))
	r.Use(monitoring.MetricsMiddleware)

	// CORS for browser and VR clients
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Token"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", monitoring.PrometheusHandler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		// The static route wins over the parameter routes, and the
		// trajectory route is more specific than the by-ICAO lookup.
		r.Get("/flights", s.handleFlights)
		r.Get("/flights/route", s.handleFlightRoute)
		r.Get("/flights/{icao}/trajectory", s.handleTrajectory)
		r.Get("/flights/{icao}", s.handleFlightByICAO)
		r.Get("/elevation", s.handleElevation)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheClear)

		r.Post("/opensky/reconnect", s.handleOpenSkyReconnect)
		r.Post("/opensky/credentials", s.handleCreateCredentials)
		r.Get("/opensky/status", s.handleOpenSkyStatus)
		r.Delete("/opensky/credentials", s.handleDeleteCredentials)
	})

	// WebSocket endpoint
	r.Get("/ws", s.hub.HandleWebSocket)
}
