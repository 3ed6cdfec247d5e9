package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"exam-system/internal/auth"
	"exam-system/internal/authz"
	"exam-system/internal/config"
	"exam-system/internal/exam"
	"exam-system/internal/result"
	"exam-system/internal/scoring"
	"exam-system/internal/tenancy"
	"exam-system/pkg/database"
	"exam-system/pkg/events"
	"exam-system/pkg/logger"
	"exam-system/pkg/websocket"
)

// relay forwards result events to whichever publisher is wired once the hub
// exists.
type relay struct {
	target events.Publisher
}

func (r *relay) PublishResult(ctx context.Context, ev events.ResultEvent) error {
	return r.target.PublishResult(ctx, ev)
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.Open(cfg.DBDriver, cfg.Postgres(), cfg.DBPath, log)
	if err != nil {
		log.Fatal("failed to connect to database", "driver", cfg.DBDriver, "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := authz.NewEngine()
	pub := &relay{target: events.Nop{}}

	// Repositories
	examRepo := exam.NewRepository(db)
	authRepo := auth.NewRepository(db)

	// Services
	authService := auth.NewService(authRepo, cfg.JWTSecret, cfg.JWTTTL, log)
	examService := exam.NewService(examRepo, engine, log)
	scoringService := scoring.NewService(scoring.NewRepository(db), examRepo, engine, pub, log)
	resultService := result.NewService(result.NewRepository(db), examRepo, engine, pub, log)
	tenancyService := tenancy.NewService(tenancy.NewRepository(db), engine, log)

	hub := websocket.NewHub(resultService, cfg.CORSOrigins, log)
	go hub.Run(ctx)

	if cfg.RedisAddr != "" {
		bus := events.NewRedisBus(cfg.RedisAddr)
		defer bus.Close()
		if err := bus.Ping(ctx); err != nil {
			log.Fatal("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		pub.target = bus
		go func() {
			if err := bus.Subscribe(ctx, hub.Deliver); err != nil {
				log.Error("result event subscription stopped", "error", err)
			}
		}()
		log.Info("result events via redis", "addr", cfg.RedisAddr)
	} else {
		pub.target = hub
	}

	router := mux.NewRouter()

	// Auth routes - no JWT required
	auth.NewHandler(authService, log).Routes(router.PathPrefix("/api").Subrouter())

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth.JWTMiddleware(authService, log))
	exam.NewHandler(examService, log).Routes(apiRouter)
	scoring.NewHandler(scoringService, log).Routes(apiRouter)
	result.NewHandler(resultService, log).Routes(apiRouter)
	tenancy.NewHandler(tenancyService, log).Routes(apiRouter)

	// Browsers cannot set headers on the upgrade request; the middleware
	// also accepts ?token=.
	wsRouter := router.PathPrefix("/ws").Subrouter()
	wsRouter.Use(auth.JWTMiddleware(authService, log))
	wsRouter.HandleFunc("/exams/{examID}", hub.HandleWebSocket)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      corsMiddleware.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server shutdown gracefully")
}
