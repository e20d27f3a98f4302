package main

import (
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Edmaione/Terrain-Financials-sub000/src/config"
	"github.com/Edmaione/Terrain-Financials-sub000/src/database"
	"github.com/Edmaione/Terrain-Financials-sub000/src/handlers"
	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/processors"
	"github.com/Edmaione/Terrain-Financials-sub000/src/services"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Terrain Financials backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	var suggester processors.Suggester
	if config.Cfg.GeminiAPIKey != "" {
		suggester = services.NewGeminiSuggester(config.Cfg.GeminiAPIKey, config.Cfg.GeminiModel, config.Cfg.SuggestTimeout)
		logger.L.Info("Category suggester enabled", "model", config.Cfg.GeminiModel)
	}

	categorizer := processors.NewCategorizer(database.DB, suggester)
	transferProcessor := processors.NewTransferProcessor(database.DB)

	importService := services.NewImportService(database.DB, categorizer, transferProcessor,
		config.Cfg.ImportChunkSize, config.Cfg.RowErrorSample)
	reconcileService := services.NewReconcileService(database.DB, reportCache,
		config.Cfg.BankMatchToleranceDays, config.Cfg.CardMatchToleranceDays)
	extractService := services.NewExtractService(database.DB,
		config.Cfg.GeminiAPIKey, config.Cfg.GeminiModel, config.Cfg.ExtractTimeout,
		config.Cfg.StatementGraceDays, config.Cfg.IdentityTagWhitelist, config.Cfg.LargeAmountSentinelCents)

	importHandler := handlers.NewImportHandler(importService)
	reconciliationHandler := handlers.NewReconciliationHandler(reconcileService, extractService)
	transactionHandler := handlers.NewTransactionHandler(database.DB, categorizer)
	accountHandler := handlers.NewAccountHandler(database.DB)

	logger.L.Info("Configuring routes...")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", importHandler.HandleSubmitImport)
			r.Get("/{id}", importHandler.HandleGetBatch)
			r.Post("/{id}/cancel", importHandler.HandleCancelBatch)
		})

		r.Route("/statements", func(r chi.Router) {
			r.Post("/", reconciliationHandler.HandleCreateStatement)
			r.Get("/{id}/summary", reconciliationHandler.HandleGetSummary)
			r.Post("/{id}/cleared", reconciliationHandler.HandleSetCleared)
			r.Post("/{id}/automatch", reconciliationHandler.HandleAutoMatch)
			r.Post("/{id}/match-extracted", reconciliationHandler.HandleMatchExtracted)
			r.Post("/{id}/reconcile", reconciliationHandler.HandleReconcile)
			r.Post("/{id}/unreconcile", reconciliationHandler.HandleUnreconcile)
			r.Post("/{id}/extract", reconciliationHandler.HandleExtract)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactionHandler.HandleListTransactions)
			r.Post("/{id}/approve", transactionHandler.HandleApprove)
			r.Post("/{id}/category", transactionHandler.HandleSetCategory)
			r.Delete("/{id}", transactionHandler.HandleDelete)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", accountHandler.HandleCreateAccount)
			r.Get("/", accountHandler.HandleListAccounts)
			r.Delete("/{id}", accountHandler.HandleDeactivateAccount)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", accountHandler.HandleCreateCategory)
			r.Get("/", accountHandler.HandleListCategories)
			r.Delete("/{id}", accountHandler.HandleDeleteCategory)
		})
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(r))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
