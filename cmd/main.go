package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/maqua/membership-api/internal/auth"
	"github.com/maqua/membership-api/internal/config"
	"github.com/maqua/membership-api/internal/crm"
	"github.com/maqua/membership-api/internal/handlers"
	"github.com/maqua/membership-api/internal/logger"
	"github.com/maqua/membership-api/internal/profile"
)

func main() {
	cfg := config.Load()
	flag.Parse()

	appLogger := logger.New(cfg.DebugMode)
	defer func() {
		_ = appLogger.Sync() // Ignore sync errors on close, as per zap documentation
	}()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration",
			"error", err,
		)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.Default()
	router.Use(auth.RequestID())
	router.Use(cors.New(corsConfig(cfg)))
	router.OPTIONS("/*path", func(c *gin.Context) { c.Status(204) })

	registerHandlers(router, cfg, appLogger)

	srv, err := newServer(cfg, router)
	if err != nil {
		appLogger.Fatal("Failed to configure server",
			"error", err,
		)
	}

	go func() {
		appLogger.Info("Server starting",
			"port", cfg.Port,
			"debug_mode", cfg.DebugMode,
			"tls", cfg.TLS.Enabled(),
			"gate_enabled", cfg.GateEnabled(),
		)
		if err := listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed to start",
				"error", err,
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutdown signal received, shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown",
			"error", err,
		)
	}

	appLogger.Info("Server exited gracefully")
}

// corsConfig allows the configured origins; debug mode opens up to any
// origin for local page development.
func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.DebugMode {
		corsCfg.AllowOriginFunc = func(origin string) bool { return true }
		corsCfg.AllowCredentials = true
		return corsCfg
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowOriginFunc = func(origin string) bool { return false }
	}
	return corsCfg
}

func registerHandlers(router *gin.Engine, cfg *config.Config, appLogger *logger.Logger) {
	router.GET("/healthz", handlers.NewHealthHandler().HealthCheck)

	gate := auth.NewGate(cfg.GatePassword, cfg.SessionSecret, cfg.SessionTTL)
	router.POST("/api/session", auth.NewHandler(appLogger, gate).CreateSession)

	rules, err := profile.LoadRules(cfg.LookupRulesPath)
	if err != nil {
		appLogger.Fatal("Failed to load lookup rules",
			"path", cfg.LookupRulesPath,
			"error", err,
		)
	}

	tokens := crm.NewTokenSource(appLogger, cfg.TokenURL, cfg.TokenPath, cfg.AppKey, cfg.AppSecret, cfg.TenantID)
	gateway := crm.NewClient(appLogger, crm.Endpoints{
		GatewayURL:        cfg.GatewayURL,
		FollowupList:      cfg.FollowupListPath,
		TaskList:          cfg.TaskListPath,
		OpportunityList:   cfg.OpportunityListPath,
		OpportunityDetail: cfg.OpportunityDetailPath,
		CustomerDetail:    cfg.CustomerDetailPath,
		AddressList:       cfg.AddressListPath,
	}, tokens)

	service := profile.NewService(appLogger, gateway, rules, profile.Settings{
		PageSize:                     cfg.PageSize,
		TaskPageSize:                 cfg.TaskPageSize,
		OpportunityDetailURLTemplate: cfg.OpportunityDetailURLTmpl,
	})

	profileHandler := profile.NewHandler(service, appLogger)
	router.POST("/api/profile", auth.RequireSession(appLogger, gate), profileHandler.Lookup)
}
