package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/chesslab/analysisd/internal/authcheck"
	"github.com/chesslab/analysisd/internal/config"
	"github.com/chesslab/analysisd/internal/middleware"
	"github.com/chesslab/analysisd/internal/models"
	"github.com/chesslab/analysisd/internal/pool"
	"github.com/chesslab/analysisd/internal/session"
)

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if cfg.App.Mode == "release" {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	enginePool, err := pool.New(pool.Config{
		BinaryPath:        cfg.Engine.BinaryPath,
		MinEngines:        cfg.Pool.MinEngines,
		MaxEngines:        cfg.Pool.MaxEngines,
		ScaleUpThreshold:  cfg.Pool.ScaleUpThreshold,
		ScaleDownIdleTime: cfg.Pool.ScaleDownIdleTime,
		EngineOptions: models.EngineOptions{
			Threads: cfg.Engine.Threads,
			HashMB:  cfg.Engine.HashMB,
		},
	})
	if err != nil {
		logrus.Fatalf("failed to initialize engine pool: %v", err)
	}
	defer enginePool.Shutdown()

	// The token verifier is an external collaborator (spec §1, §6); this
	// stand-in accepts no tokens until wired to a real identity provider.
	verifier := authcheck.NewStaticVerifier(nil)

	wsHandler := session.NewHandler(session.Config{
		Pool:             enginePool,
		Verifier:         verifier,
		MinClientVersion: cfg.Auth.MinClientVersion,
		DownloadURL:      cfg.Auth.DownloadURL,
		AuthTimeout:      cfg.Auth.AuthTimeout,
	})

	if cfg.App.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimitConnections(cfg.RateLimit))

	router.GET("/ws", gin.WrapH(wsHandler))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET("/health", func(c *gin.Context) {
		driverCount, queueDepth := enginePool.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now().UTC(),
			"drivers":     driverCount,
			"queueDepth":  queueDepth,
		})
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsRouter,
	}

	go func() {
		logrus.Infof("analysis server listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()
	go func() {
		logrus.Infof("metrics/health server listening on port %d", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("metrics server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("analysis server forced shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logrus.Errorf("metrics server forced shutdown: %v", err)
	}

	logrus.Info("server exited")
}
